package mount

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// pollInterval/mountTimeout mirror the teacher's blfs mount orchestration
// in handler/drive/mount.go: start the mount process in the background,
// then poll /proc/mounts until the mount point is live or the timeout
// elapses.
const (
	pollInterval = 200 * time.Millisecond
	mountTimeout = 30 * time.Second
)

// Mount starts sshfs in the background for the named machine and blocks
// until the mount point is ready or mountTimeout elapses (spec.md §6).
func (s *Store) Mount(name string, log *logrus.Entry) error {
	m, ok := s.Get(name)
	if !ok {
		return fmt.Errorf("mount: machine %q not found", name)
	}

	if isMountPoint(m.MountPath) {
		return nil
	}

	sshfsPath, err := exec.LookPath("sshfs")
	if err != nil {
		return fmt.Errorf("mount: sshfs not available: %w", err)
	}

	if err := os.MkdirAll(m.MountPath, 0o755); err != nil {
		return fmt.Errorf("mount: create mount point: %w", err)
	}

	remote := m.Host
	if m.User != "" {
		remote = m.User + "@" + m.Host
	}
	remoteSpec := fmt.Sprintf("%s:%s", remote, m.RemotePath)

	args := []string{remoteSpec, m.MountPath, "-o", "reconnect,ServerAliveInterval=15"}
	if m.Port != 0 {
		args = append(args, "-p", strconv.Itoa(m.Port))
	}

	log.WithFields(logrus.Fields{"machine": m.Name, "remote": remoteSpec, "mountPath": m.MountPath}).
		Info("mount: starting sshfs")

	cmd := exec.Command(sshfsPath, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("mount: start sshfs: %w", err)
	}

	start := time.Now()
	for time.Since(start) < mountTimeout {
		if isMountPoint(m.MountPath) {
			log.WithField("machine", m.Name).Info("mount: ready")
			return nil
		}
		if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
			return fmt.Errorf("mount: sshfs exited unexpectedly: %s", cmd.ProcessState.String())
		}
		time.Sleep(pollInterval)
	}

	if cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			log.WithError(err).Warn("mount: failed to kill sshfs after timeout")
		}
	}
	_ = cmd.Wait()
	if isMountPoint(m.MountPath) {
		_ = s.Unmount(name, log)
	}
	return fmt.Errorf("mount: timeout waiting for %q to become ready after %s", name, mountTimeout)
}

// Unmount unmounts a machine's mount point via fusermount (Linux) or
// umount (other Unix).
func (s *Store) Unmount(name string, log *logrus.Entry) error {
	m, ok := s.Get(name)
	if !ok {
		return fmt.Errorf("mount: machine %q not found", name)
	}
	if !isMountPoint(m.MountPath) {
		return nil
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "linux" {
		if bin, err := exec.LookPath("fusermount"); err == nil {
			cmd = exec.Command(bin, "-u", m.MountPath)
		}
	}
	if cmd == nil {
		cmd = exec.Command("umount", m.MountPath)
	}

	log.WithField("machine", m.Name).Info("mount: unmounting")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mount: unmount %q: %w", name, err)
	}
	return nil
}

// isMountPoint reports whether path appears as a mount point in
// /proc/mounts, falling back to a device-id comparison when /proc/mounts
// is unavailable (adapted from handler/drive/mount.go's isMountPoint /
// isMountPointByDeviceID).
func isMountPoint(path string) bool {
	clean := filepath.Clean(path)

	entries, err := readProcMounts()
	if err != nil {
		return isMountPointByDeviceID(path)
	}
	for _, e := range entries {
		if e.MountPath == clean {
			return true
		}
	}
	return false
}
