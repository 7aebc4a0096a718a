package mount

import (
	"bufio"
	"os"
	"strings"
	"syscall"
)

// procMountEntry is one parsed line of /proc/mounts.
type procMountEntry struct {
	Source     string
	MountPath  string
	FSType     string
	Options    string
}

// readProcMounts parses /proc/mounts (adapted from handler/drive/list.go's
// ListMounts, generalized from a single fuse.seaweedfs filter to any
// filesystem type).
func readProcMounts() ([]procMountEntry, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []procMountEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		entries = append(entries, procMountEntry{
			Source:    fields[0],
			MountPath: fields[1],
			FSType:    fields[2],
			Options:   fields[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListActive returns every currently-mounted sshfs/fuse mount point known
// to /proc/mounts, cross-referenced against registered machines.
func (s *Store) ListActive() map[string]bool {
	active := map[string]bool{}
	entries, err := readProcMounts()
	if err != nil {
		return active
	}
	mounted := map[string]bool{}
	for _, e := range entries {
		if strings.HasPrefix(e.FSType, "fuse") {
			mounted[e.MountPath] = true
		}
	}

	for _, m := range s.List() {
		if mounted[m.MountPath] {
			active[m.Name] = true
		}
	}
	return active
}

// isMountPointByDeviceID compares a path's device id against its parent's,
// used when /proc/mounts is unavailable (non-Linux, or sandboxed).
func isMountPointByDeviceID(path string) bool {
	pathStat, err := os.Stat(path)
	if err != nil {
		return false
	}
	parentStat, err := os.Stat(parentOf(path))
	if err != nil {
		return false
	}
	pathSys, ok1 := pathStat.Sys().(*syscall.Stat_t)
	parentSys, ok2 := parentStat.Sys().(*syscall.Stat_t)
	if !ok1 || !ok2 {
		return false
	}
	return pathSys.Dev != parentSys.Dev
}

func parentOf(path string) string {
	i := len(path) - 1
	for i > 0 && path[i] != '/' {
		i--
	}
	if i == 0 {
		return "/"
	}
	return path[:i]
}
