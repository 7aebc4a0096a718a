// Package mount manages remote machine definitions and the sshfs mounts
// that bridge them into the local filesystem, adapted from the teacher's
// handler/drive package (blfs shell-outs, /proc/mounts parsing,
// poll-until-ready orchestration) onto sshfs/umount (spec.md §6).
package mount

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Machine is a remote host reachable over SSH, mountable into
// MountPath via sshfs.
type Machine struct {
	Name       string `json:"name"`
	Host       string `json:"host"`
	User       string `json:"user,omitempty"`
	Port       int    `json:"port,omitempty"`
	RemotePath string `json:"remotePath,omitempty"`
	MountPath  string `json:"mountPath,omitempty"`
}

// Store persists the machine list to machines.json under a state
// directory, and orchestrates sshfs mount/unmount for each entry.
type Store struct {
	mu       sync.Mutex
	path     string
	mountDir string
	machines []Machine
}

// Open loads (or initializes) the machine store rooted at stateDir
// (spec.md §6: "~/.claude-code-ui/machines.json").
func Open(stateDir string) (*Store, error) {
	mountDir := filepath.Join(stateDir, "mounts")
	if err := os.MkdirAll(mountDir, 0o755); err != nil {
		return nil, fmt.Errorf("mount: create mount dir: %w", err)
	}

	s := &Store{
		path:     filepath.Join(stateDir, "machines.json"),
		mountDir: mountDir,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.machines = []Machine{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("mount: read machines.json: %w", err)
	}
	var machines []Machine
	if err := json.Unmarshal(data, &machines); err != nil {
		return fmt.Errorf("mount: parse machines.json: %w", err)
	}
	s.machines = machines
	return nil
}

func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.machines, "", "  ")
	if err != nil {
		return fmt.Errorf("mount: marshal machines.json: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("mount: write machines.json: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// List returns a copy of every known machine definition.
func (s *Store) List() []Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Machine, len(s.machines))
	copy(out, s.machines)
	return out
}

// Add validates and registers a new machine, defaulting its MountPath to
// mountDir/<name> when unset.
func (s *Store) Add(m Machine) (Machine, error) {
	if err := ValidateName(m.Name); err != nil {
		return Machine{}, err
	}
	if err := ValidateRemote(m.Host); err != nil {
		return Machine{}, err
	}
	if m.MountPath == "" {
		m.MountPath = filepath.Join(s.mountDir, m.Name)
	}
	if err := ValidateMountPath(m.MountPath, s.mountDir); err != nil {
		return Machine{}, err
	}
	if m.RemotePath == "" {
		m.RemotePath = "/"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.machines {
		if existing.Name == m.Name {
			return Machine{}, fmt.Errorf("mount: machine %q already exists", m.Name)
		}
	}
	s.machines = append(s.machines, m)
	if err := s.persist(); err != nil {
		return Machine{}, err
	}
	return m, nil
}

// Remove deletes a machine definition by name. Does not unmount; callers
// unmount first via Unmount.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.machines {
		if m.Name == name {
			s.machines = append(s.machines[:i], s.machines[i+1:]...)
			return s.persist()
		}
	}
	return fmt.Errorf("mount: machine %q not found", name)
}

// Get looks up a machine by name.
func (s *Store) Get(name string) (Machine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.machines {
		if m.Name == name {
			return m, true
		}
	}
	return Machine{}, false
}
