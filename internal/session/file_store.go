package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps slots in a JSON file so separate CLI invocations can share
// them. Point it at a runtime directory (tmpfs) to have values vanish on
// reboot.
type FileStore struct {
	Path string

	mu     sync.Mutex
	expiry time.Duration
	now    func() time.Time
}

// fileData is the on-disk JSON structure.
type fileData struct {
	Version string               `json:"version"`
	Slots   map[string]slotValue `json:"slots"`
}

// NewFileStore creates a store backed by path. expiry has the same meaning as
// for NewMemoryStore.
func NewFileStore(path string, expiry time.Duration) *FileStore {
	return &FileStore{Path: path, expiry: expiry, now: time.Now}
}

// DefaultFilePath returns the session file location: under XDG_RUNTIME_DIR
// when set, otherwise the system temp directory.
func DefaultFilePath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "keyreplay", "session.json")
}

// Put replaces the value of slot.
func (s *FileStore) Put(_ context.Context, slot, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fd, err := s.load()
	if err != nil {
		return err
	}
	fd.Slots[slot] = slotValue{Value: value, UpdatedAt: s.now()}
	return s.save(fd)
}

// Get returns the value of slot.
func (s *FileStore) Get(_ context.Context, slot string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fd, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := fd.Slots[slot]
	if !ok {
		return "", fmt.Errorf("slot %q: %w", slot, ErrEmpty)
	}
	if v.expired(s.expiry, s.now()) {
		return "", fmt.Errorf("slot %q expired: %w", slot, ErrEmpty)
	}
	return v.Value, nil
}

func (s *FileStore) load() (*fileData, error) {
	fd := &fileData{Slots: make(map[string]slotValue)}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fd, nil
		}
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	if err := json.Unmarshal(data, fd); err != nil {
		return nil, fmt.Errorf("parsing session file %s: %w", s.Path, err)
	}
	if fd.Slots == nil {
		fd.Slots = make(map[string]slotValue)
	}
	return fd, nil
}

// save writes through a temporary file and rename so readers never see a
// partial file.
func (s *FileStore) save(fd *fileData) error {
	fd.Version = "1"
	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}
