package versionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/pds-match-service/internal/domain"
)

const lockRetryDelay = 10 * time.Millisecond

// FileStore keeps the state as a JSON document {version, hash, previousHash} on disk.
// Writes go to a temporary file that is renamed over the target. CompareAndSwap holds an
// exclusive flock on a sidecar "<path>.lock" file, so processes sharing the path serialise.
type FileStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// NewFileStore creates a file store, creating the parent directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("version file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileStore{path: path, lock: flock.New(path + ".lock")}, nil
}

// Load reads the state, returning the zero state when the file does not exist yet.
func (s *FileStore) Load(ctx context.Context) (domain.AlgorithmVersionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// CompareAndSwap writes next when the file still holds expected.
func (s *FileStore) CompareAndSwap(ctx context.Context, expected, next domain.AlgorithmVersionState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return false, fmt.Errorf("failed to lock version file: %w", err)
	}
	if !locked {
		return false, fmt.Errorf("failed to lock version file: %s", s.lock.Path())
	}
	defer s.lock.Unlock()

	current, err := s.read()
	if err != nil {
		return false, err
	}
	if current != expected {
		return false, nil
	}

	if err := s.write(next); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the lock file handle, if one is open.
func (s *FileStore) Close() error {
	return s.lock.Close()
}

func (s *FileStore) read() (domain.AlgorithmVersionState, error) {
	var state domain.AlgorithmVersionState

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("failed to read version file: %w", err)
	}

	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to decode version file: %w", err)
	}
	return state, nil
}

func (s *FileStore) write(state domain.AlgorithmVersionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode version state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".algorithm-version-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write version file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close version file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace version file: %w", err)
	}
	return nil
}
