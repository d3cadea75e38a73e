package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// Store persists the pending actions across process restarts.
type Store interface {
	Load() ([]domain.QueuedAction, error)
	Save(actions []domain.QueuedAction) error
}

// FileStore keeps the queue as one JSON array on disk, rewritten
// atomically on every mutation. A missing file is an empty queue.
type FileStore struct {
	path string
}

// NewFileStore creates a file store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted queue.
func (s *FileStore) Load() ([]domain.QueuedAction, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.QueuedAction{}, nil
		}
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}
	if len(data) == 0 {
		return []domain.QueuedAction{}, nil
	}

	var actions []domain.QueuedAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("failed to parse queue file: %w", err)
	}
	return actions, nil
}

// Save rewrites the queue file. Written to a temp file first so a crash
// mid-write never leaves a truncated queue behind.
func (s *FileStore) Save(actions []domain.QueuedAction) error {
	if actions == nil {
		actions = []domain.QueuedAction{}
	}
	data, err := json.MarshalIndent(actions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".queue-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp queue file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close queue file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace queue file: %w", err)
	}
	return nil
}
