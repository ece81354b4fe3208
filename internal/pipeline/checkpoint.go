package pipeline

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"larder/internal"
)

// CheckpointStore is durable run progress, kept outside the primary store so
// a killed process can resume. The file store is the real one; the memory
// store exists for tests.
type CheckpointStore interface {
	Load() (*internal.Checkpoint, error)
	Save(cp internal.Checkpoint) error
	Clear() error
}

type FileCheckpointStore struct {
	path string
}

func NewFileCheckpointStore(dir, pipeline string) *FileCheckpointStore {
	return &FileCheckpointStore{path: filepath.Join(dir, pipeline+".json")}
}

func (s *FileCheckpointStore) Load() (*internal.Checkpoint, error) {
	blob, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp internal.Checkpoint
	if err := json.Unmarshal(blob, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *FileCheckpointStore) Save(cp internal.Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, blob, 0o644)
}

func (s *FileCheckpointStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

type MemoryCheckpointStore struct {
	cp *internal.Checkpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{}
}

func (s *MemoryCheckpointStore) Load() (*internal.Checkpoint, error) {
	if s.cp == nil {
		return nil, nil
	}
	copied := *s.cp
	return &copied, nil
}

func (s *MemoryCheckpointStore) Save(cp internal.Checkpoint) error {
	s.cp = &cp
	return nil
}

func (s *MemoryCheckpointStore) Clear() error {
	s.cp = nil
	return nil
}
