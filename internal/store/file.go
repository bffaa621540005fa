package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"sleepalarm/internal/config"
	"sleepalarm/internal/model"
)

const (
	snapshotFile   = "snapshot.yaml"
	triggerLogFile = "triggered.yaml"
)

// FileStore keeps the snapshot and trigger log as YAML files in one
// directory. Writes go through a temp file and rename.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	logger *zap.Logger
}

func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("store: file backend needs a directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) LoadSnapshot(_ context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := s.readYAML(snapshotFile, &snap); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Snapshot{}, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (s *FileStore) SaveSnapshot(_ context.Context, snap *Snapshot) error {
	return s.writeYAML(snapshotFile, snap)
}

func (s *FileStore) LoadTriggerLog(_ context.Context) (model.TriggerLogState, error) {
	var st model.TriggerLogState
	if err := s.readYAML(triggerLogFile, &st); err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.TriggerLogState{}, nil
		}
		return model.TriggerLogState{}, err
	}
	return st, nil
}

func (s *FileStore) SaveTriggerLog(_ context.Context, st model.TriggerLogState) error {
	return s.writeYAML(triggerLogFile, st)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) readYAML(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("store: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return ErrNotFound
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: decode %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) writeYAML(name string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	if err := config.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	s.logger.Debug("state written", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}
