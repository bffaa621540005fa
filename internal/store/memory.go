package store

import (
	"context"
	"sync"

	"sleepalarm/internal/model"
)

// Memory keeps everything in process. Used by tests and the memory backend.
type Memory struct {
	mu       sync.Mutex
	snapshot *Snapshot
	log      model.TriggerLogState

	// SaveErr, when set, is returned by both save methods.
	SaveErr error
	saves   int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) LoadSnapshot(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot.Clone(), nil
}

func (m *Memory) SaveSnapshot(_ context.Context, s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.snapshot = s.Clone()
	m.saves++
	return nil
}

func (m *Memory) LoadTriggerLog(_ context.Context) (model.TriggerLogState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.TriggerLogState{
		Keys:         append([]string(nil), m.log.Keys...),
		LastResetDay: m.log.LastResetDay,
	}, nil
}

func (m *Memory) SaveTriggerLog(_ context.Context, st model.TriggerLogState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.log = model.TriggerLogState{
		Keys:         append([]string(nil), st.Keys...),
		LastResetDay: st.LastResetDay,
	}
	m.saves++
	return nil
}

// Saves counts successful save calls.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) Close() error { return nil }
