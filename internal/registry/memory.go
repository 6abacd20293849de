package registry

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process registry. Contents are lost on restart; intended
// for local runs and tests.
type Memory struct {
	mu    sync.RWMutex
	seen  map[string]struct{}
	items []Recipient
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{}), now: time.Now}
}

func (m *Memory) Register(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[id]; ok {
		return nil
	}
	m.seen[id] = struct{}{}
	m.items = append(m.items, Recipient{ID: id, RegisteredAt: m.now()})
	return nil
}

func (m *Memory) ListAll(_ context.Context) ([]Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Recipient, len(m.items))
	copy(out, m.items)
	return out, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }
