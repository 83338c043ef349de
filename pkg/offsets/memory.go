package offsets

import (
	"context"
	"sync"
	"time"

	"github.com/entitysync/entitysync/pkg/change"
)

// MemoryRepository is the reference Repository: a mutex-guarded map. Progress
// does not survive a restart, so it is only suitable for tests and for
// deployments that deliberately re-seek by timestamp on every start.
type MemoryRepository struct {
	mu      sync.Mutex
	entries change.StreamPosition
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(change.StreamPosition)}
}

func (m *MemoryRepository) Store(_ context.Context, pos change.StreamPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tp, off := range pos {
		m.entries[tp] = off
	}
	return nil
}

func (m *MemoryRepository) Load(_ context.Context, asOf time.Time) (change.StreamPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(change.StreamPosition, len(m.entries))
	for tp, off := range m.entries {
		if stale(off, asOf) {
			continue
		}
		out[tp] = off
	}
	return out, nil
}
