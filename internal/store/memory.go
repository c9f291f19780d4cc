package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryLedger keeps run records in memory. It backs tests and devices
// configured without a ledger path.
type MemoryLedger struct {
	mu   sync.RWMutex
	runs map[string]Run
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{runs: make(map[string]Run)}
}

func (m *MemoryLedger) PutRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	m.runs[run.ID] = *run
	m.mu.Unlock()
	return nil
}

func (m *MemoryLedger) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *MemoryLedger) ListRuns(_ context.Context, limit int) ([]*Run, error) {
	m.mu.RLock()
	out := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, &r)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Run) int {
		return cmp.Compare(b.StartedAt.UnixNano(), a.StartedAt.UnixNano())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryLedger) Close() error { return nil }
