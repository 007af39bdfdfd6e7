package budget

import (
	"context"
	"sync"

	"github.com/steveyegge/seoloop/internal/types"
)

type counterKey struct {
	repo string
	kind types.ResourceKind
	day  string
}

// MemoryStore keeps counters in process memory. Counters are lost on exit;
// used by tests and dry runs.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[counterKey]int
}

// NewMemoryStore creates an empty in-memory counter store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[counterKey]int)}
}

func (m *MemoryStore) IncrementIfBelow(_ context.Context, repoID string, kind types.ResourceKind, day string, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := counterKey{repoID, kind, day}
	if limit >= 0 && m.counts[key] >= limit {
		return false, nil
	}
	m.counts[key]++
	return true, nil
}

func (m *MemoryStore) Count(_ context.Context, repoID string, kind types.ResourceKind, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[counterKey{repoID, kind, day}], nil
}
