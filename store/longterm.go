package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// LongTermStore is a thread-safe in-memory core.LongTermStore keyed by
// owner id.
type LongTermStore struct {
	mu      sync.RWMutex
	entries map[string][]core.MemoryEntry
}

// NewLongTermStore creates an empty in-memory long-term store.
func NewLongTermStore() *LongTermStore {
	return &LongTermStore{entries: make(map[string][]core.MemoryEntry)}
}

// Append persists one promoted memory entry for the owner.
func (s *LongTermStore) Append(_ context.Context, ownerID string, entry core.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[ownerID] = append(s.entries[ownerID], entry)

	return nil
}

// Recent returns up to limit entries ordered by importance descending, ties
// broken by timestamp descending.
func (s *LongTermStore) Recent(_ context.Context, ownerID string, limit int) ([]core.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.MemoryEntry, len(s.entries[ownerID]))
	copy(out, s.entries[ownerID])

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// SearchContent returns entries whose content contains substring (literal
// match, case-insensitive).
func (s *LongTermStore) SearchContent(_ context.Context, ownerID, substring string) ([]core.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(substring)
	var out []core.MemoryEntry
	for _, entry := range s.entries[ownerID] {
		if strings.Contains(strings.ToLower(entry.Content), needle) {
			out = append(out, entry)
		}
	}

	return out, nil
}

var _ core.LongTermStore = (*LongTermStore)(nil)
