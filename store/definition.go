package store

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// DefinitionStore is a thread-safe in-memory core.DefinitionStore. Listing
// preserves insertion order so handler resolution stays first-match stable.
type DefinitionStore struct {
	mu     sync.RWMutex
	byName map[string]*core.AgentDefinition
	order  []string
}

// NewDefinitionStore creates an empty in-memory definition store.
func NewDefinitionStore() *DefinitionStore {
	return &DefinitionStore{byName: make(map[string]*core.AgentDefinition)}
}

// Save normalizes and stores a definition. A second definition with the same
// name is rejected with DuplicateAgentError.
func (s *DefinitionStore) Save(_ context.Context, def *core.AgentDefinition) error {
	def.Normalize()
	if err := def.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[def.Name]; exists {
		return &core.DuplicateAgentError{Name: def.Name}
	}

	clone := *def
	s.byName[def.Name] = &clone
	s.order = append(s.order, def.Name)

	return nil
}

// GetByName returns the definition registered under name.
func (s *DefinitionStore) GetByName(_ context.Context, name string) (*core.AgentDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.byName[name]
	if !ok {
		return nil, &core.AgentNotFoundError{Name: name, Known: s.namesLocked()}
	}
	clone := *def

	return &clone, nil
}

// ListActive returns active definitions in registration order.
func (s *DefinitionStore) ListActive(_ context.Context) ([]*core.AgentDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.AgentDefinition, 0, len(s.order))
	for _, name := range s.order {
		def := s.byName[name]
		if def.IsActive {
			clone := *def
			out = append(out, &clone)
		}
	}

	return out, nil
}

// Deactivate marks a definition inactive. It remains resolvable by name.
func (s *DefinitionStore) Deactivate(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.byName[name]
	if !ok {
		return &core.AgentNotFoundError{Name: name, Known: s.namesLocked()}
	}
	def.IsActive = false
	def.Updated = time.Now().UTC()

	return nil
}

func (s *DefinitionStore) namesLocked() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)

	return names
}

var _ core.DefinitionStore = (*DefinitionStore)(nil)
