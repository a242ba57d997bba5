package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// ExecutionStore is a thread-safe in-memory core.ExecutionStore. Rows are
// kept in creation order per conversation, which mirrors the depth-first
// order of a delegation chain.
type ExecutionStore struct {
	mu             sync.RWMutex
	byID           map[string]*core.AgentExecution
	byConversation map[string][]string
}

// NewExecutionStore creates an empty in-memory execution store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		byID:           make(map[string]*core.AgentExecution),
		byConversation: make(map[string][]string),
	}
}

// Create inserts a new in-progress execution row.
func (s *ExecutionStore) Create(_ context.Context, exec *core.AgentExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[exec.ID]; exists {
		return fmt.Errorf("execution %s already exists", exec.ID)
	}

	clone := *exec
	s.byID[exec.ID] = &clone
	s.byConversation[exec.ConversationID] = append(s.byConversation[exec.ConversationID], exec.ID)

	return nil
}

// Update overwrites an existing row with its current state.
func (s *ExecutionStore) Update(_ context.Context, exec *core.AgentExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[exec.ID]; !exists {
		return fmt.Errorf("execution %s not found", exec.ID)
	}

	clone := *exec
	s.byID[exec.ID] = &clone

	return nil
}

// Get returns the execution row with the given id.
func (s *ExecutionStore) Get(_ context.Context, id string) (*core.AgentExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("execution %s not found", id)
	}
	clone := *exec

	return &clone, nil
}

// ListByConversation returns the conversation's execution rows in creation order.
func (s *ExecutionStore) ListByConversation(_ context.Context, conversationID string) ([]*core.AgentExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byConversation[conversationID]
	out := make([]*core.AgentExecution, 0, len(ids))
	for _, id := range ids {
		clone := *s.byID[id]
		out = append(out, &clone)
	}

	return out, nil
}

var _ core.ExecutionStore = (*ExecutionStore)(nil)
