package core

import "context"

// DefinitionStore persists AgentDefinition catalog entries. Implementations
// must be safe for concurrent use. Save fails if a definition with the same
// name already exists; definitions are deactivated, never deleted.
type DefinitionStore interface {
	Save(ctx context.Context, def *AgentDefinition) error
	GetByName(ctx context.Context, name string) (*AgentDefinition, error)
	ListActive(ctx context.Context) ([]*AgentDefinition, error)
	Deactivate(ctx context.Context, name string) error
}

// ExecutionStore persists AgentExecution provenance rows. Create inserts an
// in-progress row; Update writes the finalized terminal state exactly once.
type ExecutionStore interface {
	Create(ctx context.Context, exec *AgentExecution) error
	Update(ctx context.Context, exec *AgentExecution) error
	Get(ctx context.Context, id string) (*AgentExecution, error)
	ListByConversation(ctx context.Context, conversationID string) ([]*AgentExecution, error)
}

// LongTermStore persists promoted memory entries for one memory subsystem
// (keyed by owner id). Recent returns entries ordered by importance then
// timestamp descending.
type LongTermStore interface {
	Append(ctx context.Context, ownerID string, entry MemoryEntry) error
	Recent(ctx context.Context, ownerID string, limit int) ([]MemoryEntry, error)
	SearchContent(ctx context.Context, ownerID, substring string) ([]MemoryEntry, error)
}

// Transactor is implemented by stores that expose transactional scope:
// begin, run fn, commit on nil error, rollback-and-propagate on error. The
// session is released on exit regardless of outcome. In-memory stores may
// provide a pass-through implementation.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
