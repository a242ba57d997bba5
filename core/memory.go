package core

import "time"

// MemoryType classifies a MemoryEntry.
type MemoryType string

// Memory types. Consolidated entries are synthesized from conversation
// entries during short-term buffer overflow and are never re-consolidated.
const (
	MemoryConversation     MemoryType = "conversation"
	MemoryAgentInteraction MemoryType = "agent_interaction"
	MemorySystem           MemoryType = "system"
	MemoryConsolidated     MemoryType = "consolidated"
)

// MemoryEntry is a timestamped, typed, importance-scored memory item.
// Entries are immutable once written; consolidation creates new entries
// rather than editing existing ones. Importance is in [0.0, 1.0].
type MemoryEntry struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Timestamp  time.Time         `json:"timestamp"`
	MemoryType MemoryType        `json:"memory_type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Importance float64           `json:"importance"`
}

// NewMemoryEntry creates an entry with a generated id and current UTC
// timestamp.
func NewMemoryEntry(content string, memoryType MemoryType, metadata map[string]string, importance float64) MemoryEntry {
	return MemoryEntry{
		ID:         NewID(),
		Content:    content,
		Timestamp:  time.Now().UTC(),
		MemoryType: memoryType,
		Metadata:   metadata,
		Importance: importance,
	}
}
