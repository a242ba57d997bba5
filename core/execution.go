package core

import "time"

// ExecutionStatus is the lifecycle state of an AgentExecution row.
type ExecutionStatus string

// Execution statuses. A row is created in-progress and updated exactly once
// to a terminal status; it is never mutated afterward.
const (
	ExecutionInProgress ExecutionStatus = "in_progress"
	ExecutionSuccess    ExecutionStatus = "success"
	ExecutionFailure    ExecutionStatus = "failure"
)

// AgentExecution is one provenance row per delegation attempt. Rows form a
// tree via ParentExecutionID, rooted at the initial attempt (ChainDepth 0).
//
// Invariants:
//   - a child's ChainDepth equals its parent's ChainDepth + 1
//   - no row has ChainDepth >= MaxChainDepth of its agent's definition
type AgentExecution struct {
	ID                string          `json:"id"`
	AgentID           string          `json:"agent_id"`
	AgentName         string          `json:"agent_name"`
	ConversationID    string          `json:"conversation_id"`
	InputData         map[string]any  `json:"input_data,omitempty"`
	OutputData        map[string]any  `json:"output_data,omitempty"`
	ChainDepth        int             `json:"chain_depth"`
	ParentExecutionID string          `json:"parent_execution_id,omitempty"`
	Status            ExecutionStatus `json:"status"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	PromptTokens      int             `json:"prompt_tokens"`
	CompletionTokens  int             `json:"completion_tokens"`
	Started           time.Time       `json:"started"`
	Finished          time.Time       `json:"finished,omitempty"`
}

// NewExecution creates an in-progress provenance row for one attempt.
func NewExecution(agentID, agentName, conversationID string, chainDepth int, parentExecutionID string) *AgentExecution {
	return &AgentExecution{
		ID:                NewID(),
		AgentID:           agentID,
		AgentName:         agentName,
		ConversationID:    conversationID,
		ChainDepth:        chainDepth,
		ParentExecutionID: parentExecutionID,
		Status:            ExecutionInProgress,
		Started:           time.Now().UTC(),
	}
}

// Duration returns the wall-clock time between start and finish, or zero if
// the row has not been finalized.
func (e *AgentExecution) Duration() time.Duration {
	if e.Finished.IsZero() {
		return 0
	}
	return e.Finished.Sub(e.Started)
}

// setMeta lazily initializes and writes a metadata key.
func (e *AgentExecution) setMeta(key string, value any) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
}

// Succeed finalizes the row as successful with the produced output.
func (e *AgentExecution) Succeed(output map[string]any) {
	e.Status = ExecutionSuccess
	e.OutputData = output
	e.Finished = time.Now().UTC()
}

// Fail finalizes the row as failed, recording the error class and detail in
// execution metadata.
func (e *AgentExecution) Fail(err error, errorType string) {
	e.Status = ExecutionFailure
	e.ErrorMessage = err.Error()
	e.setMeta("error_type", errorType)
	e.setMeta("error_details", err.Error())
	e.Finished = time.Now().UTC()
}

// MarkDelegated records that this attempt's result was produced by the named
// fallback agent. The row itself still finalizes via Succeed or Fail.
func (e *AgentExecution) MarkDelegated(fallbackName string) {
	e.setMeta("delegated_to", fallbackName)
}
