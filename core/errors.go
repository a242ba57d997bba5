package core

import "fmt"

// DuplicateAgentError is returned when registering a definition whose name
// is already present in the registry.
type DuplicateAgentError struct {
	Name string
}

func (e *DuplicateAgentError) Error() string {
	return fmt.Sprintf("agent %q is already registered", e.Name)
}

// AgentNotFoundError is returned when resolution or explicit-address routing
// names an unknown agent. Known carries the names of registered agents so
// callers can surface them to the user.
type AgentNotFoundError struct {
	Name  string
	Known []string
}

func (e *AgentNotFoundError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("agent %q not found", e.Name)
	}
	return fmt.Sprintf("agent %q not found (known agents: %v)", e.Name, e.Known)
}

// ToolLoadError is returned when a declared tool or function binding cannot
// be resolved at instantiation time. It aborts the whole agent's activation.
type ToolLoadError struct {
	Agent string
	Tool  string
	Err   error
}

func (e *ToolLoadError) Error() string {
	return fmt.Sprintf("agent %q: failed to load tool %q: %v", e.Agent, e.Tool, e.Err)
}

func (e *ToolLoadError) Unwrap() error { return e.Err }

// ValidationExhaustedError is returned when no valid output was produced
// after exhausting the fallback chain. Depth is the chain depth of the last
// attempt; ExecutionID references its provenance row.
type ValidationExhaustedError struct {
	Agent       string
	Depth       int
	ExecutionID string
}

func (e *ValidationExhaustedError) Error() string {
	return fmt.Sprintf("agent %q produced no schema-conformant output after exhausting fallbacks (depth %d)", e.Agent, e.Depth)
}

// ConsolidationError wraps a best-effort memory persistence failure. It is
// logged and swallowed on the primary request path, never propagated.
type ConsolidationError struct {
	OwnerID string
	Err     error
}

func (e *ConsolidationError) Error() string {
	return fmt.Sprintf("memory consolidation for %q failed: %v", e.OwnerID, e.Err)
}

func (e *ConsolidationError) Unwrap() error { return e.Err }
