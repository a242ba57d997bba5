package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Default chain and model parameters applied by Normalize when a definition
// leaves the corresponding field unset.
const (
	DefaultMaxChainDepth = 3
	DefaultTimeout       = 30 * time.Second
	DefaultTemperature   = 0.7
	DefaultTopP          = 1.0
)

// ChainStrategy names the delegation strategy of a definition. Only
// sequential delegation is implemented; the field exists so stored
// definitions remain forward compatible.
type ChainStrategy string

// ChainStrategySequential delegates to at most one fallback agent per hop.
const ChainStrategySequential ChainStrategy = "sequential"

// LLMParams carries the model invocation parameters of an AgentDefinition.
// Timeout is enforced uniformly: every model call made on behalf of the
// definition runs under a context deadline derived from it.
type LLMParams struct {
	Temperature   float64       `json:"temperature" yaml:"temperature"`
	TopP          float64       `json:"top_p" yaml:"top_p"`
	MaxTokens     int64         `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
	Stream        bool          `json:"stream" yaml:"stream"`
	ContextWindow int           `json:"context_window" yaml:"context_window"`
}

// ToolBinding references a capability by name. Bindings are resolved against
// the process-level tool registry when the definition is instantiated; a
// binding that cannot be resolved aborts the whole instantiation.
type ToolBinding struct {
	Name   string         `json:"name" yaml:"name"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// AgentDefinition is a catalog entry describing one named agent: its prompt,
// structural contracts, model parameters, capability bindings and fallback
// reference. Definitions are created by seeding or an administrative
// workflow and are never deleted, only deactivated. Runtime agents hold a
// read-only snapshot; the definition store owns the canonical record.
type AgentDefinition struct {
	ID            string          `json:"id" yaml:"id"`
	Name          string          `json:"name" yaml:"name"`
	Description   string          `json:"description" yaml:"description"`
	SystemPrompt  string          `json:"system_prompt" yaml:"system_prompt"`
	InputSchema   json.RawMessage `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema  json.RawMessage `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	LLMProvider   string          `json:"llm_provider" yaml:"llm_provider"`
	LLMModel      string          `json:"llm_model" yaml:"llm_model"`
	LLMParams     LLMParams       `json:"llm_params" yaml:"llm_params"`
	Tools         []ToolBinding   `json:"tools,omitempty" yaml:"tools,omitempty"`
	Functions     []ToolBinding   `json:"functions,omitempty" yaml:"functions,omitempty"`
	FallbackAgent string          `json:"fallback_agent,omitempty" yaml:"fallback_agent,omitempty"`
	MaxChainDepth int             `json:"max_chain_depth" yaml:"max_chain_depth"`
	ChainStrategy ChainStrategy   `json:"chain_strategy" yaml:"chain_strategy"`
	IsActive      bool            `json:"is_active" yaml:"is_active"`
	Created       time.Time       `json:"created" yaml:"created"`
	Updated       time.Time       `json:"updated" yaml:"updated"`
}

// Normalize fills unset fields with defaults and stamps creation metadata.
// It is called by stores before persisting a new definition. New definitions
// start active; deactivation is an explicit operation.
func (d *AgentDefinition) Normalize() {
	if d.ID == "" {
		d.ID = NewID()
	}
	if d.MaxChainDepth <= 0 {
		d.MaxChainDepth = DefaultMaxChainDepth
	}
	if d.ChainStrategy == "" {
		d.ChainStrategy = ChainStrategySequential
	}
	if d.LLMParams.Temperature == 0 {
		d.LLMParams.Temperature = DefaultTemperature
	}
	if d.LLMParams.TopP == 0 {
		d.LLMParams.TopP = DefaultTopP
	}
	if d.LLMParams.Timeout == 0 {
		d.LLMParams.Timeout = DefaultTimeout
	}
	now := time.Now().UTC()
	if d.Created.IsZero() {
		d.Created = now
		d.IsActive = true
	}
	d.Updated = now
}

// Validate checks the structural invariants a definition must satisfy before
// registration. MaxChainDepth must be at least 1 so the strict depth
// comparison (depth+1 < max) can never admit a hop for a non-delegating agent.
func (d *AgentDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("agent definition requires a name")
	}
	if d.SystemPrompt == "" {
		return fmt.Errorf("agent definition %q requires a system prompt", d.Name)
	}
	if d.MaxChainDepth < 1 {
		return fmt.Errorf("agent definition %q: max_chain_depth must be >= 1, got %d", d.Name, d.MaxChainDepth)
	}
	if d.ChainStrategy != "" && d.ChainStrategy != ChainStrategySequential {
		return fmt.Errorf("agent definition %q: unsupported chain strategy %q", d.Name, d.ChainStrategy)
	}
	return nil
}

// NewID returns a new random identifier (UUID v4 string).
func NewID() string { return uuid.NewString() }
