package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentDefinition_Normalize(t *testing.T) {
	def := &AgentDefinition{Name: "billing", SystemPrompt: "You handle billing."}
	def.Normalize()

	assert.NotEmpty(t, def.ID)
	assert.Equal(t, DefaultMaxChainDepth, def.MaxChainDepth)
	assert.Equal(t, ChainStrategySequential, def.ChainStrategy)
	assert.Equal(t, DefaultTemperature, def.LLMParams.Temperature)
	assert.Equal(t, DefaultTopP, def.LLMParams.TopP)
	assert.Equal(t, DefaultTimeout, def.LLMParams.Timeout)
	assert.False(t, def.Created.IsZero())
	assert.True(t, def.IsActive)

	// Re-normalizing an existing definition never reactivates it.
	def.IsActive = false
	def.Normalize()
	assert.False(t, def.IsActive)
}

func TestAgentDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     AgentDefinition
		wantErr bool
	}{
		{
			name:    "valid",
			def:     AgentDefinition{Name: "a", SystemPrompt: "p", MaxChainDepth: 1},
			wantErr: false,
		},
		{
			name:    "missing name",
			def:     AgentDefinition{SystemPrompt: "p", MaxChainDepth: 1},
			wantErr: true,
		},
		{
			name:    "missing prompt",
			def:     AgentDefinition{Name: "a", MaxChainDepth: 1},
			wantErr: true,
		},
		{
			name:    "zero depth",
			def:     AgentDefinition{Name: "a", SystemPrompt: "p", MaxChainDepth: 0},
			wantErr: true,
		},
		{
			name:    "unknown strategy",
			def:     AgentDefinition{Name: "a", SystemPrompt: "p", MaxChainDepth: 1, ChainStrategy: "parallel"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConversation_HistoryAndLatest(t *testing.T) {
	conv := NewConversation()
	_, ok := conv.Latest()
	assert.False(t, ok)

	conv.Append(RoleUser, "one").Append(RoleAssistant, "two").Append(RoleUser, "three")

	latest, ok := conv.Latest()
	require.True(t, ok)
	assert.Equal(t, "three", latest.Content)

	history := conv.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "one", history[0].Content)

	capped := conv.History(1)
	require.Len(t, capped, 1)
	assert.Equal(t, "two", capped[0].Content)
}

func TestExecution_Lifecycle(t *testing.T) {
	exec := NewExecution("agent-1", "billing", "conv-1", 0, "")
	assert.Equal(t, ExecutionInProgress, exec.Status)
	assert.Zero(t, exec.Duration())

	exec.MarkDelegated("support")
	exec.Succeed(map[string]any{"response": "ok"})

	assert.Equal(t, ExecutionSuccess, exec.Status)
	assert.Equal(t, "support", exec.Metadata["delegated_to"])
	assert.False(t, exec.Finished.IsZero())
	assert.GreaterOrEqual(t, exec.Duration(), time.Duration(0))
}

func TestExecution_Fail(t *testing.T) {
	exec := NewExecution("agent-1", "billing", "conv-1", 2, "parent-id")
	exec.Fail(errors.New("boom"), "ModelError")

	assert.Equal(t, ExecutionFailure, exec.Status)
	assert.Equal(t, "boom", exec.ErrorMessage)
	assert.Equal(t, "ModelError", exec.Metadata["error_type"])
}

func TestErrorTaxonomy(t *testing.T) {
	var dup error = &DuplicateAgentError{Name: "billing"}
	assert.Contains(t, dup.Error(), "billing")

	nf := &AgentNotFoundError{Name: "x", Known: []string{"a", "b"}}
	assert.Contains(t, nf.Error(), "known agents")

	inner := errors.New("no such capability")
	tl := &ToolLoadError{Agent: "billing", Tool: "lookup", Err: inner}
	assert.ErrorIs(t, tl, inner)

	ce := &ConsolidationError{OwnerID: "router", Err: inner}
	assert.ErrorIs(t, ce, inner)
}
