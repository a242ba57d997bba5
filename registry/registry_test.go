package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/store"
	"github.com/hupe1980/agentrelay/tool"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	factory := func(def *core.AgentDefinition) (model.Model, error) {
		return model.NewMockModel(def.LLMModel), nil
	}

	return New(store.NewDefinitionStore(), factory, func(o *Options) {
		o.Executions = store.NewExecutionStore()
	})
}

func testDefinition(name string) *core.AgentDefinition {
	return &core.AgentDefinition{
		Name:         name,
		SystemPrompt: "You are " + name + ".",
		IsActive:     true,
	}
}

func TestRegisterAndResolve(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	ag, err := r.Register(ctx, testDefinition("billing"))
	require.NoError(t, err)
	require.NotNil(t, ag)

	got, err := r.Resolve(ctx, "billing")
	require.NoError(t, err)
	assert.Same(t, ag, got)
}

func TestRegisterAppliesDefaults(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	// Only name and prompt; everything else comes from normalization.
	ag, err := r.Register(ctx, &core.AgentDefinition{
		Name:         "assistant",
		SystemPrompt: "You are a helpful assistant.",
	})
	require.NoError(t, err)

	def := ag.Definition()
	assert.Equal(t, core.DefaultMaxChainDepth, def.MaxChainDepth)
	assert.Equal(t, core.ChainStrategySequential, def.ChainStrategy)
	assert.True(t, def.IsActive)

	// Active by default, so the handler scan sees the new agent.
	conv := core.NewConversation().Append(core.RoleUser, "hello")
	got, err := r.ResolveHandler(ctx, conv)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "assistant", got.Definition().Name)
}

func TestRegisterDuplicateName(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, testDefinition("billing"))
	require.NoError(t, err)

	_, err = r.Register(ctx, testDefinition("billing"))

	var dup *core.DuplicateAgentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "billing", dup.Name)
}

func TestResolveCachedIdentity(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, testDefinition("billing"))
	require.NoError(t, err)

	first, err := r.Resolve(ctx, "billing")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "billing")
	require.NoError(t, err)
	assert.Same(t, first, second)

	r.ClearCache()

	third, err := r.Resolve(ctx, "billing")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestResolveUnknownAgent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, testDefinition("billing"))
	require.NoError(t, err)

	_, err = r.Resolve(ctx, "shipping")

	var nf *core.AgentNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, nf.Known, "billing")
}

func TestToolLoadFailureAbortsActivation(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	def := testDefinition("billing")
	def.Tools = []core.ToolBinding{{Name: "lookup_invoice"}, {Name: "missing_tool"}}

	require.NoError(t, r.Tools().Register(tool.NewFunctionTool(
		"lookup_invoice", "Look up an invoice", map[string]any{"type": "object"},
		func(ctx context.Context, args map[string]any) (any, error) { return "found", nil })))

	_, err := r.Register(ctx, def)

	var tle *core.ToolLoadError
	require.ErrorAs(t, err, &tle)
	assert.Equal(t, "missing_tool", tle.Tool)

	// No partial registration: the definition was never persisted.
	_, err = r.Resolve(ctx, "billing")
	var nf *core.AgentNotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRegisterBindsAllTools(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Tools().Register(tool.NewFunctionTool(
		"lookup_invoice", "Look up an invoice", map[string]any{"type": "object"},
		func(ctx context.Context, args map[string]any) (any, error) { return "found", nil })))

	def := testDefinition("billing")
	def.Tools = []core.ToolBinding{{Name: "lookup_invoice"}}

	ag, err := r.Register(ctx, def)
	require.NoError(t, err)
	require.Len(t, ag.Tools(), 1)

	out, err := ag.InvokeTool(ctx, "lookup_invoice", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "found", out)
}

func TestResolveHandlerFirstMatch(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	structured := testDefinition("structured")
	structured.InputSchema = []byte(`{"type": "object"}`)
	_, err := r.Register(ctx, structured)
	require.NoError(t, err)

	_, err = r.Register(ctx, testDefinition("catchall"))
	require.NoError(t, err)

	conv := core.NewConversation().Append(core.RoleUser, `{"query": "balance"}`)
	ag, err := r.ResolveHandler(ctx, conv)
	require.NoError(t, err)
	require.NotNil(t, ag)
	assert.Equal(t, "structured", ag.Definition().Name)

	conv = core.NewConversation().Append(core.RoleUser, "plain text question")
	ag, err = r.ResolveHandler(ctx, conv)
	require.NoError(t, err)
	require.NotNil(t, ag)
	assert.Equal(t, "catchall", ag.Definition().Name)
}

func TestResolveHandlerNoMatch(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	structured := testDefinition("structured")
	structured.InputSchema = []byte(`{"type": "object"}`)
	_, err := r.Register(ctx, structured)
	require.NoError(t, err)

	conv := core.NewConversation().Append(core.RoleUser, "free text")
	ag, err := r.ResolveHandler(ctx, conv)
	require.NoError(t, err)
	assert.Nil(t, ag)
}

func TestSeed(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	err := r.Seed(ctx, testDefinition("billing"), testDefinition("support"))
	require.NoError(t, err)

	_, err = r.Resolve(ctx, "billing")
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "support")
	require.NoError(t, err)

	err = r.Seed(ctx, testDefinition("billing"))
	assert.Error(t, err)
}

func TestDeactivateEvictsFromCache(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.Register(ctx, testDefinition("billing"))
	require.NoError(t, err)
	require.NoError(t, r.Deactivate(ctx, "billing"))

	// Still resolvable for provenance, but re-instantiated.
	second, err := r.Resolve(ctx, "billing")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}
