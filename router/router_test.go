package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/memory"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/registry"
	"github.com/hupe1980/agentrelay/store"
)

func newTestOrchestrator(t *testing.T, defaultAgent string) (*Orchestrator, *registry.Registry, map[string]*model.MockModel) {
	t.Helper()

	models := make(map[string]*model.MockModel)
	factory := func(def *core.AgentDefinition) (model.Model, error) {
		m, ok := models[def.Name]
		if !ok {
			m = model.NewMockModel(def.Name)
			models[def.Name] = m
		}
		return m, nil
	}

	reg := registry.New(store.NewDefinitionStore(), factory, func(o *registry.Options) {
		o.Executions = store.NewExecutionStore()
	})
	mem := memory.NewStore("router-test", func(o *memory.Options) {
		o.LongTerm = store.NewLongTermStore()
	})

	orch := New(reg, mem, func(o *Options) { o.DefaultAgent = defaultAgent })

	return orch, reg, models
}

func register(t *testing.T, reg *registry.Registry, models map[string]*model.MockModel, name string, inputSchema []byte) {
	t.Helper()

	models[name] = model.NewMockModel(name)
	def := &core.AgentDefinition{
		Name:         name,
		SystemPrompt: "You are " + name + ".",
		InputSchema:  inputSchema,
		IsActive:     true,
	}
	_, err := reg.Register(context.Background(), def)
	require.NoError(t, err)
}

func TestExplicitAddressRouting(t *testing.T) {
	orch, reg, models := newTestOrchestrator(t, "")
	register(t, reg, models, "billing", nil)
	models["billing"].AddResponse("what is my balance", "Your balance is 42 credits.")

	resp, err := orch.Handle(context.Background(), "@billing what is my balance",
		UserInfo{ID: "user-1"}, "telegram")
	require.NoError(t, err)
	assert.Equal(t, "Your balance is 42 credits.", resp)
}

func TestExplicitAddressUnknownAgent(t *testing.T) {
	orch, reg, models := newTestOrchestrator(t, "")
	register(t, reg, models, "billing", nil)

	_, err := orch.Handle(context.Background(), "@shipping where is my parcel",
		UserInfo{ID: "user-1"}, "telegram")

	var nf *core.AgentNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "shipping", nf.Name)
	assert.Contains(t, nf.Known, "billing")
}

func TestHandlerScanRouting(t *testing.T) {
	orch, reg, models := newTestOrchestrator(t, "")
	register(t, reg, models, "structured", []byte(`{"type": "object"}`))
	register(t, reg, models, "catchall", nil)
	models["catchall"].AddResponse("plain question", "catchall answer")

	resp, err := orch.Handle(context.Background(), "plain question",
		UserInfo{ID: "user-1"}, "telegram")
	require.NoError(t, err)
	assert.Equal(t, "catchall answer", resp)
	assert.Zero(t, models["structured"].Calls())
}

func TestDefaultAgentFallback(t *testing.T) {
	orch, reg, models := newTestOrchestrator(t, "assistant")
	register(t, reg, models, "structured", []byte(`{"type": "object"}`))
	register(t, reg, models, "assistant", []byte(`{"type": "number"}`))
	models["assistant"].AddResponse("free text", "default answer")

	// Neither schema accepts free text, so the designated default handles it.
	resp, err := orch.Handle(context.Background(), "free text",
		UserInfo{ID: "user-1"}, "telegram")
	require.NoError(t, err)
	assert.Equal(t, "default answer", resp)
}

func TestNoHandlerAndNoDefault(t *testing.T) {
	orch, reg, models := newTestOrchestrator(t, "")
	register(t, reg, models, "structured", []byte(`{"type": "object"}`))

	_, err := orch.Handle(context.Background(), "free text",
		UserInfo{ID: "user-1"}, "telegram")
	assert.Error(t, err)
}

func TestExchangeWrittenToMemory(t *testing.T) {
	orch, reg, models := newTestOrchestrator(t, "")
	register(t, reg, models, "billing", nil)
	models["billing"].AddResponse("what is my balance", "42 credits")

	_, err := orch.Handle(context.Background(), "@billing what is my balance",
		UserInfo{ID: "user-1"}, "telegram")
	require.NoError(t, err)

	recent := orch.memory.GetRecent(core.MemoryConversation, 0)
	require.Len(t, recent, 2)

	// Newest first: the outgoing response, then the incoming message.
	assert.Equal(t, "42 credits", recent[0].Content)
	assert.Equal(t, "outgoing", recent[0].Metadata["direction"])
	assert.Equal(t, "telegram", recent[0].Metadata["platform"])

	assert.Equal(t, "what is my balance", recent[1].Content)
	assert.Equal(t, "incoming", recent[1].Metadata["direction"])
	assert.Equal(t, "user-1", recent[1].Metadata["user_id"])
}

func TestConversationContinuity(t *testing.T) {
	orch, reg, models := newTestOrchestrator(t, "")
	register(t, reg, models, "billing", nil)
	models["billing"].AddResponse("first", "one")
	models["billing"].AddResponse("second", "two")

	_, err := orch.Handle(context.Background(), "@billing first", UserInfo{ID: "user-1"}, "telegram")
	require.NoError(t, err)
	_, err = orch.Handle(context.Background(), "@billing second", UserInfo{ID: "user-1"}, "telegram")
	require.NoError(t, err)

	sess := orch.sessions.get("user-1", "telegram")
	// first, one, second, two
	assert.Len(t, sess.conversation.Messages, 4)
}

func TestConcurrentHandleSameSession(t *testing.T) {
	orch, reg, models := newTestOrchestrator(t, "")
	register(t, reg, models, "billing", nil)
	models["billing"].AddResponse("what is my balance", "42 credits")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.Handle(context.Background(), "@billing what is my balance",
				UserInfo{ID: "user-1"}, "telegram")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Every exchange landed intact: one user and one assistant turn each.
	sess := orch.sessions.get("user-1", "telegram")
	assert.Len(t, sess.conversation.Messages, 16)
}

func TestMemoryContextNotPersistedInSession(t *testing.T) {
	orch, reg, models := newTestOrchestrator(t, "")
	register(t, reg, models, "catchall", nil)
	models["catchall"].AddResponse("customer contact question", "use email")
	models["catchall"].AddResponse("customer contact followup", "still email")

	orch.memory.AddMemory(context.Background(),
		"customer prefers email contact", core.MemoryConversation, nil, 0.5)

	_, err := orch.Handle(context.Background(), "customer contact question",
		UserInfo{ID: "user-1"}, "telegram")
	require.NoError(t, err)
	_, err = orch.Handle(context.Background(), "customer contact followup",
		UserInfo{ID: "user-1"}, "telegram")
	require.NoError(t, err)

	// Context blocks are injected per call, never into the session history.
	sess := orch.sessions.get("user-1", "telegram")
	assert.Len(t, sess.conversation.Messages, 4)
	for _, msg := range sess.conversation.Messages {
		assert.NotEqual(t, core.RoleSystem, msg.Role)
	}
}

func TestWorkflowStateWithTTL(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, "")

	orch.SetWorkflow("user-1", "telegram", "admin-setup")
	w, ok := orch.Workflow("user-1", "telegram")
	require.True(t, ok)
	assert.Equal(t, "admin-setup", w)

	// Different user sees no workflow.
	_, ok = orch.Workflow("user-2", "telegram")
	assert.False(t, ok)

	orch.ClearWorkflow("user-1", "telegram")
	_, ok = orch.Workflow("user-1", "telegram")
	assert.False(t, ok)
}

func TestSessionExpiry(t *testing.T) {
	m := newSessionMap(10 * time.Minute)
	base := time.Now()
	m.now = func() time.Time { return base }

	first := m.get("user-1", "telegram")
	first.workflow = "admin-setup"

	// Within the TTL the session (and its workflow) survives.
	base = base.Add(5 * time.Minute)
	assert.Equal(t, "admin-setup", m.get("user-1", "telegram").workflow)

	// Past the TTL a fresh session is created.
	base = base.Add(11 * time.Minute)
	assert.Empty(t, m.get("user-1", "telegram").workflow)
}

func TestParseAddress(t *testing.T) {
	name, rest, ok := parseAddress("@billing what is my balance")
	require.True(t, ok)
	assert.Equal(t, "billing", name)
	assert.Equal(t, "what is my balance", rest)

	name, rest, ok = parseAddress("@billing")
	require.True(t, ok)
	assert.Equal(t, "billing", name)
	assert.Empty(t, rest)

	_, _, ok = parseAddress("no address here")
	assert.False(t, ok)

	_, _, ok = parseAddress("@")
	assert.False(t, ok)
}
