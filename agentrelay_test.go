package agentrelay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/router"
	"github.com/hupe1980/agentrelay/trigger"
)

func TestRelayEndToEnd(t *testing.T) {
	relay, err := New(func(o *Options) {
		o.DefaultAgent = "assistant"
	})
	require.NoError(t, err)
	defer relay.Close()

	_, err = relay.RegisterAgent(context.Background(), &core.AgentDefinition{
		Name:         "assistant",
		Description:  "General assistant",
		SystemPrompt: "You are helpful.",
		LLMProvider:  "mock",
	})
	require.NoError(t, err)

	reply, err := relay.Handle(context.Background(), "hello there", router.UserInfo{ID: "u-1", Name: "Alice"}, "cli")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hello there", reply)

	// The exchange is recorded in memory, newest first.
	recent := relay.Memory().GetRecent(core.MemoryConversation, 2)
	require.Len(t, recent, 2)
	assert.Contains(t, recent[0].Content, "Mock response to: hello there")
	assert.Contains(t, recent[1].Content, "hello there")
}

func TestRelaySeedsConfiguredAgents(t *testing.T) {
	cfg := config.Default()
	cfg.LLMProvider = "mock"
	cfg.Agents = []core.AgentDefinition{
		{Name: "seeded", Description: "Seeded agent", SystemPrompt: "You respond."},
	}

	relay, err := New(func(o *Options) {
		o.Config = cfg
	})
	require.NoError(t, err)
	defer relay.Close()

	ag, err := relay.Registry().Resolve(context.Background(), "seeded")
	require.NoError(t, err)
	assert.Equal(t, "seeded", ag.Definition().Name)
}

func TestRelayTriggerLifecycle(t *testing.T) {
	relay, err := New()
	require.NoError(t, err)
	defer relay.Close()

	processed := make(chan string, 1)
	relay.RegisterTrigger("ping", trigger.HandlerFuncs{
		ProcessFunc: func(ctx context.Context, event *trigger.Event) error {
			processed <- event.ID
			return nil
		},
	})

	ev := trigger.NewEvent("ping", "test", map[string]any{"n": 1})
	require.NoError(t, relay.Submit(ev))

	select {
	case id := <-processed:
		assert.Equal(t, ev.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not processed")
	}

	require.Eventually(t, func() bool {
		got, ok := relay.Events().Get(ev.ID)
		return ok && got.Status == trigger.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDefaultModelFactoryUnknownProvider(t *testing.T) {
	_, err := DefaultModelFactory(&core.AgentDefinition{Name: "x", LLMProvider: "nope"})
	assert.Error(t, err)
}
