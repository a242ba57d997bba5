package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/store"
)

func TestAddMemoryAndGetRecent(t *testing.T) {
	s := NewStore("owner")

	assert.True(t, s.AddMemory(context.Background(), "first", core.MemoryConversation, nil, 0.5))
	assert.True(t, s.AddMemory(context.Background(), "second", core.MemoryConversation, nil, 0.5))
	assert.True(t, s.AddMemory(context.Background(), "system note", core.MemorySystem, nil, 0.5))

	recent := s.GetRecent("", 0)
	require.Len(t, recent, 3)
	assert.Equal(t, "system note", recent[0].Content)

	conversations := s.GetRecent(core.MemoryConversation, 1)
	require.Len(t, conversations, 1)
	assert.Equal(t, "second", conversations[0].Content)
}

func TestConsolidationOnOverflow(t *testing.T) {
	longTerm := store.NewLongTermStore()
	s := NewStore("owner", func(o *Options) { o.LongTerm = longTerm })
	ctx := context.Background()

	// Low-importance turns stay short-term only; fill to the cap, then one
	// more to trigger overflow.
	for i := 0; i < DefaultShortTermCap+1; i++ {
		require.True(t, s.AddMemory(ctx, fmt.Sprintf("turn %d", i), core.MemoryConversation, nil, 0.2))
	}

	assert.Equal(t, DefaultRetainCount, s.ShortTermLen())

	persisted, err := longTerm.Recent(ctx, "owner", 0)
	require.NoError(t, err)
	require.Len(t, persisted, 1)

	consolidated := persisted[0]
	assert.Equal(t, core.MemoryConsolidated, consolidated.MemoryType)
	// importance = min((N+1) * 0.1, 0.8) with N = 10.
	assert.InDelta(t, 0.8, consolidated.Importance, 1e-9)
	assert.Contains(t, consolidated.Content, "turn 10")
	assert.Contains(t, consolidated.Content, "turn 6")
	assert.NotContains(t, consolidated.Content, "turn 5")
}

type failingLongTerm struct {
	core.LongTermStore
}

func (failingLongTerm) Append(context.Context, string, core.MemoryEntry) error {
	return errors.New("disk full")
}

func TestAddMemoryBestEffortOnConsolidationFailure(t *testing.T) {
	s := NewStore("owner", func(o *Options) { o.LongTerm = failingLongTerm{} })
	ctx := context.Background()

	for i := 0; i < DefaultShortTermCap; i++ {
		require.True(t, s.AddMemory(ctx, fmt.Sprintf("turn %d", i), core.MemoryConversation, nil, 0.2))
	}

	// The overflowing add fails consolidation; it must return false, not panic
	// or propagate.
	assert.False(t, s.AddMemory(ctx, "overflow", core.MemoryConversation, nil, 0.2))

	// A failed write-time promotion is equally best-effort.
	assert.False(t, s.AddMemory(ctx, "critical fact", core.MemorySystem, nil, 0.9))
}

func TestAddMemoryPromotesImportantEntries(t *testing.T) {
	longTerm := store.NewLongTermStore()
	s := NewStore("owner", func(o *Options) { o.LongTerm = longTerm })
	ctx := context.Background()

	require.True(t, s.AddMemory(ctx, "minor detail", core.MemoryConversation, nil, 0.2))
	require.True(t, s.AddMemory(ctx, "critical fact", core.MemorySystem, nil, 0.9))

	persisted, err := longTerm.Recent(ctx, "owner", 0)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "critical fact", persisted[0].Content)
	assert.Equal(t, core.MemorySystem, persisted[0].MemoryType)

	// Both entries stay in the short-term buffer regardless of promotion.
	assert.Equal(t, 2, s.ShortTermLen())
}

func TestSearchLiteralSubstring(t *testing.T) {
	longTerm := store.NewLongTermStore()
	s := NewStore("owner", func(o *Options) { o.LongTerm = longTerm })
	ctx := context.Background()

	s.AddMemory(ctx, "the invoice is overdue", core.MemoryConversation, nil, 0.2)
	s.AddMemory(ctx, "weather is sunny", core.MemoryConversation, nil, 0.2)
	require.NoError(t, longTerm.Append(ctx, "owner",
		core.NewMemoryEntry("archived invoice dispute", core.MemoryConsolidated, nil, 0.7)))

	found := s.Search(ctx, "Invoice", "")
	require.Len(t, found, 2)

	onlyConversation := s.Search(ctx, "invoice", core.MemoryConversation)
	require.Len(t, onlyConversation, 1)
	assert.Equal(t, "the invoice is overdue", onlyConversation[0].Content)
}

func TestGetRelevantRanksByOverlap(t *testing.T) {
	s := NewStore("owner")
	ctx := context.Background()

	// High overlap with the query vs almost none.
	s.AddMemory(ctx, "billing balance account", core.MemoryConversation, nil, 0.1)
	s.AddMemory(ctx, "completely unrelated gardening topic entry", core.MemoryConversation, nil, 0.9)

	got := s.GetRelevant(ctx, "billing balance account query", 1)
	require.Len(t, got, 1)
	assert.Equal(t, "billing balance account", got[0].Content)
}

func TestGetRelevantMergesLongTerm(t *testing.T) {
	longTerm := store.NewLongTermStore()
	s := NewStore("owner", func(o *Options) { o.LongTerm = longTerm })
	ctx := context.Background()

	s.AddMemory(ctx, "short term note", core.MemoryConversation, nil, 0.2)
	require.NoError(t, longTerm.Append(ctx, "owner",
		core.NewMemoryEntry("short term history summary", core.MemoryConsolidated, nil, 0.8)))

	got := s.GetRelevant(ctx, "short term", 2)
	require.Len(t, got, 2)
}

func TestOverlapScore(t *testing.T) {
	assert.InDelta(t, 1.0, overlapScore("a b", "b a"), 1e-9)
	assert.InDelta(t, 0.5, overlapScore("a b", "a c"), 1e-9)
	assert.Zero(t, overlapScore("a b", "c d"))
	assert.Zero(t, overlapScore("", "anything"))
}

func TestWorkingMemory(t *testing.T) {
	s := NewStore("owner")

	s.SetWorking("workflow", "admin-setup")
	v, ok := s.GetWorking("workflow")
	require.True(t, ok)
	assert.Equal(t, "admin-setup", v)

	setAt, ok := s.WorkingSetAt("workflow")
	require.True(t, ok)
	assert.False(t, setAt.IsZero())

	s.ClearWorking()
	_, ok = s.GetWorking("workflow")
	assert.False(t, ok)
}

func TestFormatContext(t *testing.T) {
	s := NewStore("owner")
	ctx := context.Background()

	assert.Empty(t, s.FormatContext(ctx, "query", 3))

	s.AddMemory(ctx, "customer prefers email contact", core.MemoryConversation, nil, 0.5)
	out := s.FormatContext(ctx, "customer contact", 3)
	assert.Contains(t, out, "Relevant context from memory:")
	assert.Contains(t, out, "customer prefers email contact")
}
