// Package memory implements the tiered memory subsystem: a bounded
// short-term buffer with automatic consolidation into long-term storage, a
// working-memory key/value scratchpad and lexical relevance retrieval.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// Consolidation defaults. The short-term buffer holds at most ShortTermCap
// conversation entries; overflow folds the most recent ConsolidateWindow
// entries into one consolidated entry and trims the buffer to RetainCount.
const (
	DefaultShortTermCap      = 10
	DefaultConsolidateWindow = 5
	DefaultRetainCount       = 5

	// Entries at or below this importance stay short-term only; above it
	// they are persisted to long-term storage at write time, and
	// consolidated entries are promoted rather than discarded.
	promotionThreshold = 0.3

	importanceCeiling = 0.8
)

// Options configure a memory Store.
type Options struct {
	ShortTermCap      int
	ConsolidateWindow int
	RetainCount       int
	LongTerm          core.LongTermStore
	Logger            *logging.RelayLogger
}

// Store is the per-owner tiered memory store. All operations are guarded by
// a single mutex; they are short and never block on model calls.
type Store struct {
	mu        sync.Mutex
	ownerID   string
	shortTerm []core.MemoryEntry
	working   map[string]workingItem

	shortTermCap      int
	consolidateWindow int
	retainCount       int

	longTerm core.LongTermStore
	logger   *logging.RelayLogger
}

// NewStore creates a memory store for one owner (a conversation, user or
// agent id). Without a long-term backend, consolidated entries above the
// promotion threshold are dropped with a warning.
func NewStore(ownerID string, optFns ...func(o *Options)) *Store {
	opts := Options{
		ShortTermCap:      DefaultShortTermCap,
		ConsolidateWindow: DefaultConsolidateWindow,
		RetainCount:       DefaultRetainCount,
		Logger:            logging.NewNopLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{
		ownerID:           ownerID,
		working:           make(map[string]workingItem),
		shortTermCap:      opts.ShortTermCap,
		consolidateWindow: opts.ConsolidateWindow,
		retainCount:       opts.RetainCount,
		longTerm:          opts.LongTerm,
		logger:            opts.Logger.WithComponent("memory"),
	}
}

// AddMemory appends an entry to the short-term buffer, persisting it to
// long-term storage immediately when its importance exceeds the promotion
// threshold, and consolidating on overflow. It never propagates failures to
// the caller: memory loss must not abort the primary request, so errors are
// logged and false is returned.
func (s *Store) AddMemory(
	ctx context.Context,
	content string,
	memType core.MemoryType,
	metadata map[string]string,
	importance float64,
) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := core.NewMemoryEntry(content, memType, metadata, importance)
	s.shortTerm = append(s.shortTerm, entry)

	ok := true
	if importance > promotionThreshold && s.longTerm != nil {
		if err := s.longTerm.Append(ctx, s.ownerID, entry); err != nil {
			s.logger.Warn("long-term write failed",
				"owner_id", s.ownerID, "error", err)
			ok = false
		}
	}

	if s.conversationCountLocked() > s.shortTermCap {
		if err := s.consolidateLocked(ctx); err != nil {
			s.logger.Warn("memory consolidation failed",
				"owner_id", s.ownerID, "error", err)
			return false
		}
	}

	return ok
}

func (s *Store) conversationCountLocked() int {
	n := 0
	for _, e := range s.shortTerm {
		if e.MemoryType == core.MemoryConversation {
			n++
		}
	}
	return n
}

// consolidateLocked folds the most recent consolidation window into one
// consolidated entry, promotes it to long-term storage when important
// enough, and trims the buffer. Promotion is one-way; consolidated entries
// are never consolidated again.
func (s *Store) consolidateLocked(ctx context.Context) error {
	window := s.consolidateWindow
	if window > len(s.shortTerm) {
		window = len(s.shortTerm)
	}

	parts := make([]string, 0, window)
	for _, e := range s.shortTerm[len(s.shortTerm)-window:] {
		parts = append(parts, e.Content)
	}

	importance := float64(len(s.shortTerm)) * 0.1
	if importance > importanceCeiling {
		importance = importanceCeiling
	}

	consolidated := core.NewMemoryEntry(
		strings.Join(parts, "\n"),
		core.MemoryConsolidated,
		map[string]string{"owner_id": s.ownerID},
		importance,
	)

	if importance > promotionThreshold {
		if s.longTerm == nil {
			s.logger.Warn("no long-term store configured, dropping consolidated entry",
				"owner_id", s.ownerID, "importance", importance)
		} else if err := s.longTerm.Append(ctx, s.ownerID, consolidated); err != nil {
			return &core.ConsolidationError{OwnerID: s.ownerID, Err: err}
		}
	}

	// Trim to the most recent retained entries.
	if len(s.shortTerm) > s.retainCount {
		retained := make([]core.MemoryEntry, s.retainCount)
		copy(retained, s.shortTerm[len(s.shortTerm)-s.retainCount:])
		s.shortTerm = retained
	}

	return nil
}

// GetRecent returns the newest short-term entries first, optionally filtered
// by type. A limit of 0 or less returns everything.
func (s *Store) GetRecent(memType core.MemoryType, limit int) []core.MemoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.MemoryEntry, 0, len(s.shortTerm))
	for i := len(s.shortTerm) - 1; i >= 0; i-- {
		e := s.shortTerm[i]
		if memType != "" && e.MemoryType != memType {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out
}

// Search performs a literal, case-insensitive substring match over short-term
// and long-term entries. Semantic retrieval belongs to an external vector
// store, not here.
func (s *Store) Search(ctx context.Context, substring string, memType core.MemoryType) []core.MemoryEntry {
	s.mu.Lock()
	needle := strings.ToLower(substring)
	var out []core.MemoryEntry
	for _, e := range s.shortTerm {
		if memType != "" && e.MemoryType != memType {
			continue
		}
		if strings.Contains(strings.ToLower(e.Content), needle) {
			out = append(out, e)
		}
	}
	s.mu.Unlock()

	if s.longTerm != nil {
		persisted, err := s.longTerm.SearchContent(ctx, s.ownerID, substring)
		if err != nil {
			s.logger.Warn("long-term search failed", "owner_id", s.ownerID, "error", err)
		} else {
			for _, e := range persisted {
				if memType != "" && e.MemoryType != memType {
					continue
				}
				out = append(out, e)
			}
		}
	}

	return out
}

// scored pairs an entry with its lexical relevance for ranking.
type scored struct {
	entry     core.MemoryEntry
	relevance float64
}

// GetRelevant merges short-term entries scored by lexical word overlap with
// the most important long-term entries, re-sorts by (relevance, importance)
// descending and truncates to limit.
func (s *Store) GetRelevant(ctx context.Context, query string, limit int) []core.MemoryEntry {
	if limit <= 0 {
		limit = DefaultRetainCount
	}

	s.mu.Lock()
	candidates := make([]scored, 0, len(s.shortTerm))
	for _, e := range s.shortTerm {
		candidates = append(candidates, scored{entry: e, relevance: overlapScore(query, e.Content)})
	}
	s.mu.Unlock()

	if s.longTerm != nil {
		persisted, err := s.longTerm.Recent(ctx, s.ownerID, limit)
		if err != nil {
			s.logger.Warn("long-term retrieval failed", "owner_id", s.ownerID, "error", err)
		} else {
			for _, e := range persisted {
				candidates = append(candidates, scored{entry: e, relevance: overlapScore(query, e.Content)})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].relevance != candidates[j].relevance {
			return candidates[i].relevance > candidates[j].relevance
		}
		return candidates[i].entry.Importance > candidates[j].entry.Importance
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]core.MemoryEntry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}

	return out
}

// overlapScore is the lexical relevance of content against query:
// |words(query) ∩ words(content)| / max(|words(query)|, |words(content)|).
func overlapScore(query, content string) float64 {
	qWords := wordSet(query)
	cWords := wordSet(content)
	if len(qWords) == 0 || len(cWords) == 0 {
		return 0
	}

	common := 0
	for w := range qWords {
		if _, ok := cWords[w]; ok {
			common++
		}
	}

	denom := len(qWords)
	if len(cWords) > denom {
		denom = len(cWords)
	}

	return float64(common) / float64(denom)
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// workingItem is one scratchpad slot with its write time.
type workingItem struct {
	value any
	setAt time.Time
}

// SetWorking stores a value in the working-memory scratchpad, stamping the
// write time.
func (s *Store) SetWorking(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working[key] = workingItem{value: value, setAt: time.Now().UTC()}
}

// GetWorking reads a value from the working-memory scratchpad.
func (s *Store) GetWorking(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.working[key]
	return item.value, ok
}

// WorkingSetAt returns when a working-memory key was last written.
func (s *Store) WorkingSetAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.working[key]
	return item.setAt, ok
}

// ClearWorking empties the working-memory scratchpad.
func (s *Store) ClearWorking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working = make(map[string]workingItem)
}

// ShortTermLen returns the current short-term buffer length.
func (s *Store) ShortTermLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shortTerm)
}

// FormatContext renders relevant entries into a context block suitable for
// prompt injection. Returns the empty string when nothing is relevant.
func (s *Store) FormatContext(ctx context.Context, query string, limit int) string {
	entries := s.GetRelevant(ctx, query, limit)
	if len(entries) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Relevant context from memory:\n")
	for _, e := range entries {
		sb.WriteString("- ")
		sb.WriteString(e.Content)
		sb.WriteString("\n")
	}

	return sb.String()
}
