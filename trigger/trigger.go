// Package trigger implements the asynchronous trigger subsystem: inbound
// platform events move through a pending/processing/completed/failed
// lifecycle, dispatched to type-bound handlers by a bounded worker pool.
package trigger

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of a trigger event. Transitions are
// monotonic: pending -> processing -> completed | failed, never reverted.
type Status string

// Trigger event statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Event is one unit of inbound platform activity.
type Event struct {
	ID          string            `json:"id"`
	TriggerType string            `json:"trigger_type"`
	Platform    string            `json:"platform"`
	Timestamp   time.Time         `json:"timestamp"`
	Content     map[string]any    `json:"content,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Status      Status            `json:"status"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewEventID returns a lexicographically sortable unique event id.
func NewEventID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewEvent creates a pending event with a generated ULID.
func NewEvent(triggerType, platform string, content map[string]any) *Event {
	return &Event{
		ID:          NewEventID(),
		TriggerType: triggerType,
		Platform:    platform,
		Timestamp:   time.Now().UTC(),
		Content:     content,
		Metadata:    make(map[string]string),
		Status:      StatusPending,
	}
}

// Handler is bound to a trigger type. Validate rejects malformed events
// before Process runs; a false return finalizes the event as failed.
type Handler interface {
	Validate(ctx context.Context, event *Event) bool
	Process(ctx context.Context, event *Event) error
}

// HandlerFuncs adapts two plain functions into a Handler. A nil Validate
// accepts every event.
type HandlerFuncs struct {
	ValidateFunc func(ctx context.Context, event *Event) bool
	ProcessFunc  func(ctx context.Context, event *Event) error
}

// Validate implements Handler.
func (h HandlerFuncs) Validate(ctx context.Context, event *Event) bool {
	if h.ValidateFunc == nil {
		return true
	}
	return h.ValidateFunc(ctx, event)
}

// Process implements Handler.
func (h HandlerFuncs) Process(ctx context.Context, event *Event) error {
	if h.ProcessFunc == nil {
		return nil
	}
	return h.ProcessFunc(ctx, event)
}
