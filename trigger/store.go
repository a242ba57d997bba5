package trigger

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the thread-safe trigger event map. A single mutex guards all
// operations; they are short and never block on I/O. Events are removed only
// by an explicit Clear.
type Store struct {
	mu     sync.Mutex
	events map[string]*Event
	order  []string
}

// NewStore creates an empty event store.
func NewStore() *Store {
	return &Store{events: make(map[string]*Event)}
}

// Save inserts a new event.
func (s *Store) Save(event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("trigger event %s already stored", event.ID)
	}

	clone := cloneEvent(event)
	s.events[event.ID] = clone
	s.order = append(s.order, event.ID)

	return nil
}

// SetStatus transitions an event's status, enforcing monotonic order:
// pending -> processing -> completed | failed. Metadata updates (such as the
// error key) are merged in the same critical section.
func (s *Store) SetStatus(id string, status Status, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return fmt.Errorf("trigger event %s not found", id)
	}
	if !validTransition(event.Status, status) {
		return fmt.Errorf("trigger event %s: illegal transition %s -> %s", id, event.Status, status)
	}

	event.Status = status
	for k, v := range metadata {
		if event.Metadata == nil {
			event.Metadata = make(map[string]string)
		}
		event.Metadata[k] = v
	}

	return nil
}

func validTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// Get returns the event with the given id.
func (s *Store) Get(id string) (*Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return nil, false
	}

	return cloneEvent(event), true
}

// ByType returns events of one trigger type in insertion order.
func (s *Store) ByType(triggerType string) []*Event {
	return s.filter(func(e *Event) bool { return e.TriggerType == triggerType })
}

// ByPlatform returns events of one platform in insertion order.
func (s *Store) ByPlatform(platform string) []*Event {
	return s.filter(func(e *Event) bool { return e.Platform == platform })
}

// InRange returns events whose timestamp falls in [from, to), sorted by
// timestamp ascending.
func (s *Store) InRange(from, to time.Time) []*Event {
	out := s.filter(func(e *Event) bool {
		return !e.Timestamp.Before(from) && e.Timestamp.Before(to)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	return out
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.events)
}

// Clear removes all stored events.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string]*Event)
	s.order = nil
}

func (s *Store) filter(keep func(*Event) bool) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Event
	for _, id := range s.order {
		if event := s.events[id]; keep(event) {
			out = append(out, cloneEvent(event))
		}
	}

	return out
}

func cloneEvent(e *Event) *Event {
	clone := *e
	if e.Metadata != nil {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}
