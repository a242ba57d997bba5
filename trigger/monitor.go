package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/logging"
)

// DefaultWorkers is the default size of the dispatch worker pool.
const DefaultWorkers = 8

// MonitorOptions configure a Monitor.
type MonitorOptions struct {
	Workers   int
	QueueSize int
	Logger    *logging.RelayLogger
}

// Monitor dispatches submitted events to type-bound handlers through a
// bounded worker pool, so a burst of events queues instead of fanning out
// into unbounded goroutines. Submission is fire-and-forget: handler failures
// are recorded into the event's metadata, never returned to the submitter.
type Monitor struct {
	store    *Store
	handlers map[string]Handler
	mu       sync.RWMutex

	queue    chan *Event
	inflight sync.Map // event id -> struct{}, bookkeeping only
	wg       sync.WaitGroup

	// closeMu serializes Close against in-flight Submits: Submit holds the
	// read lock across its queue send, so the queue is only closed once no
	// sender can still be inside it.
	closeMu sync.RWMutex
	closed  bool

	logger *logging.RelayLogger
}

// NewMonitor creates a monitor with a running worker pool.
func NewMonitor(store *Store, optFns ...func(o *MonitorOptions)) *Monitor {
	opts := MonitorOptions{
		Workers:   DefaultWorkers,
		QueueSize: 64,
		Logger:    logging.NewNopLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	m := &Monitor{
		store:    store,
		handlers: make(map[string]Handler),
		queue:    make(chan *Event, opts.QueueSize),
		logger:   opts.Logger.WithComponent("trigger"),
	}

	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}

	return m
}

// RegisterTrigger binds a handler to a trigger type, replacing any previous
// binding for that type.
func (m *Monitor) RegisterTrigger(triggerType string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[triggerType] = handler
}

// Submit persists the event as pending and enqueues it for background
// dispatch. The returned error covers persistence only; processing outcomes
// are reflected in the stored event's status and metadata. Submitting to a
// closed monitor fails with an error, never a panic.
func (m *Monitor) Submit(event *Event) error {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()

	if m.closed {
		return fmt.Errorf("trigger monitor stopped")
	}

	event.Status = StatusPending
	if err := m.store.Save(event); err != nil {
		return err
	}

	m.inflight.Store(event.ID, struct{}{})
	m.logger.LogTriggerEvent(event.ID, event.TriggerType, string(StatusPending))

	m.queue <- event

	return nil
}

// InFlight reports whether an event is queued or being processed.
func (m *Monitor) InFlight(id string) bool {
	_, ok := m.inflight.Load(id)
	return ok
}

// Close stops the worker pool after draining already queued events. It
// waits for in-flight Submit calls before closing the queue, so concurrent
// submitters either enqueue fully or observe the closed state.
func (m *Monitor) Close() {
	m.closeMu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.closeMu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) worker() {
	defer m.wg.Done()

	for event := range m.queue {
		m.dispatch(event)
	}
}

// dispatch runs one event through its handler's validate/process sequence,
// finalizing the stored status. A handler panic is captured as a failure.
func (m *Monitor) dispatch(event *Event) {
	defer m.inflight.Delete(event.ID)

	ctx := context.Background()

	m.mu.RLock()
	handler, ok := m.handlers[event.TriggerType]
	m.mu.RUnlock()

	if !ok {
		m.finalize(event, StatusFailed, map[string]string{
			"error": fmt.Sprintf("no handler registered for trigger type %q", event.TriggerType),
		})
		return
	}

	if err := m.store.SetStatus(event.ID, StatusProcessing, nil); err != nil {
		m.logger.Warn("failed to mark event processing", "event_id", event.ID, "error", err)
		return
	}
	m.logger.LogTriggerEvent(event.ID, event.TriggerType, string(StatusProcessing))

	if !m.safeValidate(ctx, handler, event) {
		m.finalize(event, StatusFailed, map[string]string{"error": "validation failed"})
		return
	}

	if err := m.safeProcess(ctx, handler, event); err != nil {
		m.finalize(event, StatusFailed, map[string]string{"error": err.Error()})
		return
	}

	m.finalize(event, StatusCompleted, nil)
}

func (m *Monitor) finalize(event *Event, status Status, metadata map[string]string) {
	if err := m.store.SetStatus(event.ID, status, metadata); err != nil {
		m.logger.Warn("failed to finalize event", "event_id", event.ID, "error", err)
		return
	}
	m.logger.LogTriggerEvent(event.ID, event.TriggerType, string(status))
}

func (m *Monitor) safeValidate(ctx context.Context, handler Handler, event *Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("trigger validate panicked", "event_id", event.ID, "panic", r)
			ok = false
		}
	}()

	return handler.Validate(ctx, event)
}

func (m *Monitor) safeProcess(ctx context.Context, handler Handler, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler.Process(ctx, event)
}
