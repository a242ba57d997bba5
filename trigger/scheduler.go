package trigger

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/hupe1980/agentrelay/logging"
)

// Scheduler emits synthetic trigger events on cron schedules, for periodic
// work such as digests or reconciliation sweeps. Each tick submits a fresh
// event through the monitor's normal lifecycle.
type Scheduler struct {
	cron    *cron.Cron
	monitor *Monitor
	logger  *logging.RelayLogger
}

// NewScheduler creates a stopped scheduler bound to the monitor.
func NewScheduler(monitor *Monitor, logger *logging.RelayLogger) *Scheduler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Scheduler{
		cron:    cron.New(),
		monitor: monitor,
		logger:  logger.WithComponent("scheduler"),
	}
}

// Schedule registers a cron expression that submits an event of the given
// type each tick. The content map is shallow-copied per event.
func (s *Scheduler) Schedule(spec, triggerType, platform string, content map[string]any) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		payload := make(map[string]any, len(content))
		for k, v := range content {
			payload[k] = v
		}

		event := NewEvent(triggerType, platform, payload)
		if err := s.monitor.Submit(event); err != nil {
			s.logger.Warn("scheduled trigger submission failed",
				"trigger_type", triggerType, "error", err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %q: %w", spec, err)
	}

	return id, nil
}

// Remove unregisters a scheduled entry.
func (s *Scheduler) Remove(id cron.EntryID) { s.cron.Remove(id) }

// Start begins running schedules in a background goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling; already submitted events keep processing.
func (s *Scheduler) Stop() { s.cron.Stop() }
