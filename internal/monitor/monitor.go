// Package monitor watches the background pipeline: it snapshots queue
// depths, raises threshold alerts and records per-run heartbeats.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"newsdesk/internal/alert"
	"newsdesk/internal/config"
	"newsdesk/internal/domain"
	"newsdesk/internal/queue"
	"newsdesk/internal/storage"
)

// Monitor runs the periodic health check.
type Monitor struct {
	store      *storage.Store
	queue      *queue.Queue
	dispatcher *alert.Dispatcher
	logger     *slog.Logger

	waitingThreshold int
	failedThreshold  int
	trackedJobs      []string
}

// New builds a monitor from configuration. dispatcher may be nil, in which
// case alerts are recorded but not delivered anywhere.
func New(store *storage.Store, q *queue.Queue, dispatcher *alert.Dispatcher,
	cfg config.MonitoringConfig, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:            store,
		queue:            q,
		dispatcher:       dispatcher,
		logger:           logger,
		waitingThreshold: cfg.WaitingThreshold,
		failedThreshold:  cfg.FailedThreshold,
		trackedJobs:      cfg.TrackedJobs,
	}
}

// RunHealthCheck snapshots every tracked queue and raises alerts on
// threshold breaches. One queue failing to report does not stop the rest.
func (m *Monitor) RunHealthCheck(ctx context.Context) error {
	var firstErr error
	for _, job := range m.trackedJobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.checkQueue(ctx, job); err != nil {
			m.logger.Error("queue health check failed", "job", job, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Monitor) checkQueue(ctx context.Context, job string) error {
	snap, err := m.queue.Counts(ctx, job)
	if err != nil {
		return err
	}
	if err := m.store.InsertQueueSnapshot(ctx, snap); err != nil {
		return err
	}

	// The failed threshold outranks the waiting one: a failure pile-up is
	// actionable, a backlog may clear itself.
	switch {
	case m.failedThreshold > 0 && snap.Failed >= m.failedThreshold:
		return m.raise(ctx, snap, domain.SeverityCritical,
			fmt.Sprintf("queue %s has %d failed jobs", job, snap.Failed))
	case m.waitingThreshold > 0 && snap.Waiting >= m.waitingThreshold:
		return m.raise(ctx, snap, domain.SeverityWarning,
			fmt.Sprintf("queue %s backlog at %d waiting jobs", job, snap.Waiting))
	}
	return nil
}

// raise writes the durable alert record first; delivery is best-effort on
// top of it.
func (m *Monitor) raise(ctx context.Context, snap domain.QueueSnapshot, severity domain.AlertSeverity, message string) error {
	event := domain.AlertEvent{
		Channel:  "monitor",
		Severity: severity,
		Subject:  "queue health: " + snap.Job,
		Message:  message,
		Metadata: map[string]string{
			"job":     snap.Job,
			"waiting": strconv.Itoa(snap.Waiting),
			"active":  strconv.Itoa(snap.Active),
			"failed":  strconv.Itoa(snap.Failed),
		},
	}
	if err := m.store.InsertAlertEvent(ctx, event); err != nil {
		return err
	}

	m.logger.Warn("alert raised", "job", snap.Job, "severity", severity, "message", message)
	if m.dispatcher != nil {
		m.dispatcher.Dispatch(ctx, event)
	}
	return nil
}

// WithHeartbeat records a heartbeat around fn: running at start, then
// success or error with the message. fn's error is re-raised so queue
// bookkeeping still sees the failure.
func WithHeartbeat(ctx context.Context, store *storage.Store, job string, fn func(ctx context.Context) error) error {
	return WithHeartbeatMessage(ctx, store, job, func(ctx context.Context) (string, error) {
		return "", fn(ctx)
	})
}

// WithHeartbeatMessage is WithHeartbeat for runs that produce metrics: on
// success the returned message (typically serialized run stats) is stored
// on the heartbeat row; on error the error text is stored instead.
func WithHeartbeatMessage(ctx context.Context, store *storage.Store, job string, fn func(ctx context.Context) (string, error)) error {
	id, err := store.StartHeartbeat(ctx, job)
	if err != nil {
		return fmt.Errorf("start heartbeat %s: %w", job, err)
	}

	message, runErr := fn(ctx)
	status := domain.HeartbeatSuccess
	if runErr != nil {
		status = domain.HeartbeatError
		message = runErr.Error()
	}
	if err := store.FinishHeartbeat(ctx, id, status, message); err != nil {
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("finish heartbeat %s: %w", job, err)
	}
	return runErr
}
