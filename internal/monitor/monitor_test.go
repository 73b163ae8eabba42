package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsdesk/internal/alert"
	"newsdesk/internal/config"
	"newsdesk/internal/domain"
	"newsdesk/internal/queue"
	"newsdesk/internal/storage"
)

type recordingChannel struct {
	events []domain.AlertEvent
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Send(_ context.Context, e domain.AlertEvent) error {
	c.events = append(c.events, e)
	return nil
}

func newTestMonitor(t *testing.T, cfg config.MonitoringConfig) (*Monitor, *storage.Store, *queue.Queue, *recordingChannel) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	q := queue.New(store, nil, 10*time.Millisecond)
	ch := &recordingChannel{}
	m := New(store, q, alert.NewDispatcher(nil, ch), cfg, nil)
	return m, store, q, ch
}

func TestHealthCheckQuietQueuesRaiseNothing(t *testing.T) {
	m, store, q, ch := newTestMonitor(t, config.MonitoringConfig{
		WaitingThreshold: 5,
		FailedThreshold:  3,
		TrackedJobs:      []string{"ingest"},
	})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "ingest", nil))
	require.NoError(t, m.RunHealthCheck(ctx))

	require.Empty(t, ch.events)
	alerts, err := store.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, alerts)

	// The snapshot is recorded regardless.
	snaps, err := store.RecentQueueSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, 1, snaps[0].Waiting)
}

func TestHealthCheckBacklogRaisesWarning(t *testing.T) {
	m, store, q, ch := newTestMonitor(t, config.MonitoringConfig{
		WaitingThreshold: 3,
		FailedThreshold:  10,
		TrackedJobs:      []string{"revalidate"},
	})
	ctx := context.Background()

	for range 3 {
		require.NoError(t, q.Enqueue(ctx, "revalidate", nil))
	}
	require.NoError(t, m.RunHealthCheck(ctx))

	require.Len(t, ch.events, 1)
	require.Equal(t, domain.SeverityWarning, ch.events[0].Severity)

	alerts, err := store.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Contains(t, alerts[0].Message, "backlog")
}

func TestHealthCheckFailuresOutrankBacklog(t *testing.T) {
	m, store, _, ch := newTestMonitor(t, config.MonitoringConfig{
		WaitingThreshold: 1,
		FailedThreshold:  2,
		TrackedJobs:      []string{"ingest"},
	})
	ctx := context.Background()
	now := time.Now()

	// Two failed jobs plus a backlog; the critical failure alert wins.
	for range 2 {
		inserted, err := store.EnqueueJob(ctx, "ingest", "{}", now, "", 0)
		require.NoError(t, err)
		require.True(t, inserted)
		job, err := store.ClaimJob(ctx, "ingest", now)
		require.NoError(t, err)
		require.NoError(t, store.FailJob(ctx, job.ID, "boom"))
	}
	_, err := store.EnqueueJob(ctx, "ingest", "{}", now, "", 0)
	require.NoError(t, err)

	require.NoError(t, m.RunHealthCheck(ctx))

	require.Len(t, ch.events, 1)
	require.Equal(t, domain.SeverityCritical, ch.events[0].Severity)
	require.Equal(t, "2", ch.events[0].Metadata["failed"])
}

func TestWithHeartbeatRecordsOutcome(t *testing.T) {
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	require.NoError(t, WithHeartbeat(ctx, store, "ingest", func(context.Context) error {
		return nil
	}))

	boom := errors.New("boom")
	err = WithHeartbeat(ctx, store, "ingest", func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	beats, err := store.RecentHeartbeats(ctx, "ingest", 10)
	require.NoError(t, err)
	require.Len(t, beats, 2)

	lastSuccess, err := store.LastHeartbeat(ctx, "ingest", domain.HeartbeatSuccess)
	require.NoError(t, err)
	require.NotNil(t, lastSuccess)

	lastError, err := store.LastHeartbeat(ctx, "ingest", domain.HeartbeatError)
	require.NoError(t, err)
	require.NotNil(t, lastError)
	require.Equal(t, "boom", lastError.Message)
}

func TestWithHeartbeatMessageStoresRunMetrics(t *testing.T) {
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	require.NoError(t, WithHeartbeatMessage(ctx, store, "ingest", func(context.Context) (string, error) {
		return `{"created":5,"skipped":2}`, nil
	}))

	lastSuccess, err := store.LastHeartbeat(ctx, "ingest", domain.HeartbeatSuccess)
	require.NoError(t, err)
	require.NotNil(t, lastSuccess)
	require.JSONEq(t, `{"created":5,"skipped":2}`, lastSuccess.Message)

	// On error the message carries the error text, not the metrics.
	boom := errors.New("boom")
	err = WithHeartbeatMessage(ctx, store, "ingest", func(context.Context) (string, error) {
		return `{"created":1}`, boom
	})
	require.ErrorIs(t, err, boom)

	lastError, err := store.LastHeartbeat(ctx, "ingest", domain.HeartbeatError)
	require.NoError(t, err)
	require.NotNil(t, lastError)
	require.Equal(t, "boom", lastError.Message)
}
