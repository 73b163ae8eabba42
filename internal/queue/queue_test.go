package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newsdesk/internal/domain"
	"newsdesk/internal/storage"
)

func newTestQueue(t *testing.T) (*Queue, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, nil, 10*time.Millisecond), store
}

func TestRunOnceCompletesJob(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	var got []byte
	q.RegisterWorker("echo", func(_ context.Context, payload []byte) error {
		got = payload
		return nil
	})

	require.NoError(t, q.Enqueue(ctx, "echo", map[string]string{"k": "v"}))

	ran, err := q.RunOnce(ctx, "echo")
	require.NoError(t, err)
	require.True(t, ran)
	require.JSONEq(t, `{"k":"v"}`, string(got))

	counts, err := q.Counts(ctx, "echo")
	require.NoError(t, err)
	require.Equal(t, domain.QueueSnapshot{Job: "echo", Completed: 1}, counts)

	// Nothing left to claim.
	ran, err = q.RunOnce(ctx, "echo")
	require.NoError(t, err)
	require.False(t, ran)
}

func TestRunOnceRecordsFailure(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	q.RegisterWorker("boom", func(context.Context, []byte) error {
		return errors.New("exploded")
	})
	require.NoError(t, q.Enqueue(ctx, "boom", nil))

	ran, err := q.RunOnce(ctx, "boom")
	require.NoError(t, err)
	require.True(t, ran)

	counts, err := store.JobCounts(ctx, "boom")
	require.NoError(t, err)
	require.Equal(t, 1, counts.Failed)
}

func TestEnqueueSingletonCollapses(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	opt := WithSingleton("window", time.Hour)
	require.NoError(t, q.Enqueue(ctx, "refresh", nil, opt))
	require.NoError(t, q.Enqueue(ctx, "refresh", nil, opt))
	require.NoError(t, q.Enqueue(ctx, "refresh", nil, opt))

	counts, err := q.Counts(ctx, "refresh")
	require.NoError(t, err)
	require.Equal(t, 1, counts.Waiting)
}

func TestEnqueueWithDelayIsNotDueYet(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	q.RegisterWorker("later", func(context.Context, []byte) error { return nil })
	require.NoError(t, q.Enqueue(ctx, "later", nil, WithDelay(time.Hour)))

	ran, err := q.RunOnce(ctx, "later")
	require.NoError(t, err)
	require.False(t, ran)

	// Move the clock forward; the job becomes claimable.
	q.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	ran, err = q.RunOnce(ctx, "later")
	require.NoError(t, err)
	require.True(t, ran)
}

func TestRunExecutesScheduledJobs(t *testing.T) {
	q, _ := newTestQueue(t)

	done := make(chan struct{})
	var once bool
	q.RegisterWorker("tick", func(context.Context, []byte) error {
		if !once {
			once = true
			close(done)
		}
		return nil
	})
	q.Every("tick", 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go q.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled job never ran")
	}
	cancel()
}
