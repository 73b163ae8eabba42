// Package queue runs durable background jobs off the sqlite jobs table.
// Producers enqueue rows; ticker-driven pollers claim and execute them
// through registered workers. Rows survive restarts, so work enqueued
// before a crash still runs afterwards.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newsdesk/internal/domain"
	"newsdesk/internal/storage"
)

// Handler executes one claimed job. A returned error fails the job row.
type Handler func(ctx context.Context, payload []byte) error

// Option adjusts one Enqueue call.
type Option func(*enqueueOpts)

type enqueueOpts struct {
	singletonKey string
	window       time.Duration
	delay        time.Duration
}

// WithSingleton collapses concurrent enqueues sharing key into a single row
// within the window.
func WithSingleton(key string, window time.Duration) Option {
	return func(o *enqueueOpts) {
		o.singletonKey = key
		o.window = window
	}
}

// WithDelay defers execution by d.
func WithDelay(d time.Duration) Option {
	return func(o *enqueueOpts) { o.delay = d }
}

type recurring struct {
	name     string
	interval time.Duration
}

// Queue coordinates workers and recurring schedules over the jobs table.
type Queue struct {
	store        *storage.Store
	logger       *slog.Logger
	pollInterval time.Duration

	mu        sync.Mutex
	workers   map[string]Handler
	schedules []recurring

	now func() time.Time
}

// New builds a queue. pollInterval bounds how quickly a freshly enqueued
// job is noticed.
func New(store *storage.Store, logger *slog.Logger, pollInterval time.Duration) *Queue {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:        store,
		logger:       logger,
		pollInterval: pollInterval,
		workers:      map[string]Handler{},
		now:          time.Now,
	}
}

// RegisterWorker binds the handler that executes jobs of this name.
func (q *Queue) RegisterWorker(name string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.workers[name] = h
}

// Every schedules a recurring job: each interval one singleton row is
// enqueued, so overlapping runs and duplicate ticks collapse. The worker
// must be registered separately.
func (q *Queue) Every(name string, interval time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.schedules = append(q.schedules, recurring{name: name, interval: interval})
}

// Enqueue adds one job row. The payload is JSON-marshaled; nil becomes {}.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts ...Option) error {
	var o enqueueOpts
	for _, opt := range opts {
		opt(&o)
	}

	body := "{}"
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", name, err)
		}
		body = string(raw)
	}

	runAt := q.now().Add(o.delay)
	inserted, err := q.store.EnqueueJob(ctx, name, body, runAt, o.singletonKey, o.window)
	if err != nil {
		return err
	}
	if !inserted {
		q.logger.Debug("singleton job suppressed", "job", name, "key", o.singletonKey)
	}
	return nil
}

// Counts reports the per-state row counts for one job name.
func (q *Queue) Counts(ctx context.Context, name string) (domain.QueueSnapshot, error) {
	return q.store.JobCounts(ctx, name)
}

// Run starts the schedule tickers and one poller per registered worker,
// blocking until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	q.mu.Lock()
	workers := make(map[string]Handler, len(q.workers))
	for name, h := range q.workers {
		workers[name] = h
	}
	schedules := append([]recurring(nil), q.schedules...)
	q.mu.Unlock()

	var wg sync.WaitGroup

	for _, sched := range schedules {
		wg.Add(1)
		go func(r recurring) {
			defer wg.Done()
			q.tickSchedule(ctx, r)
		}(sched)
	}

	for name, h := range workers {
		wg.Add(1)
		go func(name string, h Handler) {
			defer wg.Done()
			q.poll(ctx, name, h)
		}(name, h)
	}

	wg.Wait()
}

// tickSchedule enqueues the recurring job immediately and then on every
// interval. The singleton window equals the interval, so a missed or slow
// run never piles rows up.
func (q *Queue) tickSchedule(ctx context.Context, r recurring) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	enqueue := func() {
		if err := q.Enqueue(ctx, r.name, nil, WithSingleton("tick", r.interval)); err != nil {
			q.logger.Error("enqueue recurring job", "job", r.name, "error", err)
		}
	}

	enqueue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}

func (q *Queue) poll(ctx context.Context, name string, h Handler) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.drain(ctx, name, h)
		}
	}
}

// drain claims and runs due jobs until none remain or ctx ends.
func (q *Queue) drain(ctx context.Context, name string, h Handler) {
	for ctx.Err() == nil {
		job, err := q.store.ClaimJob(ctx, name, q.now())
		if err != nil {
			q.logger.Error("claim job", "job", name, "error", err)
			return
		}
		if job == nil {
			return
		}
		q.runJob(ctx, job, h)
	}
}

// RunOnce claims at most one due job of name and executes it. Returns
// whether a job ran. Used by CLI paths and tests.
func (q *Queue) RunOnce(ctx context.Context, name string) (bool, error) {
	q.mu.Lock()
	h, ok := q.workers[name]
	q.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("no worker registered for %s", name)
	}

	job, err := q.store.ClaimJob(ctx, name, q.now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	q.runJob(ctx, job, h)
	return true, nil
}

func (q *Queue) runJob(ctx context.Context, job *domain.Job, h Handler) {
	start := q.now()
	err := h(ctx, []byte(job.Payload))
	if err != nil {
		q.logger.Error("job failed", "job", job.Name, "id", job.ID,
			"duration", q.now().Sub(start), "error", err)
		if ferr := q.store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			q.logger.Error("mark job failed", "job", job.Name, "id", job.ID, "error", ferr)
		}
		return
	}

	q.logger.Debug("job completed", "job", job.Name, "id", job.ID,
		"duration", q.now().Sub(start))
	if cerr := q.store.CompleteJob(ctx, job.ID); cerr != nil {
		q.logger.Error("mark job completed", "job", job.Name, "id", job.ID, "error", cerr)
	}
}
