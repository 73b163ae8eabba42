package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsdesk/internal/domain"
)

// EnqueueJob inserts a waiting job row. When singletonKey is non-empty the
// insert is suppressed if a live job with the same name and key was created
// within the window, so concurrent producers collapse to one row. Returns
// whether a row was actually inserted.
func (s *Store) EnqueueJob(ctx context.Context, name, payload string, runAt time.Time, singletonKey string, window time.Duration) (bool, error) {
	if payload == "" {
		payload = "{}"
	}
	now := nowMilli()

	var res sql.Result
	var err error
	if singletonKey == "" {
		res, err = s.DB.ExecContext(ctx, `
			INSERT INTO jobs (name, payload, state, singleton_key, run_at, created_at)
			VALUES (?, ?, 'waiting', '', ?, ?)`,
			name, payload, runAt.UnixMilli(), now)
	} else {
		cutoff := now - window.Milliseconds()
		res, err = s.DB.ExecContext(ctx, `
			INSERT INTO jobs (name, payload, state, singleton_key, run_at, created_at)
			SELECT ?, ?, 'waiting', ?, ?, ?
			WHERE NOT EXISTS (
				SELECT 1 FROM jobs
				WHERE name = ? AND singleton_key = ?
				  AND state IN ('waiting', 'active')
				  AND created_at > ?
			)`,
			name, payload, singletonKey, runAt.UnixMilli(), now,
			name, singletonKey, cutoff)
	}
	if err != nil {
		return false, fmt.Errorf("enqueue job %s: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue job %s: %w", name, err)
	}
	return n > 0, nil
}

// ClaimJob picks the oldest due waiting job for name and flips it to active.
// At most one job per name runs at a time; the conditional update makes the
// claim safe against concurrent pollers. Returns nil when nothing is due.
func (s *Store) ClaimJob(ctx context.Context, name string, now time.Time) (*domain.Job, error) {
	for {
		var id int64
		err := s.DB.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE name = ? AND state = 'waiting' AND run_at <= ?
			  AND NOT EXISTS (SELECT 1 FROM jobs WHERE name = ? AND state = 'active')
			ORDER BY run_at ASC, id ASC LIMIT 1`,
			name, now.UnixMilli(), name).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("claim job %s: %w", name, err)
		}

		res, err := s.DB.ExecContext(ctx, `
			UPDATE jobs SET state = 'active', started_at = ?
			WHERE id = ? AND state = 'waiting'`,
			nowMilli(), id)
		if err != nil {
			return nil, fmt.Errorf("claim job %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Another poller won the row; try the next candidate.
			continue
		}
		return s.getJob(ctx, id)
	}
}

// CompleteJob marks an active job done.
func (s *Store) CompleteJob(ctx context.Context, id int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET state = 'completed', finished_at = ?, error = ''
		WHERE id = ? AND state = 'active'`,
		nowMilli(), id)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", id, err)
	}
	return nil
}

// FailJob marks an active job failed with its error message.
func (s *Store) FailJob(ctx context.Context, id int64, message string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET state = 'failed', finished_at = ?, error = ?
		WHERE id = ? AND state = 'active'`,
		nowMilli(), message, id)
	if err != nil {
		return fmt.Errorf("fail job %d: %w", id, err)
	}
	return nil
}

// JobCounts returns the per-state counts for one job name.
func (s *Store) JobCounts(ctx context.Context, name string) (domain.QueueSnapshot, error) {
	snap := domain.QueueSnapshot{Job: name}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM jobs WHERE name = ? GROUP BY state`, name)
	if err != nil {
		return snap, fmt.Errorf("job counts %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return snap, fmt.Errorf("scan job counts: %w", err)
		}
		switch domain.JobState(state) {
		case domain.JobWaiting:
			snap.Waiting = count
		case domain.JobActive:
			snap.Active = count
		case domain.JobCompleted:
			snap.Completed = count
		case domain.JobFailed:
			snap.Failed = count
		}
	}
	return snap, rows.Err()
}

// PruneJobs deletes completed jobs finished before the cutoff.
func (s *Store) PruneJobs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM jobs WHERE state = 'completed' AND finished_at < ?`,
		before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) getJob(ctx context.Context, id int64) (*domain.Job, error) {
	var (
		j                     domain.Job
		runAt, createdAt      int64
		startedAt, finishedAt sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, name, payload, state, singleton_key, run_at, created_at, started_at, finished_at, error
		FROM jobs WHERE id = ?`, id).
		Scan(&j.ID, &j.Name, &j.Payload, &j.State, &j.SingletonKey,
			&runAt, &createdAt, &startedAt, &finishedAt, &j.Error)
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	j.RunAt = time.UnixMilli(runAt)
	j.CreatedAt = time.UnixMilli(createdAt)
	j.StartedAt = timeFromMilli(startedAt)
	j.FinishedAt = timeFromMilli(finishedAt)
	return &j, nil
}
