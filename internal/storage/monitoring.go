package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"newsdesk/internal/domain"
)

const alertRetention = 500
const trendRetention = 5

// StartHeartbeat records the beginning of one job execution and returns the
// heartbeat id to finish later.
func (s *Store) StartHeartbeat(ctx context.Context, job string) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO heartbeats (job, status, started_at) VALUES (?, ?, ?)`,
		job, string(domain.HeartbeatRunning), nowMilli())
	if err != nil {
		return 0, fmt.Errorf("start heartbeat: %w", err)
	}
	return res.LastInsertId()
}

// FinishHeartbeat closes a heartbeat with its outcome and message.
func (s *Store) FinishHeartbeat(ctx context.Context, id int64, status domain.HeartbeatStatus, message string) error {
	now := nowMilli()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE heartbeats SET status = ?, finished_at = ?,
			duration_ms = ? - started_at, message = ?
		WHERE id = ?`,
		string(status), now, now, message, id)
	if err != nil {
		return fmt.Errorf("finish heartbeat: %w", err)
	}
	return nil
}

// RecentHeartbeats returns the latest heartbeats, newest first, optionally
// filtered by job name.
func (s *Store) RecentHeartbeats(ctx context.Context, job string, limit int) ([]domain.Heartbeat, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, job, status, started_at, finished_at, duration_ms, message
		FROM heartbeats`
	var args []any
	if job != "" {
		query += ` WHERE job = ?`
		args = append(args, job)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent heartbeats: %w", err)
	}
	defer rows.Close()

	var out []domain.Heartbeat
	for rows.Next() {
		var (
			h          domain.Heartbeat
			status     string
			startedAt  int64
			finishedAt sql.NullInt64
		)
		if err := rows.Scan(&h.ID, &h.Job, &status, &startedAt, &finishedAt, &h.DurationMS, &h.Message); err != nil {
			return nil, fmt.Errorf("scan heartbeat: %w", err)
		}
		h.Status = domain.HeartbeatStatus(status)
		h.StartedAt = time.UnixMilli(startedAt)
		h.FinishedAt = timeFromMilli(finishedAt)
		out = append(out, h)
	}
	return out, rows.Err()
}

// LastHeartbeat returns the most recent heartbeat for a job with the given
// status ("" for any). Nil when none exists.
func (s *Store) LastHeartbeat(ctx context.Context, job string, status domain.HeartbeatStatus) (*domain.Heartbeat, error) {
	query := `SELECT id, job, status, started_at, finished_at, duration_ms, message
		FROM heartbeats WHERE job = ?`
	args := []any{job}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY started_at DESC LIMIT 1`

	var (
		h          domain.Heartbeat
		st         string
		startedAt  int64
		finishedAt sql.NullInt64
	)
	err := s.DB.QueryRowContext(ctx, query, args...).
		Scan(&h.ID, &h.Job, &st, &startedAt, &finishedAt, &h.DurationMS, &h.Message)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last heartbeat: %w", err)
	}
	h.Status = domain.HeartbeatStatus(st)
	h.StartedAt = time.UnixMilli(startedAt)
	h.FinishedAt = timeFromMilli(finishedAt)
	return &h, nil
}

// InsertQueueSnapshot persists point-in-time queue counts.
func (s *Store) InsertQueueSnapshot(ctx context.Context, snap domain.QueueSnapshot) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO queue_snapshots (job, waiting, active, completed, failed, taken_at)
		VALUES (?,?,?,?,?,?)`,
		snap.Job, snap.Waiting, snap.Active, snap.Completed, snap.Failed, nowMilli())
	if err != nil {
		return fmt.Errorf("insert queue snapshot: %w", err)
	}
	return nil
}

// RecentQueueSnapshots returns the latest snapshots, newest first.
func (s *Store) RecentQueueSnapshots(ctx context.Context, limit int) ([]domain.QueueSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, job, waiting, active, completed, failed, taken_at
		FROM queue_snapshots ORDER BY taken_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.QueueSnapshot
	for rows.Next() {
		var (
			snap    domain.QueueSnapshot
			takenAt int64
		)
		if err := rows.Scan(&snap.ID, &snap.Job, &snap.Waiting, &snap.Active, &snap.Completed, &snap.Failed, &takenAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.TakenAt = time.UnixMilli(takenAt)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// InsertAlertEvent appends one alert and prunes the retention window.
// Alert events are never mutated afterwards.
func (s *Store) InsertAlertEvent(ctx context.Context, event domain.AlertEvent) error {
	metadata, _ := json.Marshal(event.Metadata)
	if event.Metadata == nil {
		metadata = []byte("{}")
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO alert_events (channel, severity, subject, message, metadata, created_at)
		VALUES (?,?,?,?,?,?)`,
		event.Channel, string(event.Severity), event.Subject, event.Message,
		string(metadata), nowMilli())
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	_, err = s.DB.ExecContext(ctx, `
		DELETE FROM alert_events WHERE id NOT IN (
			SELECT id FROM alert_events ORDER BY id DESC LIMIT ?)`, alertRetention)
	if err != nil {
		return fmt.Errorf("prune alerts: %w", err)
	}
	return nil
}

// RecentAlerts returns the latest alert events, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]domain.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, channel, severity, subject, message, metadata, created_at
		FROM alert_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertEvent
	for rows.Next() {
		var (
			event     domain.AlertEvent
			severity  string
			metadata  string
			createdAt int64
		)
		if err := rows.Scan(&event.ID, &event.Channel, &severity, &event.Subject, &event.Message, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		event.Severity = domain.AlertSeverity(severity)
		_ = json.Unmarshal([]byte(metadata), &event.Metadata)
		event.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, event)
	}
	return out, rows.Err()
}

// AddPushSubscription registers a push endpoint (idempotent by endpoint).
func (s *Store) AddPushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO push_subscriptions (endpoint, created_at) VALUES (?, ?)`,
		endpoint, nowMilli())
	if err != nil {
		return fmt.Errorf("add push subscription: %w", err)
	}
	return nil
}

// ListPushSubscriptions returns all registered push endpoints.
func (s *Store) ListPushSubscriptions(ctx context.Context) ([]domain.PushSubscription, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, endpoint, created_at FROM push_subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.PushSubscription
	for rows.Next() {
		var (
			sub       domain.PushSubscription
			createdAt int64
		)
		if err := rows.Scan(&sub.ID, &sub.Endpoint, &createdAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		sub.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// DeletePushSubscription removes a dead endpoint (self-healing list).
func (s *Store) DeletePushSubscription(ctx context.Context, endpoint string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

// InsertTrendSnapshot appends a trend ranking and prunes old snapshots.
func (s *Store) InsertTrendSnapshot(ctx context.Context, snap domain.TrendSnapshot) error {
	topics, _ := json.Marshal(snap.Topics)
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO trend_snapshots (computed_at, window_hours, topics) VALUES (?,?,?)`,
		nowMilli(), snap.WindowHours, string(topics))
	if err != nil {
		return fmt.Errorf("insert trend snapshot: %w", err)
	}

	_, err = s.DB.ExecContext(ctx, `
		DELETE FROM trend_snapshots WHERE id NOT IN (
			SELECT id FROM trend_snapshots ORDER BY id DESC LIMIT ?)`, trendRetention)
	if err != nil {
		return fmt.Errorf("prune trend snapshots: %w", err)
	}
	return nil
}

// LatestTrendSnapshot returns the most recent trend ranking, nil when none.
func (s *Store) LatestTrendSnapshot(ctx context.Context) (*domain.TrendSnapshot, error) {
	var (
		snap       domain.TrendSnapshot
		computedAt int64
		topics     string
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, computed_at, window_hours, topics
		FROM trend_snapshots ORDER BY id DESC LIMIT 1`).
		Scan(&snap.ID, &computedAt, &snap.WindowHours, &topics)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest trend snapshot: %w", err)
	}
	snap.ComputedAt = time.UnixMilli(computedAt)
	_ = json.Unmarshal([]byte(topics), &snap.Topics)
	return &snap, nil
}
