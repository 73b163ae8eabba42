package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsdesk/internal/domain"
)

const sourceColumns = `id, name, homepage, rss_url, scrape_url, language, trusted,
	enabled, blacklisted, priority, last_status, last_status_code, last_error,
	last_fetch_at, last_success_at, failure_streak, created_at, updated_at`

// InsertSource creates a new source row.
func (s *Store) InsertSource(ctx context.Context, src *domain.Source) error {
	if !src.Fetchable() {
		return errors.New("source needs an RSS URL or a scrape URL")
	}

	now := nowMilli()
	if src.LastStatus == "" {
		src.LastStatus = domain.SourceUnknown
	}

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO sources
			(name, homepage, rss_url, scrape_url, language, trusted, enabled,
			 blacklisted, priority, last_status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		src.Name, src.Homepage, src.RSSURL, src.ScrapeURL, string(src.Language),
		boolInt(src.Trusted), boolInt(src.Enabled), boolInt(src.Blacklisted),
		src.Priority, string(src.LastStatus), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}

	src.ID, _ = res.LastInsertId()
	src.CreatedAt = time.UnixMilli(now)
	src.UpdatedAt = src.CreatedAt
	return nil
}

// ImportSource inserts the source unless one with the same homepage already
// exists. Returns true when a row was created.
func (s *Store) ImportSource(ctx context.Context, src *domain.Source) (bool, error) {
	var exists int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sources WHERE homepage = ?`, src.Homepage).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check homepage: %w", err)
	}
	if exists > 0 {
		return false, nil
	}
	if err := s.InsertSource(ctx, src); err != nil {
		return false, err
	}
	return true, nil
}

// GetSource retrieves one source by id.
func (s *Store) GetSource(ctx context.Context, id int64) (*domain.Source, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

// ListActiveSources returns enabled, non-blacklisted sources ordered by
// ascending priority (highest-priority sources processed first).
func (s *Store) ListActiveSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+sourceColumns+` FROM sources
		WHERE enabled = 1 AND blacklisted = 0
		ORDER BY priority ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

// MarkSourceSuccess records a successful fetch: OK status, refreshed
// timestamps, failure streak reset.
func (s *Store) MarkSourceSuccess(ctx context.Context, id int64, statusCode int) error {
	now := nowMilli()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sources SET
			last_status = ?, last_status_code = ?, last_error = '',
			last_fetch_at = ?, last_success_at = ?, failure_streak = 0,
			updated_at = ?
		WHERE id = ?`,
		string(domain.SourceOK), statusCode, now, now, now, id)
	if err != nil {
		return fmt.Errorf("mark source success: %w", err)
	}
	return nil
}

// MarkSourceFailure records a failed fetch and increments the streak.
func (s *Store) MarkSourceFailure(ctx context.Context, id int64, statusCode int, message string) error {
	now := nowMilli()
	_, err := s.DB.ExecContext(ctx, `
		UPDATE sources SET
			last_status = ?, last_status_code = ?, last_error = ?,
			last_fetch_at = ?, failure_streak = failure_streak + 1,
			updated_at = ?
		WHERE id = ?`,
		string(domain.SourceError), statusCode, message, now, now, id)
	if err != nil {
		return fmt.Errorf("mark source failure: %w", err)
	}
	return nil
}

// SetSourceEnabled toggles a source. Disabling demotes its scheduled
// articles back to the review state.
func (s *Store) SetSourceEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sources SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolInt(enabled), nowMilli(), id)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if !enabled {
		return s.DemoteScheduled(ctx, id)
	}
	return nil
}

// SetSourceBlacklisted flags a source. Blacklisting demotes its scheduled
// articles back to the review state.
func (s *Store) SetSourceBlacklisted(ctx context.Context, id int64, blacklisted bool) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sources SET blacklisted = ?, updated_at = ? WHERE id = ?`,
		boolInt(blacklisted), nowMilli(), id)
	if err != nil {
		return fmt.Errorf("set blacklisted: %w", err)
	}
	if blacklisted {
		return s.DemoteScheduled(ctx, id)
	}
	return nil
}

// DemoteScheduled force-reverts a source's SCHEDULED articles to REVIEWED,
// clearing their scheduling fields.
func (s *Store) DemoteScheduled(ctx context.Context, sourceID int64) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE articles SET status = ?, scheduled_for = NULL, updated_at = ?
		WHERE source_id = ? AND status = ?`,
		string(domain.StatusReviewed), nowMilli(), sourceID, string(domain.StatusScheduled))
	if err != nil {
		return fmt.Errorf("demote scheduled: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*domain.Source, error) {
	var (
		src                       domain.Source
		lang, status              string
		trusted, enabled, blocked int
		lastFetch, lastSuccess    sql.NullInt64
		createdAt, updatedAt      int64
	)
	err := row.Scan(
		&src.ID, &src.Name, &src.Homepage, &src.RSSURL, &src.ScrapeURL, &lang,
		&trusted, &enabled, &blocked, &src.Priority, &status,
		&src.LastStatusCode, &src.LastError, &lastFetch, &lastSuccess,
		&src.FailureStreak, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}

	src.Language = domain.Language(lang)
	src.LastStatus = domain.SourceStatus(status)
	src.Trusted = trusted == 1
	src.Enabled = enabled == 1
	src.Blacklisted = blocked == 1
	src.LastFetchAt = timeFromMilli(lastFetch)
	src.LastSuccessAt = timeFromMilli(lastSuccess)
	src.CreatedAt = time.UnixMilli(createdAt)
	src.UpdatedAt = time.UnixMilli(updatedAt)
	return &src, nil
}
