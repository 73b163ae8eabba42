package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"newsdesk/internal/domain"
)

// CacheEntry is one stored translation, keyed by the content hash.
type CacheEntry struct {
	Hash           string
	Provider       string
	SourceLang     string
	TargetLang     string
	SourceText     string
	TranslatedText string
}

// GetCachedTranslation looks up a translation by hash. Returns nil on miss.
func (s *Store) GetCachedTranslation(ctx context.Context, hash string) (*CacheEntry, error) {
	var e CacheEntry
	err := s.DB.QueryRowContext(ctx, `
		SELECT hash, provider, source_lang, target_lang, source_text, translated_text
		FROM translation_cache WHERE hash = ?`, hash).
		Scan(&e.Hash, &e.Provider, &e.SourceLang, &e.TargetLang, &e.SourceText, &e.TranslatedText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached translation: %w", err)
	}
	return &e, nil
}

// PutCachedTranslation stores a translation. INSERT OR IGNORE keeps the
// write idempotent under concurrent misses for the same hash: identical
// input always resolves to the same cached translation.
func (s *Store) PutCachedTranslation(ctx context.Context, e CacheEntry) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO translation_cache
			(hash, provider, source_lang, target_lang, source_text, translated_text, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		e.Hash, e.Provider, e.SourceLang, e.TargetLang, e.SourceText, e.TranslatedText, nowMilli())
	if err != nil {
		return fmt.Errorf("put cached translation: %w", err)
	}
	return nil
}

// AddUsage atomically increments the day's token counters and returns the
// new totals. Upsert-increment at the database avoids lost updates when
// concurrent translation calls land on the same day.
func (s *Store) AddUsage(ctx context.Context, day string, input, output int) (int, int, error) {
	var in, out int
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO usage_counters (day, input_tokens, output_tokens)
		VALUES (?, ?, ?)
		ON CONFLICT(day) DO UPDATE SET
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens
		RETURNING input_tokens, output_tokens`,
		day, input, output).Scan(&in, &out)
	if err != nil {
		return 0, 0, fmt.Errorf("add usage: %w", err)
	}
	return in, out, nil
}

// GetUsage returns the day's accumulated token counts.
func (s *Store) GetUsage(ctx context.Context, day string) (int, int, error) {
	var in, out int
	err := s.DB.QueryRowContext(ctx,
		`SELECT input_tokens, output_tokens FROM usage_counters WHERE day = ?`, day).
		Scan(&in, &out)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("get usage: %w", err)
	}
	return in, out, nil
}

// RecordTranslationSuccess updates the provider's health row.
func (s *Store) RecordTranslationSuccess(ctx context.Context, provider string) error {
	now := nowMilli()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO translation_health (provider, last_success_at)
		VALUES (?, ?)
		ON CONFLICT(provider) DO UPDATE SET last_success_at = excluded.last_success_at`,
		provider, now)
	if err != nil {
		return fmt.Errorf("record translation success: %w", err)
	}
	return nil
}

// RecordTranslationFailure updates the provider's health row with the error
// and its context (e.g. which article/field was being translated).
func (s *Store) RecordTranslationFailure(ctx context.Context, provider, message, context_ string) error {
	now := nowMilli()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO translation_health (provider, last_failure_at, last_error, last_context)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			last_failure_at = excluded.last_failure_at,
			last_error = excluded.last_error,
			last_context = excluded.last_context`,
		provider, now, message, context_)
	if err != nil {
		return fmt.Errorf("record translation failure: %w", err)
	}
	return nil
}

// TranslationHealth reads the health rows, optionally for one provider.
func (s *Store) TranslationHealth(ctx context.Context, provider string) ([]domain.TranslationHealth, error) {
	query := `SELECT provider, last_success_at, last_failure_at, last_error, last_context
		FROM translation_health`
	var args []any
	if provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, provider)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("translation health: %w", err)
	}
	defer rows.Close()

	var out []domain.TranslationHealth
	for rows.Next() {
		var (
			h                    domain.TranslationHealth
			successAt, failureAt sql.NullInt64
		)
		if err := rows.Scan(&h.Provider, &successAt, &failureAt, &h.LastError, &h.LastContext); err != nil {
			return nil, fmt.Errorf("scan translation health: %w", err)
		}
		h.LastSuccessAt = timeFromMilli(successAt)
		h.LastFailureAt = timeFromMilli(failureAt)
		out = append(out, h)
	}
	return out, rows.Err()
}
