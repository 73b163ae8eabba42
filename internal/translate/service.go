// Package translate fills in the missing language side of bilingual
// articles through an external provider, behind a persistent cache and a
// daily token budget anchored to the operating timezone.
package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"newsdesk/internal/config"
	"newsdesk/internal/storage"

	"newsdesk/internal/domain"
)

var (
	// ErrNoProvider signals that translation is disabled. Callers treat it
	// as a graceful no-op.
	ErrNoProvider = errors.New("no translation provider configured")

	// ErrBudgetExceeded signals the daily token budget is spent. It stays
	// in effect until local midnight.
	ErrBudgetExceeded = errors.New("daily translation token budget exceeded")
)

// Exhaustion policies decide what happens to a field when the budget runs
// out mid-backfill.
const (
	PolicyFallback = "fallback"
	PolicyQueue    = "queue"
	PolicySkip     = "skip"
)

// Service coordinates provider calls, the translation cache and the daily
// budget. Safe for concurrent use.
type Service struct {
	store    *storage.Store
	provider Provider
	limit    int
	policy   string
	loc      *time.Location
	logger   *slog.Logger

	// now is replaceable in tests.
	now func() time.Time

	mu             sync.Mutex
	exhaustedUntil time.Time
}

// NewService wires a translation service. provider may be nil, which makes
// every Translate call return ErrNoProvider.
func NewService(cfg config.TranslationConfig, provider Provider, store *storage.Store, loc *time.Location, logger *slog.Logger) *Service {
	policy := cfg.ExhaustionPolicy
	switch policy {
	case PolicyFallback, PolicyQueue, PolicySkip:
	default:
		policy = PolicyFallback
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		provider: provider,
		limit:    cfg.DailyTokenLimit,
		policy:   policy,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

// Policy returns the configured exhaustion policy.
func (s *Service) Policy() string { return s.policy }

// Usage returns today's accumulated token counts and the configured limit.
func (s *Service) Usage(ctx context.Context) (input, output, limit int, err error) {
	in, out, err := s.store.GetUsage(ctx, s.day(s.now()))
	return in, out, s.limit, err
}

// Translate resolves one text through the cache or the provider. Cache hits
// are served even while the budget is exhausted; only provider calls are
// budgeted.
func (s *Service) Translate(ctx context.Context, src, dst domain.Language, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if s.provider == nil {
		return "", ErrNoProvider
	}

	hash := cacheKey(s.provider.Name(), src, dst, text)
	if cached, err := s.store.GetCachedTranslation(ctx, hash); err != nil {
		return "", err
	} else if cached != nil {
		return cached.TranslatedText, nil
	}

	now := s.now()
	if s.budgetExhausted(now) {
		return "", ErrBudgetExceeded
	}

	// Pre-check with a cheap estimate so an obviously over-budget call is
	// refused before reaching the provider.
	estimated := len([]rune(text)) / 4
	if estimated < 1 {
		estimated = 1
	}
	in, out, err := s.store.GetUsage(ctx, s.day(now))
	if err != nil {
		return "", err
	}
	// Meeting the limit exactly counts as exhausted.
	if s.limit > 0 && in+out+estimated >= s.limit {
		s.markExhausted(now)
		return "", ErrBudgetExceeded
	}

	translated, inTokens, outTokens, err := s.provider.Translate(ctx, src, dst, text)
	if err != nil {
		if herr := s.store.RecordTranslationFailure(ctx, s.provider.Name(), err.Error(), string(src)+"->"+string(dst)); herr != nil {
			s.logger.Warn("record translation failure", "error", herr)
		}
		return "", fmt.Errorf("provider translate: %w", err)
	}

	totalIn, totalOut, err := s.store.AddUsage(ctx, s.day(now), inTokens, outTokens)
	if err != nil {
		return "", err
	}
	if s.limit > 0 && totalIn+totalOut >= s.limit {
		s.markExhausted(now)
	}

	if err := s.store.RecordTranslationSuccess(ctx, s.provider.Name()); err != nil {
		s.logger.Warn("record translation success", "error", err)
	}
	if err := s.store.PutCachedTranslation(ctx, storage.CacheEntry{
		Hash:           hash,
		Provider:       s.provider.Name(),
		SourceLang:     string(src),
		TargetLang:     string(dst),
		SourceText:     text,
		TranslatedText: translated,
	}); err != nil {
		s.logger.Warn("cache translation", "error", err)
	}

	return translated, nil
}

func (s *Service) budgetExhausted(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Before(s.exhaustedUntil)
}

// markExhausted pins the budget closed until the next local midnight, so
// repeated backfill attempts within the day short-circuit cheaply.
func (s *Service) markExhausted(now time.Time) {
	local := now.In(s.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)

	s.mu.Lock()
	if midnight.After(s.exhaustedUntil) {
		s.exhaustedUntil = midnight
	}
	s.mu.Unlock()
}

// day keys the usage counters by calendar date in the operating timezone.
func (s *Service) day(now time.Time) string {
	return now.In(s.loc).Format("2006-01-02")
}

func cacheKey(provider string, src, dst domain.Language, text string) string {
	sum := sha256.Sum256([]byte(provider + "|" + string(src) + "|" + string(dst) + "|" + text))
	return hex.EncodeToString(sum[:])
}
