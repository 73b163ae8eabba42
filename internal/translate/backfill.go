package translate

import (
	"context"
	"errors"
	"fmt"

	"newsdesk/internal/domain"
)

// Stats summarizes one backfill pass.
type Stats struct {
	Translated int
	Fallback   int
	Queued     int
	Skipped    int
	Failed     int
}

// fieldRef binds one translatable field to its localized text and per-field
// state so backfill can iterate uniformly.
type fieldRef struct {
	name  string
	text  *domain.LocalizedText
	state *domain.TranslationField
}

func fields(a *domain.Article) []fieldRef {
	return []fieldRef{
		{"title", &a.Title, &a.Translation.Title},
		{"excerpt", &a.Excerpt, &a.Translation.Excerpt},
		{"content", &a.Content, &a.Translation.Content},
	}
}

// Backfill translates the missing language side of up to limit articles.
// Fields marked manual are never touched; fields already translated stay as
// they are. Budget exhaustion is handled per the configured policy and the
// pass keeps going, so cache hits still land after the budget is gone.
func (s *Service) Backfill(ctx context.Context, limit int) (Stats, error) {
	var stats Stats

	if s.provider == nil {
		return stats, nil
	}

	articles, err := s.store.ListNeedingTranslation(ctx, limit)
	if err != nil {
		return stats, err
	}

	for i := range articles {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := s.backfillArticle(ctx, &articles[i], &stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (s *Service) backfillArticle(ctx context.Context, a *domain.Article, stats *Stats) error {
	src := a.Language
	dst := domain.LangEN
	if src == domain.LangEN {
		dst = domain.LangFA
	}

	changed := false
	for _, f := range fields(a) {
		switch f.state.Status {
		case domain.TranslationTranslated, domain.TranslationManual:
			continue
		}

		sourceText := f.text.In(src)
		if sourceText == "" {
			continue
		}

		now := s.now()
		translated, err := s.Translate(ctx, src, dst, sourceText)
		switch {
		case err == nil:
			f.state.Status = domain.TranslationTranslated
			f.state.Provider = s.provider.Name()
			f.state.Error = ""
			f.state.AttemptedAt = &now
			if err := s.store.UpdateTranslatedField(ctx, a.ID, column(f.name, dst), translated, a.Translation); err != nil {
				return err
			}
			stats.Translated++
			changed = true

		case errors.Is(err, ErrBudgetExceeded):
			switch s.policy {
			case PolicyFallback:
				// Publish the source text on the other side rather
				// than leaving a hole. A later pass upgrades it.
				f.state.Status = domain.TranslationFallback
				f.state.Error = err.Error()
				f.state.AttemptedAt = &now
				if err := s.store.UpdateTranslatedField(ctx, a.ID, column(f.name, dst), sourceText, a.Translation); err != nil {
					return err
				}
				stats.Fallback++
				changed = true
			case PolicyQueue:
				// Untouched: picked up again once the budget resets.
				stats.Queued++
			case PolicySkip:
				f.state.Error = err.Error()
				f.state.AttemptedAt = &now
				stats.Skipped++
				changed = true
			}

		default:
			s.logger.Warn("translate field failed",
				"article", a.ID, "field", f.name, "error", err)
			f.state.Error = err.Error()
			f.state.AttemptedAt = &now
			stats.Failed++
			changed = true
		}
	}

	if changed {
		return s.store.UpdateTranslationState(ctx, a.ID, a.Translation)
	}
	return nil
}

func column(field string, lang domain.Language) string {
	return fmt.Sprintf("%s_%s", field, lang)
}
