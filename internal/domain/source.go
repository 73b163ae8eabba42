package domain

import "time"

// SourceStatus reflects the outcome of the most recent fetch attempt.
type SourceStatus string

const (
	SourceOK      SourceStatus = "OK"
	SourceError   SourceStatus = "ERROR"
	SourceUnknown SourceStatus = "UNKNOWN"
)

// Source is an external outlet configured for ingestion. At least one of
// RSSURL and ScrapeURL must be set.
type Source struct {
	ID          int64
	Name        string
	Homepage    string
	RSSURL      string
	ScrapeURL   string
	Language    Language
	Trusted     bool
	Enabled     bool
	Blacklisted bool
	// Priority orders sources within a run; lower is fetched first.
	Priority int

	LastStatus     SourceStatus
	LastStatusCode int
	LastError      string
	LastFetchAt    *time.Time
	LastSuccessAt  *time.Time
	FailureStreak  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Fetchable reports whether the source has any fetch configuration at all.
func (s Source) Fetchable() bool {
	return s.RSSURL != "" || s.ScrapeURL != ""
}
