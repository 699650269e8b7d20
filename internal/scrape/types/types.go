package types

import (
	"context"

	"jobapply-engine/internal/domain"
)

// ScrapeResult is one source's output for a run. Err is set when the source failed;
// Postings may still hold what was fetched before the failure.
type ScrapeResult struct {
	Source   string
	Postings []domain.RawPosting
	Err      error

	// QuotaStopped is set when the source stopped early because the daily quota ran out.
	QuotaStopped bool

	// FallbackMatch enables (title, employer) matching for sources without stable per-item URLs.
	FallbackMatch bool

	// Finalize runs after the postings were ingested (e.g. marking source events processed).
	Finalize func(context.Context) error
}

// Fetcher is a job source.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) (ScrapeResult, error)
}
