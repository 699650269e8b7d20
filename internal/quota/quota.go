// Package quota guards rate- and cost-limited sources with a per-day budget of
// search calls and fetched items.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log"

	"jobapply-engine/internal/store"
)

const (
	DefaultMaxSearches = 10
	DefaultMaxItems    = 500
)

// ErrExhausted means the requested call would exceed today's budget.
var ErrExhausted = errors.New("daily quota exhausted")

// Counter is the persisted usage counter.
type Counter interface {
	GetUsage(ctx context.Context, source string) (store.Usage, error)
	AddUsage(ctx context.Context, source string, searches, items int) (store.Usage, error)
}

type Governor struct {
	Counter     Counter
	Source      string
	MaxSearches int
	MaxItems    int
}

func New(c Counter, source string, maxSearches, maxItems int) *Governor {
	if maxSearches <= 0 {
		maxSearches = DefaultMaxSearches
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Governor{Counter: c, Source: source, MaxSearches: maxSearches, MaxItems: maxItems}
}

// Status is today's budget as shown on the dashboard.
type Status struct {
	store.Usage
	MaxSearches       int `json:"max_searches"`
	MaxItems          int `json:"max_items"`
	RemainingSearches int `json:"remaining_searches"`
	RemainingItems    int `json:"remaining_items"`
}

func (g *Governor) Status(ctx context.Context) (Status, error) {
	u, err := g.Counter.GetUsage(ctx, g.Source)
	if err != nil {
		return Status{}, fmt.Errorf("quota status: %w", err)
	}
	return Status{
		Usage:             u,
		MaxSearches:       g.MaxSearches,
		MaxItems:          g.MaxItems,
		RemainingSearches: max(0, g.MaxSearches-u.Searches),
		RemainingItems:    max(0, g.MaxItems-u.Items),
	}, nil
}

// Allow checks whether one more search returning up to items results fits in today's budget.
// It must be called before the network call; ErrExhausted means stop issuing calls for this run.
func (g *Governor) Allow(ctx context.Context, items int) error {
	st, err := g.Status(ctx)
	if err != nil {
		return err
	}
	if st.RemainingSearches < 1 {
		log.Printf("[quota] %s searches exhausted (%d/%d)", g.Source, st.Searches, g.MaxSearches)
		return fmt.Errorf("%w: %d/%d searches used", ErrExhausted, st.Searches, g.MaxSearches)
	}
	if items > st.RemainingItems {
		log.Printf("[quota] %s items exhausted (%d/%d, want %d)", g.Source, st.Items, g.MaxItems, items)
		return fmt.Errorf("%w: %d/%d items used, %d requested", ErrExhausted, st.Items, g.MaxItems, items)
	}
	return nil
}

// Record adds one completed search and the number of items it returned.
func (g *Governor) Record(ctx context.Context, items int) error {
	if items < 0 {
		items = 0
	}
	u, err := g.Counter.AddUsage(ctx, g.Source, 1, items)
	if err != nil {
		return fmt.Errorf("quota record: %w", err)
	}
	log.Printf("[quota] %s usage day=%s searches=%d items=%d", g.Source, u.Day, u.Searches, u.Items)
	return nil
}
