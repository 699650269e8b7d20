package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Usage is one source's consumption for a calendar day.
type Usage struct {
	Source   string `json:"source"`
	Day      string `json:"day"`
	Searches int    `json:"searches"`
	Items    int    `json:"items"`
}

func (d *DB) today() string { return d.now().Format("2006-01-02") }

// GetUsage returns today's counters. A row from an earlier day reads as zero.
func (d *DB) GetUsage(ctx context.Context, source string) (Usage, error) {
	u := Usage{Source: source, Day: d.today()}

	var day string
	var searches, items int
	err := d.Pool.QueryRowContext(ctx,
		`SELECT day, searches, items FROM usage_counters WHERE source = ?;`, source,
	).Scan(&day, &searches, &items)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return u, fmt.Errorf("get usage: %w", err)
	}
	if day < u.Day {
		return u, nil
	}
	u.Searches, u.Items = searches, items
	return u, nil
}

// AddUsage increments today's counters, resetting them first when the stored day is in the past.
func (d *DB) AddUsage(ctx context.Context, source string, searches, items int) (Usage, error) {
	if searches < 0 || items < 0 {
		return Usage{}, errors.New("add usage: negative increment")
	}
	today := d.today()
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO usage_counters(source, day, searches, items)
VALUES(?,?,?,?)
ON CONFLICT(source) DO UPDATE SET
  searches = CASE WHEN usage_counters.day < excluded.day THEN excluded.searches ELSE usage_counters.searches + excluded.searches END,
  items    = CASE WHEN usage_counters.day < excluded.day THEN excluded.items    ELSE usage_counters.items + excluded.items END,
  day      = CASE WHEN usage_counters.day < excluded.day THEN excluded.day      ELSE usage_counters.day END;
`, source, today, searches, items)
	if err != nil {
		return Usage{}, fmt.Errorf("add usage: %w", err)
	}
	return d.GetUsage(ctx, source)
}
