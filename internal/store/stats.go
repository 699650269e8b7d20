package store

import (
	"context"
	"fmt"
)

type Stats struct {
	Total        int            `json:"total"`
	New          int            `json:"new"`
	Applied      int            `json:"applied"`
	AutoRejected int            `json:"auto_rejected"`
	ReadyToApply int            `json:"ready_to_apply"`
	ByStatus     map[string]int `json:"by_status"`
	ByPlatform   map[string]int `json:"by_platform"`
	HighMatch    int            `json:"high_match"`
	MediumMatch  int            `json:"medium_match"`
	LowMatch     int            `json:"low_match"`
}

// Aggregate computes dashboard counts directly from the jobs table.
func (d *DB) Aggregate(ctx context.Context) (Stats, error) {
	st := Stats{
		ByStatus:   map[string]int{},
		ByPlatform: map[string]int{},
	}

	rows, err := d.Pool.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status;`)
	if err != nil {
		return st, fmt.Errorf("stats by status: %w", err)
	}
	for rows.Next() {
		var (
			s string
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			rows.Close()
			return st, err
		}
		st.ByStatus[s] = n
		st.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}

	rows, err = d.Pool.QueryContext(ctx, `SELECT source_platform, COUNT(*) FROM jobs GROUP BY source_platform;`)
	if err != nil {
		return st, fmt.Errorf("stats by platform: %w", err)
	}
	for rows.Next() {
		var (
			p string
			n int
		)
		if err := rows.Scan(&p, &n); err != nil {
			rows.Close()
			return st, err
		}
		st.ByPlatform[p] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}

	err = d.Pool.QueryRowContext(ctx, `
SELECT
  COALESCE(SUM(CASE WHEN match_score >= 70 THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN match_score >= 50 AND match_score < 70 THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN match_score < 50 OR match_score IS NULL THEN 1 ELSE 0 END), 0)
FROM jobs;`).Scan(&st.HighMatch, &st.MediumMatch, &st.LowMatch)
	if err != nil {
		return st, fmt.Errorf("stats by score: %w", err)
	}

	st.New = st.ByStatus["new"]
	st.Applied = st.ByStatus["applied"]
	st.AutoRejected = st.ByStatus["auto-rejected"]
	st.ReadyToApply = st.ByStatus["ready_to_apply"]
	return st, nil
}
