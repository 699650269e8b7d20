package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type CoverLetter struct {
	PostingID int64     `json:"posting_id"`
	Body      string    `json:"body"`
	PDF       []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Limit PDF size kept in the DB.
const maxCoverLetterPDF = 2 << 20

func (d *DB) SaveCoverLetter(ctx context.Context, postingID int64, body string, pdf []byte) error {
	if len(pdf) > maxCoverLetterPDF {
		pdf = nil
	}
	_, err := d.Pool.ExecContext(ctx, `
INSERT OR REPLACE INTO cover_letters(posting_id, body, pdf, created_at)
VALUES(?,?,?,?);`, postingID, body, pdf, formatTS(d.now()))
	if err != nil {
		return fmt.Errorf("save cover letter: %w", err)
	}
	return nil
}

func (d *DB) GetCoverLetter(ctx context.Context, postingID int64) (CoverLetter, error) {
	var (
		cl      CoverLetter
		created string
	)
	err := d.Pool.QueryRowContext(ctx, `
SELECT posting_id, body, pdf, created_at FROM cover_letters WHERE posting_id = ? LIMIT 1;`, postingID,
	).Scan(&cl.PostingID, &cl.Body, &cl.PDF, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return CoverLetter{}, ErrNotFound
	}
	if err != nil {
		return CoverLetter{}, err
	}
	cl.CreatedAt = parseTS(created)
	return cl, nil
}
