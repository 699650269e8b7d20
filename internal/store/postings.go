package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"jobapply-engine/internal/domain"
)

const postingCols = `id, job_title, company_name, location, description, job_url, posted_date, closing_date,
source_platform, salary_info, contact_email, status, rejection_reason, COALESCE(match_score, 0),
ai_analysis, application_date, notes, email_id, raw_source_id, received_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosting(r rowScanner) (domain.Posting, error) {
	var (
		p        domain.Posting
		status   string
		appDate  sql.NullString
		received string
	)
	err := r.Scan(&p.ID, &p.Title, &p.Employer, &p.Location, &p.Description, &p.URL, &p.PostedDate,
		&p.ClosingDate, &p.SourcePlatform, &p.SalaryInfo, &p.ContactEmail, &status, &p.RejectionReason,
		&p.MatchScore, &p.AIAnalysis, &appDate, &p.Notes, &p.EventID, &p.SourceID, &received)
	if err != nil {
		return domain.Posting{}, err
	}
	p.Status = domain.Status(status)
	if appDate.Valid && appDate.String != "" {
		t := parseTS(appDate.String)
		p.ApplicationDate = &t
	}
	p.ReceivedAt = parseTS(received)
	return p, nil
}

// Exists reports whether a posting with exactly this url is stored.
func (d *DB) Exists(ctx context.Context, url string) (bool, error) {
	var one int
	err := d.Pool.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE job_url = ? LIMIT 1;`, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return true, nil
}

// Insert stores p unless its url is already present. It is the only place new rows are created;
// the UNIQUE constraint on job_url makes the check and the write a single statement.
func (d *DB) Insert(ctx context.Context, p domain.Posting) (id int64, inserted bool, err error) {
	if strings.TrimSpace(p.URL) == "" {
		return 0, false, errors.New("insert posting: missing url")
	}
	if p.Status == "" {
		p.Status = domain.StatusNew
	}
	received := p.ReceivedAt
	if received.IsZero() {
		received = d.now()
	}

	res, err := d.Pool.ExecContext(ctx, `
INSERT OR IGNORE INTO jobs(job_title, company_name, location, description, job_url, posted_date, closing_date,
  source_platform, salary_info, contact_email, status, rejection_reason, match_score, ai_analysis, notes,
  email_id, raw_source_id, received_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?);`,
		p.Title, p.Employer, p.Location, p.Description, p.URL, p.PostedDate, p.ClosingDate,
		p.SourcePlatform, p.SalaryInfo, p.ContactEmail, string(p.Status), p.RejectionReason, p.MatchScore,
		p.AIAnalysis, p.Notes, p.EventID, p.SourceID, formatTS(received),
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert posting: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return 0, false, nil
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("insert posting: %w", err)
	}
	return id, true, nil
}

func (d *DB) GetByID(ctx context.Context, id int64) (domain.Posting, error) {
	row := d.Pool.QueryRowContext(ctx, `SELECT `+postingCols+` FROM jobs WHERE id = ?;`, id)
	p, err := scanPosting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Posting{}, ErrNotFound
	}
	return p, err
}

func (d *DB) FindByURL(ctx context.Context, url string) (domain.Posting, error) {
	row := d.Pool.QueryRowContext(ctx, `SELECT `+postingCols+` FROM jobs WHERE job_url = ?;`, url)
	p, err := scanPosting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Posting{}, ErrNotFound
	}
	return p, err
}

// FindByTitleEmployer matches case-insensitively on the exact trimmed pair, oldest row first.
func (d *DB) FindByTitleEmployer(ctx context.Context, title, employer string) (domain.Posting, error) {
	row := d.Pool.QueryRowContext(ctx, `
SELECT `+postingCols+`
FROM jobs
WHERE lower(job_title) = lower(?) AND lower(company_name) = lower(?)
ORDER BY id ASC
LIMIT 1;`, strings.TrimSpace(title), strings.TrimSpace(employer))
	p, err := scanPosting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Posting{}, ErrNotFound
	}
	return p, err
}

// UpdateStatus sets status and, when notes is non-nil, replaces the notes text.
// Moving to applied stamps application_date; re-saving an applied posting keeps it.
func (d *DB) UpdateStatus(ctx context.Context, id int64, status domain.Status, notes *string) error {
	q := `UPDATE jobs SET status = ?`
	args := []any{string(status)}
	if status == domain.StatusApplied {
		// only stamp on the move into applied; the CASE sees the pre-update status
		q += `, application_date = CASE WHEN status = 'applied' THEN application_date ELSE ? END`
		args = append(args, formatTS(d.now()))
	}
	if notes != nil {
		q += `, notes = ?`
		args = append(args, *notes)
	}
	q += ` WHERE id = ?;`
	args = append(args, id)

	res, err := d.Pool.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionStatus moves a posting from one status to another only if it is still in from.
// It reports whether this call made the change. application_date is stamped only on a
// move into applied, never when an applied posting is re-saved.
func (d *DB) TransitionStatus(ctx context.Context, id int64, from, to domain.Status, notes string) (bool, error) {
	q := `UPDATE jobs SET status = ?, notes = ?`
	args := []any{string(to), notes}
	if to == domain.StatusApplied && from != domain.StatusApplied {
		q += `, application_date = ?`
		args = append(args, formatTS(d.now()))
	}
	q += ` WHERE id = ? AND status = ?;`
	args = append(args, id, string(from))

	res, err := d.Pool.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Reject marks a new posting auto-rejected with the reason it matched.
func (d *DB) Reject(ctx context.Context, id int64, reason string) error {
	res, err := d.Pool.ExecContext(ctx, `
UPDATE jobs SET status = 'auto-rejected', rejection_reason = ?
WHERE id = ? AND status = 'new';`, reason, id)
	if err != nil {
		return fmt.Errorf("reject: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *DB) UpdateDescription(ctx context.Context, id int64, description string) error {
	_, err := d.Pool.ExecContext(ctx, `UPDATE jobs SET description = ? WHERE id = ?;`, description, id)
	if err != nil {
		return fmt.Errorf("update description: %w", err)
	}
	return nil
}

func (d *DB) SetScore(ctx context.Context, id int64, score int, analysis string) error {
	_, err := d.Pool.ExecContext(ctx, `UPDATE jobs SET match_score = ?, ai_analysis = ? WHERE id = ?;`, score, analysis, id)
	if err != nil {
		return fmt.Errorf("set score: %w", err)
	}
	return nil
}

func (d *DB) SetContactEmail(ctx context.Context, id int64, email string) error {
	_, err := d.Pool.ExecContext(ctx, `UPDATE jobs SET contact_email = ? WHERE id = ?;`, email, id)
	if err != nil {
		return fmt.Errorf("set contact email: %w", err)
	}
	return nil
}

// ---- anti-duplicate application checks ----

func (d *DB) AppliedToURL(ctx context.Context, url string, exceptID int64) (bool, error) {
	return d.any(ctx, `
SELECT 1 FROM jobs
WHERE job_url = ? AND status = 'applied' AND id != ?
LIMIT 1;`, url, exceptID)
}

func (d *DB) AppliedToTitleEmployer(ctx context.Context, title, employer string, exceptID int64) (bool, error) {
	return d.any(ctx, `
SELECT 1 FROM jobs
WHERE lower(job_title) = lower(?) AND lower(company_name) = lower(?)
  AND status = 'applied' AND id != ?
LIMIT 1;`, strings.TrimSpace(title), strings.TrimSpace(employer), exceptID)
}

// AppliedToContactToday counts applications sent today to the (contact email, employer) pair.
func (d *DB) AppliedToContactToday(ctx context.Context, email, employer string) (int, error) {
	start, end := dayBounds(d.now())
	var n int
	err := d.Pool.QueryRowContext(ctx, `
SELECT COUNT(*) FROM jobs
WHERE status = 'applied'
  AND lower(contact_email) = lower(?)
  AND lower(company_name) = lower(?)
  AND application_date >= ? AND application_date < ?;`,
		strings.TrimSpace(email), strings.TrimSpace(employer), start, end,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count applications today: %w", err)
	}
	return n, nil
}

func (d *DB) any(ctx context.Context, q string, args ...any) (bool, error) {
	var one int
	err := d.Pool.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ---- query ----

type PostingFilter struct {
	SourcePlatform string
	Status         string
	MinScore       *int
	// Q matches a substring of title or employer.
	Q     string
	Limit int
}

// Query returns postings matching every set filter, most recently received first.
func (d *DB) Query(ctx context.Context, f PostingFilter) ([]domain.Posting, error) {
	var (
		where []string
		args  []any
	)
	if f.SourcePlatform != "" {
		where = append(where, "source_platform = ?")
		args = append(args, f.SourcePlatform)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.MinScore != nil {
		where = append(where, "COALESCE(match_score, 0) >= ?")
		args = append(args, *f.MinScore)
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		where = append(where, "(lower(job_title) LIKE ? OR lower(company_name) LIKE ?)")
		like := "%" + strings.ToLower(q) + "%"
		args = append(args, like, like)
	}

	query := `SELECT ` + postingCols + ` FROM jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY received_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := d.Pool.QueryContext(ctx, query+";", args...)
	if err != nil {
		return nil, fmt.Errorf("query postings: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Posting, 0)
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
