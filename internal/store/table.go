package store

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 2

func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= schemaVersion {
		return tx.Commit()
	}

	if v < 1 {
		if err := migrateV1(tx); err != nil {
			return fmt.Errorf("migrate v1: %w", err)
		}
	}
	if v < 2 {
		if err := migrateV2(tx); err != nil {
			return fmt.Errorf("migrate v2: %w", err)
		}
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// ---- Schema v1: postings, processed events, settings ----
func migrateV1(tx *sql.Tx) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS jobs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  job_title TEXT NOT NULL,
  company_name TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  job_url TEXT NOT NULL UNIQUE,
  posted_date TEXT NOT NULL DEFAULT '',
  source_platform TEXT NOT NULL,
  salary_info TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'new',
  rejection_reason TEXT NOT NULL DEFAULT '',
  match_score INTEGER DEFAULT 0,
  ai_analysis TEXT NOT NULL DEFAULT '',
  application_date TEXT,
  notes TEXT NOT NULL DEFAULT '',
  email_id TEXT NOT NULL DEFAULT '',
  received_at TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS email_tracking (
  email_id TEXT PRIMARY KEY,
  source TEXT NOT NULL DEFAULT '',
  processed_at TEXT NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS app_settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`, `
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`, `
CREATE INDEX IF NOT EXISTS idx_jobs_platform ON jobs(source_platform);`, `
CREATE INDEX IF NOT EXISTS idx_jobs_received ON jobs(received_at);`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// ---- Schema v2: contact + closing columns, quota counters, cover letters ----
func migrateV2(tx *sql.Tx) error {
	cols := []struct{ name, ddl string }{
		{"contact_email", `ALTER TABLE jobs ADD COLUMN contact_email TEXT NOT NULL DEFAULT '';`},
		{"closing_date", `ALTER TABLE jobs ADD COLUMN closing_date TEXT NOT NULL DEFAULT '';`},
		{"raw_source_id", `ALTER TABLE jobs ADD COLUMN raw_source_id TEXT NOT NULL DEFAULT '';`},
	}
	for _, c := range cols {
		if columnExists(tx, "jobs", c.name) {
			continue
		}
		if _, err := tx.Exec(c.ddl); err != nil {
			return err
		}
	}

	stmts := []string{`
CREATE TABLE IF NOT EXISTS usage_counters (
  source TEXT PRIMARY KEY,
  day TEXT NOT NULL,
  searches INTEGER NOT NULL DEFAULT 0,
  items INTEGER NOT NULL DEFAULT 0
);`, `
CREATE TABLE IF NOT EXISTS cover_letters (
  posting_id INTEGER PRIMARY KEY,
  body TEXT NOT NULL,
  pdf BLOB,
  created_at TEXT NOT NULL
);`, `
CREATE INDEX IF NOT EXISTS idx_jobs_title_company
ON jobs(lower(job_title), lower(company_name));`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func columnExists(q interface {
	QueryRow(query string, args ...any) *sql.Row
}, table, col string) bool {
	query := fmt.Sprintf(`
SELECT 1
FROM pragma_table_info('%s')
WHERE name = ?
LIMIT 1;
`, table)

	var one int
	err := q.QueryRow(query, col).Scan(&one)
	return err == nil
}
