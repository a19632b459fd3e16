package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-webhook/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY,
	client_ip      TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	service_type   TEXT NOT NULL DEFAULT '',
	outcome        TEXT NOT NULL,
	contact_id     TEXT NOT NULL DEFAULT '',
	opportunity_id TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_submissions_outcome ON submissions(outcome);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordSubmission(ctx context.Context, entry *model.SubmissionLog) error {
	prepare(entry)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, client_ip, email, service_type, outcome, contact_id, opportunity_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ClientIP, entry.Email, entry.ServiceType, string(entry.Outcome),
		entry.ContactID, entry.OpportunityID, entry.Error, entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert submission")
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.SubmissionLog, error) {
	query := `SELECT id, client_ip, email, service_type, outcome, contact_id, opportunity_id, error, created_at
		FROM submissions WHERE 1=1`
	var args []any

	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submissions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SubmissionLog
	for rows.Next() {
		var e model.SubmissionLog
		var outcome string
		if err := rows.Scan(&e.ID, &e.ClientIP, &e.Email, &e.ServiceType, &outcome,
			&e.ContactID, &e.OpportunityID, &e.Error, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission")
		}
		e.Outcome = model.Outcome(outcome)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list submissions iterate")
}

func (s *SQLiteStore) CountByOutcome(ctx context.Context) ([]OutcomeCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM submissions GROUP BY outcome ORDER BY COUNT(*) DESC, outcome`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count submissions")
	}
	defer rows.Close() //nolint:errcheck

	var out []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		var outcome string
		if err := rows.Scan(&outcome, &c.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome count")
		}
		c.Outcome = model.Outcome(outcome)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: count submissions iterate")
}
