package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-webhook/internal/db"
	"github.com/sells-group/lead-webhook/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	defaultMaxConns = int32(4)
	defaultMinConns = int32(1)
)

// bounds returns the pool limits, filling unset values with defaults. A
// minimum above the maximum is clamped.
func (c *PoolConfig) bounds() (maxConns, minConns int32) {
	maxConns, minConns = defaultMaxConns, defaultMinConns
	if c != nil {
		if c.MaxConns > 0 {
			maxConns = c.MaxConns
		}
		if c.MinConns > 0 {
			minConns = c.MinConns
		}
	}
	if minConns > maxConns {
		minConns = maxConns
	}
	return maxConns, minConns
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns, pgxCfg.MinConns = poolCfg.bounds()
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_ip      TEXT NOT NULL DEFAULT '',
	email          TEXT NOT NULL DEFAULT '',
	service_type   TEXT NOT NULL DEFAULT '',
	outcome        TEXT NOT NULL,
	contact_id     TEXT NOT NULL DEFAULT '',
	opportunity_id TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_outcome ON submissions(outcome);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) RecordSubmission(ctx context.Context, entry *model.SubmissionLog) error {
	prepare(entry)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO submissions (id, client_ip, email, service_type, outcome, contact_id, opportunity_id, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.ClientIP, entry.Email, entry.ServiceType, string(entry.Outcome),
		entry.ContactID, entry.OpportunityID, entry.Error, entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert submission")
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.SubmissionLog, error) {
	query := `SELECT id, client_ip, email, service_type, outcome, contact_id, opportunity_id, error, created_at
		FROM submissions WHERE ($1 = '' OR outcome = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, query, string(filter.Outcome), listLimit(filter), offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submissions")
	}
	defer rows.Close()

	var out []model.SubmissionLog
	for rows.Next() {
		var e model.SubmissionLog
		var outcome string
		if err := rows.Scan(&e.ID, &e.ClientIP, &e.Email, &e.ServiceType, &outcome,
			&e.ContactID, &e.OpportunityID, &e.Error, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission")
		}
		e.Outcome = model.Outcome(outcome)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list submissions iterate")
}

func (s *PostgresStore) CountByOutcome(ctx context.Context) ([]OutcomeCount, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT outcome, COUNT(*) FROM submissions GROUP BY outcome ORDER BY COUNT(*) DESC, outcome`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count submissions")
	}
	defer rows.Close()

	var out []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome count")
		}
		c.Outcome = model.Outcome(outcome)
		c.Count = int(n)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: count submissions iterate")
}
