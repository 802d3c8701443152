package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/rectify-cli/internal/db"
	"github.com/sells-group/rectify-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	subject     TEXT NOT NULL DEFAULT '',
	profile     TEXT NOT NULL,
	estimate    TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL,
	best_offset INTEGER,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	config      JSONB,
	result      JSONB,
	error       JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_scores (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	method         TEXT NOT NULL,
	offset_minutes INTEGER NOT NULL,
	score          DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, method, offset_minutes)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_subject ON runs(subject);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveRun implements Store. The run row and its scores are written in one
// transaction; scores go through COPY.
func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run) error {
	if err := prepare(run); err != nil {
		return err
	}
	errJSON, err := marshalError(run.Error)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, subject, profile, estimate, status, best_offset, confidence, config, result, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.Subject, run.Profile, run.Estimate.UTC(), string(run.Status), run.BestOffset, run.Confidence,
		nullableJSON(run.Config), nullableJSON(run.Result), errJSON, run.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert run %s", run.ID)
	}

	if _, err := db.CopyFrom(ctx, tx, "run_scores", scoreColumns, scoreRows(run)); err != nil {
		return eris.Wrapf(err, "postgres: insert scores for run %s", run.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "postgres: commit run %s", run.ID)
	}
	return nil
}

const postgresRunColumns = `id, subject, profile, estimate, status, best_offset, confidence, config, result, error, created_at`

// GetRun implements Store.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT method, offset_minutes, score FROM run_scores WHERE run_id = $1 ORDER BY method, offset_minutes`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get scores for run %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var ms model.MethodScore
		if err := rows.Scan(&ms.Method, &ms.OffsetMinutes, &ms.Score); err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		r.Scores = append(r.Scores, ms)
	}
	return r, eris.Wrap(rows.Err(), "postgres: get scores iterate")
}

// ListRuns implements Store.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Subject != "" {
		query += fmt.Sprintf(` AND subject = $%d`, argIdx)
		args = append(args, filter.Subject)
		argIdx++
	}
	if filter.Profile != "" {
		query += fmt.Sprintf(` AND profile = $%d`, argIdx)
		args = append(args, filter.Profile)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var bestOffset *int
	var cfgJSON, resultJSON, errJSON []byte

	err := row.Scan(&r.ID, &r.Subject, &r.Profile, &r.Estimate, &status, &bestOffset, &r.Confidence,
		&cfgJSON, &resultJSON, &errJSON, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.BestOffset = bestOffset
	if len(cfgJSON) > 0 {
		r.Config = cfgJSON
	}
	if len(resultJSON) > 0 {
		r.Result = resultJSON
	}
	if r.Error, err = unmarshalError(errJSON); err != nil {
		return nil, err
	}
	r.Estimate = r.Estimate.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}
