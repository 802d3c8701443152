package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/rectify-cli/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	subject     TEXT NOT NULL DEFAULT '',
	profile     TEXT NOT NULL,
	estimate    DATETIME NOT NULL,
	status      TEXT NOT NULL,
	best_offset INTEGER,
	confidence  REAL NOT NULL DEFAULT 0,
	config      TEXT,
	result      TEXT,
	error       TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_scores (
	run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	method         TEXT NOT NULL,
	offset_minutes INTEGER NOT NULL,
	score          REAL NOT NULL,
	PRIMARY KEY (run_id, method, offset_minutes)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_subject ON runs(subject);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun implements Store.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run) error {
	if err := prepare(run); err != nil {
		return err
	}
	errJSON, err := marshalError(run.Error)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	var bestOffset sql.NullInt64
	if run.BestOffset != nil {
		bestOffset = sql.NullInt64{Int64: int64(*run.BestOffset), Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, subject, profile, estimate, status, best_offset, confidence, config, result, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Subject, run.Profile, run.Estimate.UTC(), string(run.Status), bestOffset, run.Confidence,
		nullString(nullableJSON(run.Config)), nullString(nullableJSON(run.Result)), nullString(errJSON), run.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
	}

	if len(run.Scores) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_scores (run_id, method, offset_minutes, score) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare score insert")
		}
		defer stmt.Close() //nolint:errcheck
		for _, row := range scoreRows(run) {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return eris.Wrapf(err, "sqlite: insert scores for run %s", run.ID)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run")
}

const sqliteRunColumns = `id, subject, profile, estimate, status, best_offset, confidence, config, result, error, created_at`

// GetRun implements Store.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT method, offset_minutes, score FROM run_scores WHERE run_id = ? ORDER BY method, offset_minutes`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get scores for run %s", id)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var ms model.MethodScore
		if err := rows.Scan(&ms.Method, &ms.OffsetMinutes, &ms.Score); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		r.Scores = append(r.Scores, ms)
	}
	return r, eris.Wrap(rows.Err(), "sqlite: get scores iterate")
}

// ListRuns implements Store.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Subject != "" {
		query += ` AND subject = ?`
		args = append(args, filter.Subject)
	}
	if filter.Profile != "" {
		query += ` AND profile = ?`
		args = append(args, filter.Profile)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var bestOffset sql.NullInt64
	var cfgJSON, resultJSON, errJSON sql.NullString

	err := row.Scan(&r.ID, &r.Subject, &r.Profile, &r.Estimate, &status, &bestOffset, &r.Confidence,
		&cfgJSON, &resultJSON, &errJSON, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if bestOffset.Valid {
		off := int(bestOffset.Int64)
		r.BestOffset = &off
	}
	if cfgJSON.Valid {
		r.Config = json.RawMessage(cfgJSON.String)
	}
	if resultJSON.Valid {
		r.Result = json.RawMessage(resultJSON.String)
	}
	if errJSON.Valid {
		if r.Error, err = unmarshalError([]byte(errJSON.String)); err != nil {
			return nil, err
		}
	}
	r.Estimate = r.Estimate.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
