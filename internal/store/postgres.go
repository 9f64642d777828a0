package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-sync/internal/db"
	"github.com/sells-group/listing-sync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()

	insertSQL string
	updateSQL string
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

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
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
	s, err := newPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.closeFn = pool.Close
	return s, nil
}

func newPostgresStore(pool db.Pool) (*PostgresStore, error) {
	insertSQL, err := db.InsertIgnoreSQL(db.InsertConfig{
		Table:        listingsTable,
		Columns:      insertColumns,
		ConflictKeys: []string{"natural_key"},
		Placeholder:  db.Dollar,
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build insert")
	}
	updateSQL, err := db.UpdateSQL(listingsTable, "id", updateColumns, db.Dollar)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build update")
	}
	return &PostgresStore{pool: pool, insertSQL: insertSQL, updateSQL: updateSQL}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	natural_key   TEXT NOT NULL UNIQUE,
	listing_id    TEXT,
	title         TEXT,
	asking_price  BIGINT,
	location      TEXT,
	source_url    TEXT NOT NULL,
	record        JSONB NOT NULL,
	raw           JSONB,
	first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_listings_source_url ON listings(source_url);
CREATE INDEX IF NOT EXISTS idx_listings_last_seen_at ON listings(last_seen_at DESC);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	status     TEXT NOT NULL,
	code       TEXT,
	result     JSONB NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindListing(ctx context.Context, naturalKey string) (*model.StoredListing, error) {
	l, err := scanPostgresListing(s.pool.QueryRow(ctx, selectListing+` WHERE natural_key = $1`, naturalKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find listing %s", naturalKey)
	}
	return l, nil
}

func (s *PostgresStore) InsertListing(ctx context.Context, l *model.StoredListing) (bool, error) {
	args, err := insertArgs(l)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, s.insertSQL, args...)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert listing %s", l.Record.NaturalKey)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpdateListing(ctx context.Context, l *model.StoredListing) error {
	args, err := updateArgs(l)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, s.updateSQL, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update listing %s", l.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("listing not found: %s", l.ID)
	}
	return nil
}

func (s *PostgresStore) ListListings(ctx context.Context, filter ListFilter) ([]model.StoredListing, error) {
	query := selectListing + ` WHERE 1=1`
	var args []any
	argIdx := 1

	if filter.SourceURL != "" {
		query += fmt.Sprintf(` AND source_url = $%d`, argIdx)
		args = append(args, filter.SourceURL)
		argIdx++
	}
	query += ` ORDER BY last_seen_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list listings")
	}
	defer rows.Close()

	var out []model.StoredListing
	for rows.Next() {
		l, err := scanPostgresListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list listings iterate")
}

func (s *PostgresStore) CountListings(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM listings`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count listings")
	}
	return int(n), nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, result *model.PipelineResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, url, status, code, result, started_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, code = EXCLUDED.code, result = EXCLUDED.result, updated_at = EXCLUDED.updated_at`,
		result.RunID, result.URL, string(result.Status), result.Code, string(resultJSON), result.StartedAt.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save run %s", result.RunID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PipelineResult, error) {
	var resultJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM runs WHERE id = $1`, runID).Scan(&resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	var r model.PipelineResult
	if err := json.Unmarshal(resultJSON, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run")
	}
	return &r, nil
}

func scanPostgresListing(row pgx.Row) (*model.StoredListing, error) {
	var (
		id, sourceURL       string
		record, raw         []byte
		firstSeen, lastSeen time.Time
	)
	if err := row.Scan(&id, &record, &raw, &sourceURL, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	return decodeListing(id, record, raw, sourceURL, firstSeen, lastSeen)
}
