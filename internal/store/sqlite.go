package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/listing-sync/internal/db"
	"github.com/sells-group/listing-sync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB

	insertSQL string
	updateSQL string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	insertSQL, err := db.InsertIgnoreSQL(db.InsertConfig{
		Table:        listingsTable,
		Columns:      insertColumns,
		ConflictKeys: []string{"natural_key"},
		Placeholder:  db.Question,
	})
	if err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "sqlite: build insert")
	}
	updateSQL, err := db.UpdateSQL(listingsTable, "id", updateColumns, db.Question)
	if err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "sqlite: build update")
	}
	return &SQLiteStore{db: conn, insertSQL: insertSQL, updateSQL: updateSQL}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id            TEXT PRIMARY KEY,
	natural_key   TEXT NOT NULL UNIQUE,
	listing_id    TEXT,
	title         TEXT,
	asking_price  INTEGER,
	location      TEXT,
	source_url    TEXT NOT NULL,
	record        TEXT NOT NULL,
	raw           TEXT,
	first_seen_at DATETIME NOT NULL DEFAULT (datetime('now')),
	last_seen_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_listings_source_url ON listings(source_url);
CREATE INDEX IF NOT EXISTS idx_listings_last_seen_at ON listings(last_seen_at);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	status     TEXT NOT NULL,
	code       TEXT,
	result     TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindListing(ctx context.Context, naturalKey string) (*model.StoredListing, error) {
	l, err := scanSQLiteListing(s.db.QueryRowContext(ctx, selectListing+` WHERE natural_key = ?`, naturalKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find listing %s", naturalKey)
	}
	return l, nil
}

func (s *SQLiteStore) InsertListing(ctx context.Context, l *model.StoredListing) (bool, error) {
	args, err := insertArgs(l)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, s.insertSQL, args...)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert listing %s", l.Record.NaturalKey)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) UpdateListing(ctx context.Context, l *model.StoredListing) error {
	args, err := updateArgs(l)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.updateSQL, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update listing %s", l.ID)
	}
	return checkRowsAffected(res, "listing", l.ID)
}

func (s *SQLiteStore) ListListings(ctx context.Context, filter ListFilter) ([]model.StoredListing, error) {
	query := selectListing + ` WHERE 1=1`
	var args []any

	if filter.SourceURL != "" {
		query += ` AND source_url = ?`
		args = append(args, filter.SourceURL)
	}
	query += ` ORDER BY last_seen_at DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list listings")
	}
	defer rows.Close()

	var out []model.StoredListing
	for rows.Next() {
		l, err := scanSQLiteListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list listings iterate")
}

func (s *SQLiteStore) CountListings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM listings`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count listings")
	}
	return n, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, result *model.PipelineResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, url, status, code, result, started_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, code = excluded.code, result = excluded.result, updated_at = excluded.updated_at`,
		result.RunID, result.URL, string(result.Status), result.Code, string(resultJSON), result.StartedAt.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save run %s", result.RunID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PipelineResult, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM runs WHERE id = ?`, runID).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	var r model.PipelineResult
	if err := json.Unmarshal([]byte(resultJSON), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run")
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteListing(row scannable) (*model.StoredListing, error) {
	var (
		id, sourceURL, record string
		raw                   sql.NullString
		firstSeen, lastSeen   time.Time
	)
	if err := row.Scan(&id, &record, &raw, &sourceURL, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	var rawBytes []byte
	if raw.Valid {
		rawBytes = []byte(raw.String)
	}
	return decodeListing(id, []byte(record), rawBytes, sourceURL, firstSeen, lastSeen)
}
