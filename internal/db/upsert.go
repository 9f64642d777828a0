package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Placeholder selects the bind parameter syntax of the target driver.
type Placeholder int

const (
	// Dollar renders $1, $2, ... (PostgreSQL).
	Dollar Placeholder = iota
	// Question renders ?, ?, ... (SQLite).
	Question
)

func (p Placeholder) param(n int) string {
	if p == Question {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// InsertConfig defines an insert that yields to an existing row on conflict.
type InsertConfig struct {
	Table        string   // target table, optionally schema-qualified
	Columns      []string // columns bound in order
	ConflictKeys []string // columns forming the unique constraint
	Placeholder  Placeholder
}

// InsertIgnoreSQL builds INSERT ... ON CONFLICT (keys) DO NOTHING. The row
// count of the resulting statement is 1 when the row was written and 0 when
// another writer already holds the key.
func InsertIgnoreSQL(cfg InsertConfig) (string, error) {
	if len(cfg.Columns) == 0 {
		return "", eris.New("db: insert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return "", eris.New("db: insert: no conflict keys specified")
	}

	params := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		params[i] = cfg.Placeholder.param(i + 1)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(params, ", "),
		quoteAndJoin(cfg.ConflictKeys),
	), nil
}

// UpdateSQL builds UPDATE table SET col = param, ... WHERE key = param. The
// setCols are bound in order and the key value last.
func UpdateSQL(table, key string, setCols []string, ph Placeholder) (string, error) {
	if key == "" {
		return "", eris.New("db: update: no key column specified")
	}
	if len(setCols) == 0 {
		return "", eris.New("db: update: no columns specified")
	}

	sets := make([]string, len(setCols))
	for i, col := range setCols {
		sets[i] = fmt.Sprintf("%s = %s", pgx.Identifier{col}.Sanitize(), ph.param(i+1))
	}

	return fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = %s",
		sanitizeTable(table),
		strings.Join(sets, ", "),
		pgx.Identifier{key}.Sanitize(),
		ph.param(len(setCols)+1),
	), nil
}

// sanitizeTable handles schema-qualified table names like "market.listings".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
