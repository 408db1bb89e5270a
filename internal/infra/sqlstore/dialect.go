package sqlstore

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_mysql.sql
var mysqlSchema string

// Dialect captures the SQL that differs between the supported engines.
type Dialect struct {
	Name   string
	Driver string
	Schema string
	// InsertIgnore prefixes an INSERT that skips rows with an existing key.
	InsertIgnore string
	// OnConflictIgnore is appended to such an INSERT.
	OnConflictIgnore string
	// UpsertCursor writes a (name, cursor_value, updated_at) row.
	UpsertCursor string
}

// SQLite stores everything as TEXT and uses ON CONFLICT clauses.
var SQLite = Dialect{
	Name:             "sqlite",
	Driver:           "sqlite3",
	Schema:           sqliteSchema,
	InsertIgnore:     "INSERT INTO",
	OnConflictIgnore: "ON CONFLICT(transaction_id) DO NOTHING",
	UpsertCursor: `INSERT INTO sync_cursors (name, cursor_value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET cursor_value = excluded.cursor_value, updated_at = excluded.updated_at`,
}

// MySQL uses INSERT IGNORE and ON DUPLICATE KEY UPDATE.
var MySQL = Dialect{
	Name:         "mysql",
	Driver:       "mysql",
	Schema:       mysqlSchema,
	InsertIgnore: "INSERT IGNORE INTO",
	UpsertCursor: `INSERT INTO sync_cursors (name, cursor_value, updated_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE cursor_value = VALUES(cursor_value), updated_at = VALUES(updated_at)`,
}

// DialectFor returns the dialect named by a STORE_BACKEND value.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case SQLite.Name, SQLite.Driver:
		return SQLite, nil
	case MySQL.Name:
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported SQL dialect %q", name)
	}
}

// statements splits a schema file on semicolons. The MySQL driver rejects
// multi-statement Exec calls unless multiStatements is set in the DSN.
func statements(schema string) []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
