// Package index provides a SQLite-backed relation index of decision records
// with optional FTS5 full-text search. It is always rebuilt from the record
// files and never written back to them.
package index

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// MemoryDSN opens a private in-memory index.
const MemoryDSN = ":memory:"

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	path       TEXT PRIMARY KEY,
	id         INTEGER NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT '',
	has_block  INTEGER NOT NULL DEFAULT 0,
	checksum   TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_records_id ON records(id);

CREATE TABLE IF NOT EXISTS relations (
	source_path TEXT NOT NULL REFERENCES records(path) ON DELETE CASCADE,
	source      INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	direction   TEXT NOT NULL,
	target      INTEGER NOT NULL,
	target_path TEXT NOT NULL DEFAULT '',
	line        TEXT NOT NULL DEFAULT '',
	position    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema. Use
// MemoryDSN for an index that lives as long as the process.
func Open(dsn string) (*DB, error) {
	params := "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	if dsn == MemoryDSN {
		params = "_foreign_keys=on"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	conn, err := sql.Open("sqlite3", dsn+sep+params)
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if dsn == MemoryDSN {
		// Every connection would otherwise get its own empty database.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Ping checks the database connection.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
