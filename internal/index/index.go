// Package index provides a SQLite mirror of the transfer log for fast
// querying. The JSON log owned by the records store stays the source of
// truth; the index is rebuilt from it at startup and appended on every
// new record.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transfers (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	kind          TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	url           TEXT NOT NULL DEFAULT '',
	saved_path    TEXT NOT NULL DEFAULT '',
	document_path TEXT NOT NULL DEFAULT '',
	document_name TEXT NOT NULL DEFAULT '',
	checksum      TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transfers_kind ON transfers(kind);
CREATE INDEX IF NOT EXISTS idx_transfers_document ON transfers(document_path);
`

// DB wraps a sql.DB with record-index operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
