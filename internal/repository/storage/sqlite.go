package storage

import (
	"context"
	"database/sql"
	"fmt"

	// import the SQLite driver to register it with the database/sql package.
	_ "github.com/mattn/go-sqlite3"
)

func NewSQLite(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("can't open database: %w", err)
	}

	// a single connection serializes writers, which is what Patch relies on
	conn.SetMaxOpenConns(1)

	if err = conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}

	if err = Init(ctx, conn); err != nil {
		return nil, err
	}

	return conn, nil
}

// Init - creates the sessions table.
func Init(ctx context.Context, conn *sql.DB) error {
	query := `CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		room_code  TEXT NOT NULL UNIQUE,
		state      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`

	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("can't create table: %w", err)
	}

	return nil
}
