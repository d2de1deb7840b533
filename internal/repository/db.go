// Package repository persists visit history and extraction job bookkeeping.
// SQLite is the default store; a postgres:// DSN switches to pgx.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	DSN         string
	DialTimeout time.Duration
}

// DB wraps the connection with the driver name so queries can be rebound to
// the right placeholder style.
type DB struct {
	*sql.DB
	driver string
}

// bind rewrites ? placeholders to $n for the pgx driver. SQLite takes ?
// natively.
func (d *DB) bind(query string) string {
	if d.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Open connects to the store named by the DSN and ensures the schema exists.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		driver = "pgx"
	}
	logger.Info("connecting to database", "driver", driver)

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return nil, err
	}

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		_ = db.Close()
		return nil, err
	}

	if err := migrate(ctx, db); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		_ = db.Close()
		return nil, err
	}

	logger.Info("successfully connected to database")
	return &DB{DB: db, driver: driver}, nil
}

// Close closes the database connection gracefully.
func Close(db *DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.DB.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
		return
	}
	logger.Info("database connection closed")
}

// migrate creates tables if missing. The SQL stays within the dialect
// intersection of SQLite and Postgres.
func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS visits (
			id TEXT PRIMARY KEY,
			patient_name TEXT NOT NULL DEFAULT '',
			visit_date TEXT NOT NULL DEFAULT '',
			document_path TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			strategy TEXT NOT NULL DEFAULT '',
			record_json TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS visits_document_path ON visits (document_path)`,
		`CREATE TABLE IF NOT EXISTS extract_jobs (
			id TEXT PRIMARY KEY,
			source_path TEXT NOT NULL,
			format TEXT NOT NULL,
			status TEXT NOT NULL,
			extraction_method TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			text_length INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
