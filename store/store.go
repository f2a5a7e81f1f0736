// Package store provides the local relational store for synchronized CRM
// contacts and the sync run orchestrator.
//
// The database is embedded SQLite (ncruces/go-sqlite3) opened with WAL mode
// for concurrent reads. Contacts are keyed by a locally-generated primary
// key, with a uniqueness constraint on (remote_id, owner_id) serving as the
// upsert conflict target, so repeated syncs never generate duplicate rows and
// never touch the primary key.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/spf13/viper"
	"github.com/syncwise/crmsync/common"
)

// DB wraps the SQLite connection used for contacts and the sync job ledger.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path, creating the
// parent directory if needed. The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// WAL for concurrent readers during a long sync run
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil

	return nil
}

// InitSchema creates the database schema if it doesn't exist. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		remote_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		company TEXT NOT NULL DEFAULT '',
		website TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		zip TEXT NOT NULL DEFAULT '',
		lifecycle_stage TEXT NOT NULL DEFAULT '',
		lead_status TEXT NOT NULL DEFAULT '',

		-- Locally-owned columns the remote system has no concept of;
		-- never written by the sync conflict update.
		business_type TEXT NOT NULL DEFAULT '',
		outreach_ready INTEGER NOT NULL DEFAULT 0,

		remote_created_at TEXT,
		remote_modified_at TEXT,
		last_synced_at TEXT NOT NULL,

		UNIQUE(remote_id, owner_id)
	);

	CREATE INDEX IF NOT EXISTS idx_contacts_owner ON contacts(owner_id);
	CREATE INDEX IF NOT EXISTS idx_contacts_modified
	    ON contacts(owner_id, remote_modified_at);

	CREATE TABLE IF NOT EXISTS sync_jobs (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		records_fetched INTEGER NOT NULL DEFAULT 0,
		records_created INTEGER NOT NULL DEFAULT 0,
		records_updated INTEGER NOT NULL DEFAULT 0,
		records_skipped INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		duration_ms INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_sync_jobs_type
	    ON sync_jobs(job_type, started_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// DefaultStorePath returns the database path for the given owner scope,
// preferring an explicit config or environment override.
func DefaultStorePath(ownerID string) (string, error) {
	if p := viper.GetString("database"); p != "" {
		return p, nil
	}

	if p := os.Getenv(common.EnvDatabase); p != "" {
		return p, nil
	}

	return GenStorePath(ownerID, "", common.LibName)
}

// GenStorePath generates a path to a database file for the given owner
// scope. The filename embeds a short hash of the owner scope and requesting
// application name so that stores are owner- and application-specific.
func GenStorePath(ownerID, dir, appName string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("ownerID is required")
	}

	if appName == "" {
		return "", fmt.Errorf("appName is required")
	}

	// if store directory not defined then create dot path in home directory
	if dir == "" {
		homeDir, err := homedir.Dir()
		if err != nil {
			return "", err
		}

		dir = filepath.Join(homeDir, "."+appName)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to make store directory: %s", dir)
	}

	h := sha256.New()
	h.Write([]byte(ownerID + appName))
	hexedDigest := hex.EncodeToString(h.Sum(nil))[:8]

	return filepath.Join(dir, appName+"-"+hexedDigest+".db"), nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time, layout string) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}

	return sql.NullString{String: t.UTC().Format(layout), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString, layout string) *time.Time {
	if !ns.Valid {
		return nil
	}

	t, err := time.Parse(layout, ns.String)
	if err != nil {
		return nil
	}

	return &t
}
