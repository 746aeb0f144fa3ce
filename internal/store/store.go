// Package store provides durable server state — the ban list and the
// administrative audit log — backed by an embedded SQLite database. Chat
// and DM bodies are never persisted here.
//
// Migration design: SQL statements are kept in the migrations slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

var migrations = []string{
	// v1 — audit log
	`CREATE TABLE IF NOT EXISTS audit_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		actor        TEXT NOT NULL,
		action       TEXT NOT NULL,
		target       TEXT NOT NULL DEFAULT '',
		reason       TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2 — bans
	`CREATE TABLE IF NOT EXISTS bans (
		username   TEXT PRIMARY KEY,
		reason     TEXT NOT NULL DEFAULT '',
		banned_by  TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v3 — indexes for audit queries
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
	// v4 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// Store wraps a SQLite database and exposes ban/audit persistence.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	if path == ":memory:" {
		// Each connection to ":memory:" opens its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		slog.Warn("store: set busy_timeout failed", "err", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		slog.Debug("store: applied migration", "version", v)
	}
	return nil
}

// InsertAuditLog records an administrative action.
func (s *Store) InsertAuditLog(actor, action, target, reason string) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log(actor, action, target, reason) VALUES(?,?,?,?)`,
		actor, action, target, reason,
	)
	return err
}

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ID        int64
	Actor     string
	Action    string
	Target    string
	Reason    string
	CreatedAt int64
}

// GetAuditLog returns the most recent entries, newest first, up to limit.
func (s *Store) GetAuditLog(limit int) ([]AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, actor, action, target, reason, created_at FROM audit_log ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Target, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// InsertBan upserts a ban record for username.
func (s *Store) InsertBan(username, reason, bannedBy string) error {
	_, err := s.db.Exec(
		`INSERT INTO bans(username, reason, banned_by) VALUES(?,?,?)
		 ON CONFLICT(username) DO UPDATE SET reason = excluded.reason, banned_by = excluded.banned_by`,
		username, reason, bannedBy,
	)
	return err
}

// DeleteBan removes a ban record.
func (s *Store) DeleteBan(username string) error {
	_, err := s.db.Exec(`DELETE FROM bans WHERE username = ?`, username)
	return err
}

// AllBans returns every banned username mapped to its reason, for seeding
// the in-memory roster at startup.
func (s *Store) AllBans() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT username, reason FROM bans`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var u, r string
		if err := rows.Scan(&u, &r); err != nil {
			return nil, err
		}
		out[u] = r
	}
	return out, rows.Err()
}
