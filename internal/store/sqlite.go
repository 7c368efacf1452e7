package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Key/value settings (session token lives under "authkey")
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Last-known snapshot per scope; one row per scope, replaced wholesale
	CREATE TABLE IF NOT EXISTS snapshots (
		scope TEXT PRIMARY KEY,
		seq INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL
	);

	-- Operator action log
	CREATE TABLE IF NOT EXISTS action_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		target TEXT NOT NULL,
		ok INTEGER NOT NULL,
		message TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_action_log_target ON action_log(target, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetSetting returns the value for key, or "" when unset.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a setting.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes a setting.
func (s *SQLiteStore) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return err
}

// SaveSnapshot replaces the stored snapshot for snap.Scope.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.ReceivedAt.IsZero() {
		snap.ReceivedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (scope, seq, payload, received_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET seq = excluded.seq, payload = excluded.payload, received_at = excluded.received_at`,
		snap.Scope, snap.Seq, string(snap.Payload), snap.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", snap.Scope, err)
	}
	return nil
}

// LatestSnapshot returns the stored snapshot for scope, or nil if none.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, scope string) (*Snapshot, error) {
	var (
		snap    Snapshot
		payload string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT scope, seq, payload, received_at FROM snapshots WHERE scope = ?`, scope).
		Scan(&snap.Scope, &snap.Seq, &payload, &snap.ReceivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", scope, err)
	}
	snap.Payload = []byte(payload)
	return &snap, nil
}

// LogAction appends an entry to the action log.
func (s *SQLiteStore) LogAction(ctx context.Context, entry ActionEntry) error {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	ok := 0
	if entry.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_log (action, target, ok, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.Action, entry.Target, ok, entry.Message, entry.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to log action: %w", err)
	}
	return nil
}

// GetActions returns action log entries, newest first.
func (s *SQLiteStore) GetActions(ctx context.Context, filter ActionFilter) ([]ActionEntry, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Target != "" {
		where = append(where, "target = ?")
		args = append(args, filter.Target)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `SELECT id, action, target, ok, COALESCE(message, ''), created_at FROM action_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var entries []ActionEntry
	for rows.Next() {
		var (
			e  ActionEntry
			ok int
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Target, &ok, &e.Message, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		e.OK = ok == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
