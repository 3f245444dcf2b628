// Package storage persists bot settings, per-client values, access levels
// and the online client table in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// OnlineClient is one row of the online client table.
type OnlineClient struct {
	ClientID    int
	DatabaseID  int
	Nickname    string
	RemoteIP    string
	AccessLevel int
}

// SQLite implements the bot's persistence on a SQLite database.
type SQLite struct {
	log  logrus.FieldLogger
	db   *sql.DB
	path string
}

// Open opens (and creates) the database at path and migrates its schema.
// ":memory:" keeps everything in memory.
func Open(ctx context.Context, log logrus.FieldLogger, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	s := &SQLite{
		log:  log.WithField("component", "storage"),
		db:   db,
		path: path,
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.log.WithField("path", path).Info("Opened database")

	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS client_settings (
		cldbid INTEGER NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (cldbid, key)
	);

	CREATE TABLE IF NOT EXISTS client_access_levels (
		cldbid INTEGER PRIMARY KEY,
		level INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS online_clients (
		clid INTEGER PRIMARY KEY,
		cldbid INTEGER NOT NULL,
		nickname TEXT NOT NULL,
		remote_ip TEXT NOT NULL,
		access_level INTEGER NOT NULL,
		connected_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_online_clients_cldbid ON online_clients(cldbid);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	return nil
}

// Value returns a global setting, or def when unset.
func (s *SQLite) Value(ctx context.Context, key, def string) (string, error) {
	var value string

	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}

	if err != nil {
		return def, fmt.Errorf("failed to read setting %q: %w", key, err)
	}

	return value, nil
}

// SetValue stores a global setting.
func (s *SQLite) SetValue(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}

	return nil
}

// ClientValue returns one persisted client value, or def when unset.
func (s *SQLite) ClientValue(ctx context.Context, cldbid int, key, def string) (string, error) {
	var value string

	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_settings WHERE cldbid = ? AND key = ?`, cldbid, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}

	if err != nil {
		return def, fmt.Errorf("failed to read client value %q: %w", key, err)
	}

	return value, nil
}

// SetClientValue persists one client value.
func (s *SQLite) SetClientValue(ctx context.Context, cldbid int, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO client_settings (cldbid, key, value) VALUES (?, ?, ?)`, cldbid, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write client value %q: %w", key, err)
	}

	return nil
}

// ClientValues returns every persisted value of a client.
func (s *SQLite) ClientValues(ctx context.Context, cldbid int) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM client_settings WHERE cldbid = ?`, cldbid)
	if err != nil {
		return nil, fmt.Errorf("failed to read client values: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan client value: %w", err)
		}

		values[key] = value
	}

	return values, rows.Err()
}

// SetClientAccessLevel records a client's resolved access level.
func (s *SQLite) SetClientAccessLevel(ctx context.Context, cldbid, level int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO client_access_levels (cldbid, level, updated_at) VALUES (?, ?, ?)`,
		cldbid, level, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write access level: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE online_clients SET access_level = ? WHERE cldbid = ?`, level, cldbid); err != nil {
		return fmt.Errorf("failed to update online access level: %w", err)
	}

	return nil
}

// ClientAccessLevel returns the last recorded access level of a client.
func (s *SQLite) ClientAccessLevel(ctx context.Context, cldbid int) (int, bool, error) {
	var level int

	err := s.db.QueryRowContext(ctx, `SELECT level FROM client_access_levels WHERE cldbid = ?`, cldbid).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("failed to read access level: %w", err)
	}

	return level, true, nil
}

// RecordOnline inserts or refreshes an online client row.
func (s *SQLite) RecordOnline(ctx context.Context, c OnlineClient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO online_clients (clid, cldbid, nickname, remote_ip, access_level, connected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(clid) DO UPDATE SET
			cldbid = excluded.cldbid,
			nickname = excluded.nickname,
			remote_ip = excluded.remote_ip,
			access_level = excluded.access_level`,
		c.ClientID, c.DatabaseID, c.Nickname, c.RemoteIP, c.AccessLevel, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record online client %d: %w", c.ClientID, err)
	}

	return nil
}

// RemoveOnline deletes an online client row.
func (s *SQLite) RemoveOnline(ctx context.Context, clid int) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM online_clients WHERE clid = ?`, clid); err != nil {
		return fmt.Errorf("failed to remove online client %d: %w", clid, err)
	}

	return nil
}

// ClearOnline empties the online client table.
func (s *SQLite) ClearOnline(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM online_clients`); err != nil {
		return fmt.Errorf("failed to clear online clients: %w", err)
	}

	return nil
}

// OnlineClients returns every online client row ordered by clid.
func (s *SQLite) OnlineClients(ctx context.Context) ([]OnlineClient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT clid, cldbid, nickname, remote_ip, access_level FROM online_clients ORDER BY clid`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read online clients: %w", err)
	}
	defer rows.Close()

	var out []OnlineClient

	for rows.Next() {
		var c OnlineClient
		if err := rows.Scan(&c.ClientID, &c.DatabaseID, &c.Nickname, &c.RemoteIP, &c.AccessLevel); err != nil {
			return nil, fmt.Errorf("failed to scan online client: %w", err)
		}

		out = append(out, c)
	}

	return out, rows.Err()
}
