// Package sqlite keeps wizard data in a local SQLite file: reference-data
// lists, session snapshots and, for offline use, entities with their files.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrSnapshotNotFound is returned by LoadSnapshot for unknown ids.
var ErrSnapshotNotFound = errors.New("sqlite: snapshot not found")

const schema = `
CREATE TABLE IF NOT EXISTS ref_sources (
	source TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS ref_options (
	source   TEXT NOT NULL,
	parent   TEXT NOT NULL,
	position INTEGER NOT NULL,
	value    TEXT NOT NULL,
	label    TEXT NOT NULL,
	PRIMARY KEY (source, parent, value)
);

CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	wizard     TEXT NOT NULL,
	data       BLOB NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
	resource   TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (resource, id)
);

CREATE TABLE IF NOT EXISTS entity_files (
	resource     TEXT NOT NULL,
	id           TEXT NOT NULL,
	name         TEXT NOT NULL,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL,
	data         BLOB NOT NULL,
	PRIMARY KEY (resource, id, name)
);`

// Option configures a DB.
type Option func(*DB)

// WithClock sets the time source for stored timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *DB) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *DB) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// DB is an open wizard database.
type DB struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, options ...Option) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	d := &DB{db: db, now: time.Now, logger: zap.NewNop()}
	for _, opt := range options {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) timestamp() string {
	return d.now().UTC().Format(time.RFC3339)
}

// SnapshotInfo describes a stored snapshot without its payload.
type SnapshotInfo struct {
	ID        string
	Wizard    string
	UpdatedAt string
}

// SaveSnapshot upserts the serialised session id.
func (d *DB) SaveSnapshot(ctx context.Context, id, wizard string, data []byte) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, wizard, data, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			wizard = excluded.wizard,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		id, wizard, data, d.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	d.logger.Debug("snapshot saved", zap.String("id", id), zap.String("wizard", wizard), zap.Int("bytes", len(data)))
	return nil
}

// LoadSnapshot returns the wizard id and payload stored under id.
func (d *DB) LoadSnapshot(ctx context.Context, id string) (string, []byte, error) {
	var wizard string
	var data []byte
	err := d.db.QueryRowContext(ctx, `SELECT wizard, data FROM snapshots WHERE id = ?`, id).Scan(&wizard, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("%w: %q", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return "", nil, fmt.Errorf("load snapshot: %w", err)
	}
	return wizard, data, nil
}

// DeleteSnapshot removes id. Deleting a missing snapshot is not an error.
func (d *DB) DeleteSnapshot(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns every snapshot, most recent first.
func (d *DB) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, wizard, updated_at FROM snapshots ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.Wizard, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
