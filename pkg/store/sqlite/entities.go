package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/goliatone/go-formwizard/pkg/attachments"
	"github.com/goliatone/go-formwizard/pkg/store"
)

// Entities is a store.Store over one resource. Updates merge into the stored
// document like the remote backend does.
type Entities struct {
	db       *DB
	resource string
	nextID   func() string
}

var _ store.Store = (*Entities)(nil)

// Entities returns the store for resource.
func (d *DB) Entities(resource string) *Entities {
	return &Entities{db: d, resource: resource, nextID: uuid.NewString}
}

// Create inserts a new entity.
func (e *Entities) Create(ctx context.Context, dto map[string]any, files store.Files) (string, error) {
	id := e.nextID()
	doc := make(map[string]any, len(dto)+1)
	for k, v := range dto {
		doc[k] = v
	}
	doc["id"] = id
	for name, file := range files {
		doc[name] = file.Name
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode entity: %w", err)
	}

	tx, err := e.db.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin create: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := e.db.timestamp()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entities (resource, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		e.resource, id, string(data), now, now,
	); err != nil {
		return "", fmt.Errorf("insert entity: %w", err)
	}
	if err := e.putFiles(ctx, tx, id, files); err != nil {
		return "", err
	}
	return id, tx.Commit()
}

// Update merges dto into entity id.
func (e *Entities) Update(ctx context.Context, id string, dto map[string]any, files store.Files) (string, error) {
	tx, err := e.db.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	doc, err := e.load(ctx, tx, id)
	if err != nil {
		return "", err
	}
	for k, v := range dto {
		doc[k] = v
	}
	doc["id"] = id
	for name, file := range files {
		doc[name] = file.Name
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode entity: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET data = ?, updated_at = ? WHERE resource = ? AND id = ?`,
		string(data), e.db.timestamp(), e.resource, id,
	); err != nil {
		return "", fmt.Errorf("update entity: %w", err)
	}
	if err := e.putFiles(ctx, tx, id, files); err != nil {
		return "", err
	}
	return id, tx.Commit()
}

// GetByID loads entity id.
func (e *Entities) GetByID(ctx context.Context, id string) (store.Entity, error) {
	var raw string
	err := e.db.db.QueryRowContext(ctx,
		`SELECT data FROM entities WHERE resource = ? AND id = ?`, e.resource, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load entity: %w", err)
	}
	var doc store.Entity
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return doc, nil
}

// File returns an uploaded part of entity id.
func (e *Entities) File(ctx context.Context, id, name string) (attachments.File, error) {
	var file attachments.File
	err := e.db.db.QueryRowContext(ctx,
		`SELECT filename, content_type, data FROM entity_files WHERE resource = ? AND id = ? AND name = ?`,
		e.resource, id, name,
	).Scan(&file.Name, &file.ContentType, &file.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return attachments.File{}, store.NotFound(id + "/" + name)
	}
	if err != nil {
		return attachments.File{}, fmt.Errorf("load file: %w", err)
	}
	return file, nil
}

func (e *Entities) load(ctx context.Context, tx *sql.Tx, id string) (map[string]any, error) {
	var raw string
	err := tx.QueryRowContext(ctx,
		`SELECT data FROM entities WHERE resource = ? AND id = ?`, e.resource, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load entity: %w", err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return doc, nil
}

func (e *Entities) putFiles(ctx context.Context, tx *sql.Tx, id string, files store.Files) error {
	for name, file := range files {
		data := file.Data
		if data == nil {
			data = []byte{}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO entity_files (resource, id, name, filename, content_type, data) VALUES (?, ?, ?, ?, ?, ?)`,
			e.resource, id, name, file.Name, file.ContentType, data,
		); err != nil {
			return fmt.Errorf("store file %s: %w", name, err)
		}
	}
	return nil
}
