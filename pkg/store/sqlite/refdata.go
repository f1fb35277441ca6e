package sqlite

import (
	"context"
	"fmt"

	"github.com/goliatone/go-formwizard/pkg/refdata"
)

var _ refdata.Provider = (*DB)(nil)

// ImportOptions replaces the list of source under parent.
func (d *DB) ImportOptions(ctx context.Context, source, parent string, options []refdata.Option) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO ref_sources (source) VALUES (?)`, source); err != nil {
		return fmt.Errorf("register source: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ref_options WHERE source = ? AND parent = ?`, source, parent); err != nil {
		return fmt.Errorf("clear options: %w", err)
	}
	for i, option := range options {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO ref_options (source, parent, position, value, label) VALUES (?, ?, ?, ?, ?)`,
			source, parent, i, option.Value, option.Label,
		); err != nil {
			return fmt.Errorf("insert option: %w", err)
		}
	}
	return tx.Commit()
}

// ImportStatic loads every list of data.
func (d *DB) ImportStatic(ctx context.Context, data refdata.Static) error {
	for _, source := range data.Sources() {
		for parent, options := range data[source] {
			if err := d.ImportOptions(ctx, source, parent, options); err != nil {
				return fmt.Errorf("import %s/%s: %w", source, parent, err)
			}
		}
	}
	return nil
}

// List implements refdata.Provider.
func (d *DB) List(ctx context.Context, source, parentKey string) ([]refdata.Option, error) {
	var known int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ref_sources WHERE source = ?`, source).Scan(&known); err != nil {
		return nil, fmt.Errorf("lookup source: %w", err)
	}
	if known == 0 {
		return nil, fmt.Errorf("%w: %q", refdata.ErrUnknownSource, source)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT value, label FROM ref_options WHERE source = ? AND parent = ? ORDER BY position`,
		source, parentKey,
	)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	out := []refdata.Option{}
	for rows.Next() {
		var option refdata.Option
		if err := rows.Scan(&option.Value, &option.Label); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		out = append(out, option)
	}
	return out, rows.Err()
}
