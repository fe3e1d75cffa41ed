package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/jackc/pgx/v5"
)

var nameTables = map[ports.NameTable]bool{
	ports.IndicatorTypes:    true,
	ports.IndicatorSubtypes: true,
	ports.TagNames:          true,
	ports.EntityTypes:       true,
}

// tableName guards the identifiers interpolated into name queries.
func tableName(t ports.NameTable) (string, error) {
	if !nameTables[t] {
		return "", fmt.Errorf("unknown name table %q", t)
	}
	return pgx.Identifier{string(t)}.Sanitize(), nil
}

func (r *pgRepo) LoadNames(ctx context.Context, table ports.NameTable) ([]domain.NamedID, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}
	rows, err := r.q.Query(ctx, `SELECT id, name FROM `+tbl+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.NamedID, error) {
		var n domain.NamedID
		err := row.Scan(&n.ID, &n.Name)
		return n, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// GetOrCreateName inserts the name unless present. ON CONFLICT keeps a
// concurrent insert from aborting the transaction.
func (r *pgRepo) GetOrCreateName(ctx context.Context, table ports.NameTable, name string) (int64, bool, error) {
	tbl, err := tableName(table)
	if err != nil {
		return 0, false, err
	}
	var id int64
	err = r.q.QueryRow(ctx,
		`INSERT INTO `+tbl+` (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id`,
		name).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to insert %s %q: %w", table, name, mapErr(err))
	}
	if err := r.q.QueryRow(ctx, `SELECT id FROM `+tbl+` WHERE name = $1`, name).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("failed to look up %s %q: %w", table, name, mapErr(err))
	}
	return id, false, nil
}

func (r *pgRepo) RenameName(ctx context.Context, table ports.NameTable, from, to string) error {
	tbl, err := tableName(table)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `UPDATE `+tbl+` SET name = $2 WHERE name = $1`, from, to)
	if err != nil {
		return fmt.Errorf("failed to rename %s %q: %w", table, from, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// DeleteNames relies on ON DELETE CASCADE for dependent actionable tags.
func (r *pgRepo) DeleteNames(ctx context.Context, table ports.NameTable, names []string) (int, error) {
	tbl, err := tableName(table)
	if err != nil {
		return 0, err
	}
	tag, err := r.q.Exec(ctx, `DELETE FROM `+tbl+` WHERE name = ANY($1)`, names)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", table, err)
	}
	return int(tag.RowsAffected()), nil
}
