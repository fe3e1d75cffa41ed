package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/jackc/pgx/v5"
)

const indicatorColumns = `i.id, i.type_id, i.subtype_id, i.value, i.synced_tags, i.actionable_tags_cache`

func scanIndicator(row pgx.Row, ind *domain.Indicator, extra ...any) error {
	dest := append([]any{&ind.ID, &ind.TypeID, &ind.SubtypeID, &ind.Value, &ind.SyncedTags, &ind.TagCache}, extra...)
	return row.Scan(dest...)
}

func (r *pgRepo) GetOrCreateIndicator(ctx context.Context, typeID, subtypeID int64, value string) (domain.Indicator, bool, error) {
	var ind domain.Indicator
	err := scanIndicator(r.q.QueryRow(ctx, `
		INSERT INTO indicators AS i (type_id, subtype_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (type_id, subtype_id, value) DO NOTHING
		RETURNING `+indicatorColumns,
		typeID, subtypeID, value), &ind)
	if err == nil {
		return ind, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ind, false, fmt.Errorf("failed to insert indicator: %w", mapErr(err))
	}
	err = scanIndicator(r.q.QueryRow(ctx, `
		SELECT `+indicatorColumns+`
		FROM indicators i
		WHERE i.type_id = $1 AND i.subtype_id = $2 AND i.value = $3`,
		typeID, subtypeID, value), &ind)
	if err != nil {
		return ind, false, fmt.Errorf("failed to look up indicator: %w", mapErr(err))
	}
	return ind, false, nil
}

func (r *pgRepo) GetIndicator(ctx context.Context, id int64) (domain.Indicator, error) {
	var ind domain.Indicator
	err := scanIndicator(r.q.QueryRow(ctx,
		`SELECT `+indicatorColumns+` FROM indicators i WHERE i.id = $1`, id), &ind)
	if err != nil {
		return ind, mapErr(err)
	}
	return ind, nil
}

func (r *pgRepo) IndicatorsByIDs(ctx context.Context, ids []int64) ([]domain.Indicator, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+indicatorColumns+` FROM indicators i WHERE i.id = ANY($1) ORDER BY i.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query indicators: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Indicator, error) {
		var ind domain.Indicator
		err := scanIndicator(row, &ind)
		return ind, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (r *pgRepo) UpdateSyncedTags(ctx context.Context, id int64, tags string) error {
	return r.updateIndicator(ctx, `UPDATE indicators SET synced_tags = $2 WHERE id = $1`, id, tags)
}

func (r *pgRepo) UpdateTagCache(ctx context.Context, id int64, cache string) error {
	return r.updateIndicator(ctx, `UPDATE indicators SET actionable_tags_cache = $2 WHERE id = $1`, id, cache)
}

func (r *pgRepo) updateIndicator(ctx context.Context, sql string, id int64, v string) error {
	tag, err := r.q.Exec(ctx, sql, id, v)
	if err != nil {
		return fmt.Errorf("failed to update indicator %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// LockIndicator takes a transaction scoped advisory lock on the indicator id.
func (r *pgRepo) LockIndicator(ctx context.Context, id int64) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, id); err != nil {
		return fmt.Errorf("failed to lock indicator %d: %w", id, err)
	}
	return nil
}

var indicatorSorts = map[string]string{
	"":      "i.id",
	"id":    "i.id",
	"value": "i.value",
	"type":  "t.name, i.value",
	"tags":  "i.actionable_tags_cache",
}

// ListIndicators joins each indicator with its newest active status.
func (r *pgRepo) ListIndicators(ctx context.Context, q ports.IndicatorQuery) ([]domain.IndicatorView, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(q.Types) > 0 {
		where = append(where, "t.name = ANY("+arg(q.Types)+")")
	}
	if q.Search != "" {
		where = append(where, "i.value ILIKE '%' || "+arg(q.Search)+" || '%'")
	}
	if q.TagSearch != "" {
		where = append(where, "strpos(i.actionable_tags_cache, "+arg(q.TagSearch)+") > 0")
	}
	if q.ActiveOnly {
		where = append(where, "s.active")
	}
	if q.ExcludeFalsePositives {
		where = append(where, "NOT coalesce(s.false_positive, false)")
	}

	from := `
		FROM indicators i
		JOIN indicator_types t ON t.id = i.type_id
		JOIN indicator_subtypes st ON st.id = i.subtype_id
		LEFT JOIN LATERAL (
			SELECT l.status_id FROM status_links l
			WHERE l.target_kind = 'indicator' AND l.target_id = i.id AND l.active
			ORDER BY l.created_at DESC, l.id DESC
			LIMIT 1
		) cur ON true
		LEFT JOIN statuses s ON s.id = cur.status_id`
	if len(where) > 0 {
		from += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) `+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count indicators: %w", err)
	}

	order, ok := indicatorSorts[q.SortBy]
	if !ok {
		order = indicatorSorts[""]
	}
	if q.Descending {
		order = strings.ReplaceAll(order, ",", " DESC,") + " DESC"
	}
	sql := `SELECT ` + indicatorColumns + `, t.name, st.name,
		s.id, s.most_permissive_tlp, s.most_restrictive_tlp, s.max_confidence, s.best_processing,
		s.kill_chain_phases, s.active, s.false_positive, s.priority ` + from + `
		ORDER BY ` + order
	if q.Limit > 0 {
		sql += " LIMIT " + arg(q.Limit)
	}
	if q.Offset > 0 {
		sql += " OFFSET " + arg(q.Offset)
	}

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query indicators: %w", err)
	}
	views, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.IndicatorView, error) {
		var (
			v  domain.IndicatorView
			st nullableStatus
		)
		err := scanIndicator(row, &v.Indicator, append([]any{&v.Type, &v.Subtype}, st.dest()...)...)
		v.Status = st.status()
		return v, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("error iterating rows: %w", err)
	}
	return views, total, nil
}
