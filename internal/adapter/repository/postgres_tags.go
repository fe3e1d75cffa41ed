package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/jackc/pgx/v5"
)

const contextColumns = `id, name, type, title, description, related_incident_id, created_at`

func scanContext(row pgx.Row) (domain.Context, error) {
	var (
		c   domain.Context
		typ int16
	)
	err := row.Scan(&c.ID, &c.Name, &typ, &c.Title, &c.Description, &c.RelatedIncidentID, &c.Timestamp)
	c.Type = domain.ContextType(typ)
	return c, err
}

func (r *pgRepo) LoadContexts(ctx context.Context) ([]domain.Context, error) {
	rows, err := r.q.Query(ctx, `SELECT `+contextColumns+` FROM contexts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contexts: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Context, error) {
		return scanContext(row)
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (r *pgRepo) GetOrCreateContext(ctx context.Context, c domain.Context) (domain.Context, bool, error) {
	created, err := scanContext(r.q.QueryRow(ctx, `
		INSERT INTO contexts (name, type, title, description, related_incident_id, created_at)
		VALUES ($1, $2, $3, $4, $5, coalesce($6, now()))
		ON CONFLICT (name) DO NOTHING
		RETURNING `+contextColumns,
		c.Name, int16(c.Type), c.Title, c.Description, c.RelatedIncidentID, nullTime(c.Timestamp)))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return c, false, fmt.Errorf("failed to insert context %q: %w", c.Name, mapErr(err))
	}
	existing, err := r.GetContext(ctx, c.Name)
	return existing, false, err
}

func (r *pgRepo) GetContext(ctx context.Context, name string) (domain.Context, error) {
	c, err := scanContext(r.q.QueryRow(ctx, `SELECT `+contextColumns+` FROM contexts WHERE name = $1`, name))
	if err != nil {
		return c, mapErr(err)
	}
	return c, nil
}

func (r *pgRepo) UpdateContext(ctx context.Context, c domain.Context) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE contexts SET name = $2, type = $3, title = $4, description = $5, related_incident_id = $6
		WHERE id = $1`,
		c.ID, c.Name, int16(c.Type), c.Title, c.Description, c.RelatedIncidentID)
	if err != nil {
		return fmt.Errorf("failed to update context %d: %w", c.ID, mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// DeleteContexts relies on ON DELETE CASCADE for tags, attachments and history.
func (r *pgRepo) DeleteContexts(ctx context.Context, names []string) (int, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM contexts WHERE name = ANY($1)`, names)
	if err != nil {
		return 0, fmt.Errorf("failed to delete contexts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// actionable tags

func (r *pgRepo) LoadActionableTags(ctx context.Context) ([]domain.ActionableTag, error) {
	rows, err := r.q.Query(ctx, `SELECT id, context_id, tag_name_id FROM actionable_tags ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query actionable tags: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ActionableTag, error) {
		var t domain.ActionableTag
		err := row.Scan(&t.ID, &t.ContextID, &t.TagNameID)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (r *pgRepo) GetOrCreateActionableTag(ctx context.Context, contextID, tagNameID int64) (domain.ActionableTag, bool, error) {
	t := domain.ActionableTag{ContextID: contextID, TagNameID: tagNameID}
	err := r.q.QueryRow(ctx, `
		INSERT INTO actionable_tags (context_id, tag_name_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
		RETURNING id`, contextID, tagNameID).Scan(&t.ID)
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return t, false, fmt.Errorf("failed to insert actionable tag: %w", mapErr(err))
	}
	err = r.q.QueryRow(ctx, `
		SELECT id FROM actionable_tags WHERE context_id = $1 AND tag_name_id = $2`,
		contextID, tagNameID).Scan(&t.ID)
	if err != nil {
		return t, false, mapErr(err)
	}
	return t, false, nil
}

func (r *pgRepo) AttachTag(ctx context.Context, tagID int64, t domain.Target) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO actionable_tag_targets (tag_id, target_kind, target_id) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, tagID, string(t.Kind), t.ID)
	if err != nil {
		return false, fmt.Errorf("failed to attach tag %d: %w", tagID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgRepo) DetachTag(ctx context.Context, tagID int64, t domain.Target) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM actionable_tag_targets WHERE tag_id = $1 AND target_kind = $2 AND target_id = $3`,
		tagID, string(t.Kind), t.ID)
	if err != nil {
		return false, fmt.Errorf("failed to detach tag %d: %w", tagID, err)
	}
	return tag.RowsAffected() == 1, nil
}

const targetFilter = `(x.target_kind, x.target_id) IN (SELECT * FROM unnest($1::text[], $2::bigint[]))`

func (r *pgRepo) AttachedTags(ctx context.Context, targets []domain.Target) ([]domain.AttachedTag, error) {
	kinds, ids := splitTargets(targets)
	rows, err := r.q.Query(ctx, `
		SELECT x.tag_id, x.target_kind, x.target_id, c.name, n.name
		FROM actionable_tag_targets x
		JOIN actionable_tags t ON t.id = x.tag_id
		JOIN contexts c ON c.id = t.context_id
		JOIN tag_names n ON n.id = t.tag_name_id
		WHERE `+targetFilter+`
		ORDER BY x.target_kind, x.target_id, (c.name || ':' || n.name) COLLATE "C"`, kinds, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query attached tags: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AttachedTag, error) {
		var (
			a    domain.AttachedTag
			kind string
		)
		err := row.Scan(&a.TagID, &kind, &a.Target.ID, &a.Context, &a.Name)
		a.Target.Kind = domain.TargetKind(kind)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (r *pgRepo) TargetsWithTags(ctx context.Context, names []string) ([]domain.Target, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT x.target_kind, x.target_id
		FROM actionable_tag_targets x
		JOIN actionable_tags t ON t.id = x.tag_id
		JOIN contexts c ON c.id = t.context_id
		JOIN tag_names n ON n.id = t.tag_name_id
		WHERE c.name = ANY($1) OR n.name = ANY($1)
		ORDER BY x.target_kind, x.target_id`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to query tagged targets: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Target, error) {
		var (
			t    domain.Target
			kind string
		)
		err := row.Scan(&kind, &t.ID)
		t.Kind = domain.TargetKind(kind)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (r *pgRepo) AppendTagHistory(ctx context.Context, entries []domain.TagHistoryEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO actionable_tag_history (tag_id, target_kind, target_id, action, username, comment, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, coalesce($7, now()))`,
			e.TagID, string(e.Target.Kind), e.Target.ID, int16(e.Action), e.User, e.Comment, nullTime(e.Timestamp))
	}
	br := r.q.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to append tag history: %w", err)
		}
	}
	return nil
}

func (r *pgRepo) TagHistory(ctx context.Context, contextName string) ([]domain.TagHistoryEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT h.id, h.tag_id, h.target_kind, h.target_id, h.action, h.username, h.comment, h.created_at,
			c.name, n.name
		FROM actionable_tag_history h
		JOIN actionable_tags t ON t.id = h.tag_id
		JOIN contexts c ON c.id = t.context_id
		JOIN tag_names n ON n.id = t.tag_name_id
		WHERE c.name = $1
		ORDER BY h.id`, contextName)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag history: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TagHistoryEntry, error) {
		var (
			h      domain.TagHistoryEntry
			kind   string
			action int16
		)
		err := row.Scan(&h.ID, &h.TagID, &kind, &h.Target.ID, &action, &h.User, &h.Comment, &h.Timestamp,
			&h.Tag.Context, &h.Tag.Name)
		h.Target.Kind = domain.TargetKind(kind)
		h.Action = domain.TagAction(action)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// nullTime lets the database stamp rows the caller left undated.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
