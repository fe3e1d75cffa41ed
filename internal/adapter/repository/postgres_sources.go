package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/jackc/pgx/v5"
)

const sourceColumns = `s.id, s.owner_kind, s.owner_id, s.fact_id, s.fact_value_id, s.iobject_id,
	s.report_revision_id, s.report_identifier_id, s.tlp, s.origin, s.processing, s.outdated, s.created_at,
	coalesce((SELECT array_agg(se.entity_id ORDER BY se.entity_id) FROM source_entities se WHERE se.source_id = s.id), '{}')`

func scanSource(row pgx.Row) (domain.Source, error) {
	var (
		s                       domain.Source
		kind                    string
		tlp, origin, processing int16
	)
	err := row.Scan(&s.ID, &kind, &s.Owner.ID, &s.FactID, &s.FactValueID, &s.IObjectID,
		&s.ReportRevisionID, &s.ReportIdentifierID, &tlp, &origin, &processing, &s.Outdated, &s.Timestamp,
		&s.RelatedEntityIDs)
	s.Owner.Kind = domain.TargetKind(kind)
	s.TLP = domain.TLP(tlp)
	s.Origin = domain.Origin(origin)
	s.Processing = domain.Processing(processing)
	return s, err
}

func (r *pgRepo) querySources(ctx context.Context, where string, args ...any) ([]domain.Source, error) {
	rows, err := r.q.Query(ctx, `SELECT `+sourceColumns+` FROM sources s WHERE `+where+` ORDER BY s.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Source, error) {
		return scanSource(row)
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

// UpsertSource reports created=true only for a new row (xmax = 0).
func (r *pgRepo) UpsertSource(ctx context.Context, s domain.Source) (domain.Source, bool, error) {
	var (
		id      int64
		created bool
	)
	err := r.q.QueryRow(ctx, `
		INSERT INTO sources (owner_kind, owner_id, fact_id, fact_value_id, iobject_id,
			report_revision_id, report_identifier_id, tlp, origin, processing)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (fact_id, fact_value_id, report_identifier_id, owner_kind, owner_id) DO UPDATE SET
			iobject_id = EXCLUDED.iobject_id,
			report_revision_id = EXCLUDED.report_revision_id,
			tlp = EXCLUDED.tlp,
			origin = EXCLUDED.origin,
			processing = EXCLUDED.processing,
			outdated = false
		RETURNING id, (xmax = 0)`,
		string(s.Owner.Kind), s.Owner.ID, s.FactID, s.FactValueID, s.IObjectID,
		s.ReportRevisionID, s.ReportIdentifierID, int16(s.TLP), int16(s.Origin), int16(s.Processing),
	).Scan(&id, &created)
	if err != nil {
		return domain.Source{}, false, fmt.Errorf("failed to upsert source: %w", mapErr(err))
	}
	out, err := r.querySources(ctx, "s.id = $1", id)
	if err != nil {
		return domain.Source{}, false, err
	}
	if len(out) == 0 {
		return domain.Source{}, false, ports.ErrNotFound
	}
	return out[0], created, nil
}

// SetSourceEntities replaces the related entities of a source.
func (r *pgRepo) SetSourceEntities(ctx context.Context, sourceID int64, entityIDs []int64) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM source_entities WHERE source_id = $1`, sourceID)
	for _, id := range uniqueIDs(entityIDs) {
		batch.Queue(`INSERT INTO source_entities (source_id, entity_id) VALUES ($1, $2)`, sourceID, id)
	}
	br := r.q.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to set entities of source %d: %w", sourceID, err)
		}
	}
	return nil
}

func (r *pgRepo) SourcesByFacts(ctx context.Context, factIDs []int64) ([]domain.Source, error) {
	return r.querySources(ctx, "s.fact_id = ANY($1)", factIDs)
}

func (r *pgRepo) SourcesForTargets(ctx context.Context, targets []domain.Target) ([]domain.Source, error) {
	kinds, ids := splitTargets(targets)
	return r.querySources(ctx,
		"(s.owner_kind, s.owner_id) IN (SELECT * FROM unnest($1::text[], $2::bigint[]))", kinds, ids)
}

func (r *pgRepo) CurrentSources(ctx context.Context, identifierIDs []int64) ([]domain.Source, error) {
	if identifierIDs == nil {
		return r.querySources(ctx, "NOT s.outdated")
	}
	return r.querySources(ctx, "NOT s.outdated AND s.report_identifier_id = ANY($1)", identifierIDs)
}

func (r *pgRepo) MarkSourcesOutdated(ctx context.Context, ids []int64) error {
	if _, err := r.q.Exec(ctx, `UPDATE sources SET outdated = true WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to mark sources outdated: %w", err)
	}
	return nil
}

// entities

const entityColumns = `e.id, e.identifier_id, e.non_iobject_id, e.entity_type_id, et.name, e.essence, e.created_at`

func scanEntity(row pgx.Row) (domain.StixEntity, error) {
	var (
		e   domain.StixEntity
		raw []byte
	)
	if err := row.Scan(&e.ID, &e.IdentifierID, &e.NonIObjectID, &e.EntityTypeID, &e.EntityType, &raw, &e.Timestamp); err != nil {
		return e, err
	}
	if err := json.Unmarshal(raw, &e.Essence); err != nil {
		return e, fmt.Errorf("failed to decode essence of entity %d: %w", e.ID, err)
	}
	return e, nil
}

// UpsertEntity overwrites the essence of an existing entity.
func (r *pgRepo) UpsertEntity(ctx context.Context, e domain.StixEntity) (domain.StixEntity, error) {
	essence, err := json.Marshal(e.Essence)
	if err != nil {
		return e, fmt.Errorf("failed to encode essence: %w", err)
	}
	var id int64
	err = r.q.QueryRow(ctx, `
		INSERT INTO stix_entities (identifier_id, non_iobject_id, entity_type_id, essence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identifier_id, non_iobject_id) DO UPDATE SET
			entity_type_id = EXCLUDED.entity_type_id,
			essence = EXCLUDED.essence
		RETURNING id`,
		e.IdentifierID, e.NonIObjectID, e.EntityTypeID, essence).Scan(&id)
	if err != nil {
		return e, fmt.Errorf("failed to upsert entity: %w", mapErr(err))
	}
	out, err := r.EntitiesByIDs(ctx, []int64{id})
	if err != nil {
		return e, err
	}
	if len(out) == 0 {
		return e, ports.ErrNotFound
	}
	return out[0], nil
}

func (r *pgRepo) EntitiesByIDs(ctx context.Context, ids []int64) ([]domain.StixEntity, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+entityColumns+`
		FROM stix_entities e
		JOIN entity_types et ON et.id = e.entity_type_id
		WHERE e.id = ANY($1)
		ORDER BY e.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StixEntity, error) {
		return scanEntity(row)
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func splitTargets(targets []domain.Target) ([]string, []int64) {
	kinds := make([]string, 0, len(targets))
	ids := make([]int64, 0, len(targets))
	for _, t := range targets {
		kinds = append(kinds, string(t.Kind))
		ids = append(ids, t.ID)
	}
	return kinds, ids
}
