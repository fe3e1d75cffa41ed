package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

const statusColumns = `id, most_permissive_tlp, most_restrictive_tlp, max_confidence, best_processing,
	kill_chain_phases, active, false_positive, priority`

// nullableStatus scans a status from an outer join.
type nullableStatus struct {
	id            *int64
	permissive    *int16
	restrictive   *int16
	confidence    *int16
	processing    *int16
	phases        *string
	active        *bool
	falsePositive *bool
	priority      *int16
}

func (s *nullableStatus) dest() []any {
	return []any{&s.id, &s.permissive, &s.restrictive, &s.confidence, &s.processing,
		&s.phases, &s.active, &s.falsePositive, &s.priority}
}

func (s *nullableStatus) status() *domain.Status {
	if s.id == nil {
		return nil
	}
	return &domain.Status{
		ID: *s.id,
		StatusFields: domain.StatusFields{
			MostPermissiveTLP:  domain.TLP(*s.permissive),
			MostRestrictiveTLP: domain.TLP(*s.restrictive),
			MaxConfidence:      domain.Confidence(*s.confidence),
			BestProcessing:     domain.Processing(*s.processing),
			KillChainPhases:    *s.phases,
			Active:             *s.active,
			FalsePositive:      *s.falsePositive,
			Priority:           domain.Priority(*s.priority),
		},
	}
}

func scanStatus(row pgx.Row) (domain.Status, error) {
	var ns nullableStatus
	if err := row.Scan(ns.dest()...); err != nil {
		return domain.Status{}, err
	}
	return *ns.status(), nil
}

func statusArgs(f domain.StatusFields) []any {
	return []any{int16(f.MostPermissiveTLP), int16(f.MostRestrictiveTLP), int16(f.MaxConfidence),
		int16(f.BestProcessing), f.KillChainPhases, f.Active, f.FalsePositive, int16(f.Priority)}
}

// GetOrCreateStatus dedups snapshots on their full field tuple.
func (r *pgRepo) GetOrCreateStatus(ctx context.Context, f domain.StatusFields) (domain.Status, bool, error) {
	st, err := scanStatus(r.q.QueryRow(ctx, `
		INSERT INTO statuses (most_permissive_tlp, most_restrictive_tlp, max_confidence, best_processing,
			kill_chain_phases, active, false_positive, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
		RETURNING `+statusColumns, statusArgs(f)...))
	if err == nil {
		return st, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return st, false, fmt.Errorf("failed to insert status: %w", mapErr(err))
	}
	st, err = scanStatus(r.q.QueryRow(ctx, `
		SELECT `+statusColumns+` FROM statuses
		WHERE most_permissive_tlp = $1 AND most_restrictive_tlp = $2 AND max_confidence = $3
			AND best_processing = $4 AND kill_chain_phases = $5 AND active = $6
			AND false_positive = $7 AND priority = $8`, statusArgs(f)...))
	if err != nil {
		return st, false, fmt.Errorf("failed to look up status: %w", mapErr(err))
	}
	return st, false, nil
}

func (r *pgRepo) GetStatus(ctx context.Context, id int64) (domain.Status, error) {
	st, err := scanStatus(r.q.QueryRow(ctx, `SELECT `+statusColumns+` FROM statuses WHERE id = $1`, id))
	if err != nil {
		return st, mapErr(err)
	}
	return st, nil
}

func (r *pgRepo) CreateAction(ctx context.Context, a domain.Action) (domain.Action, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO actions (username, comment, created_at)
		VALUES ($1, $2, coalesce($3, now()))
		RETURNING id, created_at`,
		a.User, a.Comment, nullTime(a.Timestamp)).Scan(&a.ID, &a.Timestamp)
	if err != nil {
		return a, fmt.Errorf("failed to create action: %w", err)
	}
	return a, nil
}

const linkColumns = `id, action_id, status_id, target_kind, target_id, active, created_at`

func (r *pgRepo) queryLinks(ctx context.Context, where string, args ...any) ([]domain.StatusLink, error) {
	rows, err := r.q.Query(ctx, `SELECT `+linkColumns+` FROM status_links WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query status links: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StatusLink, error) {
		var (
			l    domain.StatusLink
			kind string
		)
		err := row.Scan(&l.ID, &l.ActionID, &l.StatusID, &kind, &l.Target.ID, &l.Active, &l.Timestamp)
		l.Target.Kind = domain.TargetKind(kind)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (r *pgRepo) ActiveStatusLinks(ctx context.Context, t domain.Target) ([]domain.StatusLink, error) {
	return r.queryLinks(ctx, "target_kind = $1 AND target_id = $2 AND active", string(t.Kind), t.ID)
}

func (r *pgRepo) StatusHistory(ctx context.Context, t domain.Target) ([]domain.StatusLink, error) {
	return r.queryLinks(ctx, "target_kind = $1 AND target_id = $2", string(t.Kind), t.ID)
}

func (r *pgRepo) DeactivateStatusLinks(ctx context.Context, ids []int64) error {
	if _, err := r.q.Exec(ctx, `UPDATE status_links SET active = false WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to deactivate status links: %w", err)
	}
	return nil
}

func (r *pgRepo) InsertStatusLink(ctx context.Context, l domain.StatusLink) (domain.StatusLink, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO status_links (action_id, status_id, target_kind, target_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, coalesce($6, now()))
		RETURNING id, created_at`,
		l.ActionID, l.StatusID, string(l.Target.Kind), l.Target.ID, l.Active, nullTime(l.Timestamp),
	).Scan(&l.ID, &l.Timestamp)
	if err != nil {
		return l, fmt.Errorf("failed to insert status link: %w", mapErr(err))
	}
	return l, nil
}

// import infos

func (r *pgRepo) CreateImportInfo(ctx context.Context, info domain.ImportInfo) (domain.ImportInfo, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO import_infos (type, username, name, description, comment, report_identifier_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, coalesce($7, now()))
		RETURNING id, created_at`,
		int16(info.Type), info.User, info.Name, info.Description, info.Comment, info.ReportIdentifierID,
		nullTime(info.Timestamp),
	).Scan(&info.ID, &info.Timestamp)
	if err != nil {
		return info, fmt.Errorf("failed to create import info: %w", err)
	}
	return info, nil
}

func (r *pgRepo) GetImportInfo(ctx context.Context, id int64) (domain.ImportInfo, error) {
	var (
		info domain.ImportInfo
		typ  int16
	)
	err := r.q.QueryRow(ctx, `
		SELECT id, type, username, name, description, comment, report_identifier_id, created_at
		FROM import_infos WHERE id = $1`, id).Scan(
		&info.ID, &typ, &info.User, &info.Name, &info.Description, &info.Comment,
		&info.ReportIdentifierID, &info.Timestamp)
	if err != nil {
		return info, mapErr(err)
	}
	info.Type = domain.ImportType(typ)
	return info, nil
}
