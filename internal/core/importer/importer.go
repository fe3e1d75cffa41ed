// Package importer drives report imports: it extracts indicators from
// report graphs, records their sources and statuses, then reconciles tags
// and retires superseded sources.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/graph"
	"github.com/hive-corporation/actionables/internal/core/outdating"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/hive-corporation/actionables/internal/core/registry"
	"github.com/hive-corporation/actionables/internal/core/status"
	"github.com/hive-corporation/actionables/internal/core/tagging"
	"github.com/hive-corporation/actionables/internal/metrics"
	"go.uber.org/zap"
)

// ErrSkippedRow marks a candidate row that cannot be imported.
var ErrSkippedRow = errors.New("skipped candidate row")

// Options configure an Importer.
type Options struct {
	ReportTypes       []string
	Exporters         []ports.Exporter
	SystemUser        string
	DefaultOrigin     domain.Origin
	DefaultProcessing domain.Processing
	// OutdateAfterImport sweeps the imported reports' sources afterwards.
	OutdateAfterImport bool
}

// Importer is the import orchestrator.
type Importer struct {
	store   ports.Store
	graph   ports.ReportGraph
	reg     *registry.Registries
	status  *status.Engine
	tags    *tagging.Engine
	sweeper *outdating.Sweeper
	opts    Options
	log     *zap.Logger
}

func New(store ports.Store, rg ports.ReportGraph, reg *registry.Registries, st *status.Engine, tags *tagging.Engine, sweeper *outdating.Sweeper, opts Options, log *zap.Logger) *Importer {
	if opts.SystemUser == "" {
		opts.SystemUser = "actionables"
	}
	return &Importer{
		store:   store,
		graph:   rg,
		reg:     reg,
		status:  st,
		tags:    tags,
		sweeper: sweeper,
		opts:    opts,
		log:     log.Named("importer"),
	}
}

// ReportStats counts what importing one report did.
type ReportStats struct {
	Rows              int
	Skipped           int
	IndicatorsCreated int
	SourcesCreated    int
	StatusChanges     int
	Tags              tagging.SyncResult
	Outdated          int
}

// Summary is the outcome of one import run.
type Summary struct {
	RunID   string
	Reports int
	Failed  int

	// FailedSince is the creation time of the oldest failed report.
	FailedSince time.Time
	ReportStats
}

func (s *Summary) add(r ReportStats) {
	s.Rows += r.Rows
	s.Skipped += r.Skipped
	s.IndicatorsCreated += r.IndicatorsCreated
	s.SourcesCreated += r.SourcesCreated
	s.StatusChanges += r.StatusChanges
	s.Tags.Indicators += r.Tags.Indicators
	s.Tags.Added += r.Tags.Added
	s.Tags.Removed += r.Tags.Removed
	s.Outdated += r.Outdated
}

// ImportRange imports every report created in [from, to).
func (im *Importer) ImportRange(ctx context.Context, from, to time.Time) (Summary, error) {
	reports, err := im.graph.ReportsCreatedBetween(ctx, from, to, im.opts.ReportTypes)
	if err != nil {
		return Summary{}, fmt.Errorf("list reports: %w", err)
	}
	im.log.Info("importing reports by time range",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("reports", len(reports)))
	return im.ImportReports(ctx, reports)
}

// ImportIDs imports the given report revisions.
func (im *Importer) ImportIDs(ctx context.Context, iobjectIDs []int64) (Summary, error) {
	reports, err := im.graph.ReportsByID(ctx, iobjectIDs)
	if err != nil {
		return Summary{}, fmt.Errorf("load reports: %w", err)
	}
	if len(reports) < len(iobjectIDs) {
		im.log.Warn("some reports were not found",
			zap.Int("requested", len(iobjectIDs)),
			zap.Int("found", len(reports)))
	}
	return im.ImportReports(ctx, reports)
}

// ImportReports imports reports one by one, each in its own transaction.
// A failing report is logged and counted; the others still go through.
func (im *Importer) ImportReports(ctx context.Context, reports []graph.Report) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	log := im.log.With(zap.String("run_id", sum.RunID))
	timer := metrics.StartTimer()
	defer timer.ObserveDuration()

	for _, r := range reports {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Reports++

		stats, err := im.importReport(ctx, r)
		if err != nil {
			sum.Failed++
			if sum.FailedSince.IsZero() || r.CreatedAt.Before(sum.FailedSince) {
				sum.FailedSince = r.CreatedAt
			}
			im.reg.InvalidateAll()
			metrics.RecordReport("failed")
			log.Error("report import failed",
				zap.Int64("report", r.IObjectID),
				zap.Int64("identifier", r.IdentifierID),
				zap.Error(err))
			continue
		}
		sum.add(stats)
		metrics.RecordReport("imported")
		metrics.RecordRows("imported", stats.Rows-stats.Skipped)
		metrics.RecordRows("skipped", stats.Skipped)
		log.Debug("report imported",
			zap.Int64("report", r.IObjectID),
			zap.Int("rows", stats.Rows),
			zap.Int("indicators_created", stats.IndicatorsCreated),
			zap.Int("status_changes", stats.StatusChanges))
	}

	log.Info("import finished",
		zap.Int("reports", sum.Reports),
		zap.Int("failed", sum.Failed),
		zap.Int("rows", sum.Rows),
		zap.Int("skipped", sum.Skipped),
		zap.Int("indicators_created", sum.IndicatorsCreated),
		zap.Int("status_changes", sum.StatusChanges),
		zap.Int("outdated", sum.Outdated))
	return sum, nil
}

func (im *Importer) importReport(ctx context.Context, r graph.Report) (ReportStats, error) {
	var stats ReportStats

	g, err := im.graph.FollowReferences(ctx, []int64{r.IObjectID}, graph.Down)
	if err != nil {
		return stats, fmt.Errorf("follow references: %w", err)
	}

	var rows []ports.CandidateRow
	for _, ex := range im.opts.Exporters {
		out, err := ex.Export(g)
		if err != nil {
			return stats, fmt.Errorf("exporter %s: %w", ex.Name(), err)
		}
		rows = append(rows, out...)
	}
	if len(rows) == 0 {
		return stats, nil
	}

	colors, err := im.graph.MarkingColors(ctx, nodeIDs(g))
	if err != nil {
		return stats, fmt.Errorf("marking colours: %w", err)
	}

	action := status.NewAction(im.opts.SystemUser, fmt.Sprintf("import of report %d", r.IObjectID))
	err = im.store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		stats = ReportStats{}
		var facts []int64
		for _, row := range rows {
			stats.Rows++
			res, err := im.importRow(ctx, repo, r, row, tlpOf(g, colors, row.IObjectID, r.IObjectID), action)
			if errors.Is(err, ErrSkippedRow) {
				stats.Skipped++
				im.log.Warn("skipping candidate row",
					zap.Int64("report", r.IObjectID),
					zap.Int64("fact", row.FactID),
					zap.Error(err))
				continue
			}
			if err != nil {
				return err
			}
			facts = append(facts, row.FactID)
			if res.indicatorCreated {
				stats.IndicatorsCreated++
			}
			if res.sourceCreated {
				stats.SourcesCreated++
			}
			if res.statusChanged {
				stats.StatusChanges++
			}
		}

		synced, err := im.tags.SyncFromFacts(ctx, repo, facts, im.opts.SystemUser)
		if err != nil {
			return fmt.Errorf("sync fact tags: %w", err)
		}
		stats.Tags = synced

		if im.opts.OutdateAfterImport && im.sweeper != nil {
			rep, err := im.sweeper.Sweep(ctx, repo, outdating.Options{
				IdentifierIDs: []int64{r.IdentifierID},
				User:          im.opts.SystemUser,
			})
			if err != nil {
				return fmt.Errorf("outdate sources: %w", err)
			}
			stats.Outdated = len(rep.Outdated)
		}
		return nil
	})
	if err != nil {
		action.Reset()
		return ReportStats{}, err
	}
	return stats, nil
}

type rowResult struct {
	indicatorCreated bool
	sourceCreated    bool
	statusChanged    bool
}

func (im *Importer) importRow(ctx context.Context, repo ports.Repository, r graph.Report, row ports.CandidateRow, tlp domain.TLP, action *status.ActionRef) (rowResult, error) {
	var res rowResult

	typeName := strings.TrimSpace(row.Type)
	value := strings.TrimSpace(row.Value)
	if typeName == "" || value == "" {
		return res, fmt.Errorf("%w: fact %d has no type or value", ErrSkippedRow, row.FactID)
	}
	value = domain.NormalizeValue(typeName, value)

	typeID, err := im.reg.TypeID(ctx, repo, typeName)
	if err != nil {
		return res, fmt.Errorf("indicator type %s: %w", typeName, err)
	}
	// an absent subtype is the empty name, never a null
	subtypeID, err := im.reg.SubtypeID(ctx, repo, strings.TrimSpace(row.Subtype))
	if err != nil {
		return res, fmt.Errorf("indicator subtype %s: %w", row.Subtype, err)
	}

	ind, created, err := repo.GetOrCreateIndicator(ctx, typeID, subtypeID, value)
	if err != nil {
		return res, fmt.Errorf("indicator %s: %w", value, err)
	}
	res.indicatorCreated = created
	if err := repo.LockIndicator(ctx, ind.ID); err != nil {
		return res, fmt.Errorf("lock indicator %d: %w", ind.ID, err)
	}

	entities, err := im.upsertEntities(ctx, repo, row.Related)
	if err != nil {
		return res, err
	}

	src, created, err := repo.UpsertSource(ctx, domain.Source{
		Owner:              ind.Target(),
		FactID:             row.FactID,
		FactValueID:        row.FactValueID,
		IObjectID:          row.IObjectID,
		ReportRevisionID:   r.IObjectID,
		ReportIdentifierID: r.IdentifierID,
		TLP:                tlp,
		Origin:             im.opts.DefaultOrigin,
		Processing:         im.opts.DefaultProcessing,
	})
	if err != nil {
		return res, fmt.Errorf("source of %s: %w", value, err)
	}
	res.sourceCreated = created

	ids := make([]int64, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	if err := repo.SetSourceEntities(ctx, src.ID, ids); err != nil {
		return res, fmt.Errorf("related entities of source %d: %w", src.ID, err)
	}

	st, err := im.status.Apply(ctx, repo, ind.Target(), action, status.Inputs{
		Source:   &src,
		Entities: entities,
	})
	if err != nil {
		return res, err
	}
	res.statusChanged = st.Changed
	return res, nil
}

// upsertEntities refreshes the essence of related entity nodes.
func (im *Importer) upsertEntities(ctx context.Context, repo ports.Repository, nodes []*graph.Node) ([]domain.StixEntity, error) {
	var out []domain.StixEntity
	seen := map[int64]bool{}
	for _, n := range nodes {
		essence, ok := graph.ExtractEssence(n)
		if !ok || seen[n.IdentifierID] {
			continue
		}
		seen[n.IdentifierID] = true

		typeID, err := im.reg.EntityTypeID(ctx, repo, n.ObjectType)
		if err != nil {
			return nil, fmt.Errorf("entity type %s: %w", n.ObjectType, err)
		}
		e, err := repo.UpsertEntity(ctx, domain.StixEntity{
			IdentifierID: n.IdentifierID,
			EntityTypeID: typeID,
			EntityType:   n.ObjectType,
			Essence:      essence,
		})
		if err != nil {
			return nil, fmt.Errorf("entity %d: %w", n.IdentifierID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// tlpOf takes the marking of the nearest marked object containing the
// observable, falling back to the report.
func tlpOf(g *graph.Graph, colors map[int64]string, iobjectID, reportID int64) domain.TLP {
	for _, n := range g.Ancestors(iobjectID) {
		if c, ok := colors[n.IObjectID]; ok {
			return domain.ParseTLP(c)
		}
	}
	return domain.ParseTLP(colors[reportID])
}

func nodeIDs(g *graph.Graph) []int64 {
	nodes := g.Nodes()
	ids := make([]int64, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.IObjectID)
	}
	return ids
}
