// Package outdating retires sources whose report has a newer revision.
package outdating

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/hive-corporation/actionables/internal/core/tagging"
	"github.com/hive-corporation/actionables/internal/metrics"
	"go.uber.org/zap"
)

// Options scope one sweep.
type Options struct {
	// DryRun computes everything but writes nothing.
	DryRun bool
	// IdentifierIDs limits the sweep to these reports. Nil sweeps all.
	IdentifierIDs []int64
	// User is recorded on the derived tags.
	User string
}

// Intent is a derived tag the sweep attaches (or would attach).
type Intent struct {
	IndicatorID int64
	Tag         domain.TagRef
	// Reports lists the identifiers of the superseded reports that carried
	// the context.
	Reports []int64
}

// Report describes one sweep.
type Report struct {
	DryRun     bool
	Outdated   []int64
	Indicators int
	Intents    []Intent
}

// Sweeper marks stale sources outdated and flags contexts that are only
// backed by stale sources.
type Sweeper struct {
	graph       ports.ReportGraph
	facts       ports.FactTags
	tags        *tagging.Engine
	outdatedTag string
	log         *zap.Logger
}

func NewSweeper(graph ports.ReportGraph, facts ports.FactTags, tags *tagging.Engine, outdatedTag string, log *zap.Logger) *Sweeper {
	if outdatedTag == "" {
		outdatedTag = "OUTDATED"
	}
	return &Sweeper{
		graph:       graph,
		facts:       facts,
		tags:        tags,
		outdatedTag: outdatedTag,
		log:         log.Named("outdating"),
	}
}

// Run sweeps in its own unit of work: read-only for dry runs, one
// transaction otherwise.
func (s *Sweeper) Run(ctx context.Context, store ports.Store, opts Options) (Report, error) {
	var rep Report
	fn := func(ctx context.Context, repo ports.Repository) error {
		var err error
		rep, err = s.Sweep(ctx, repo, opts)
		return err
	}
	if opts.DryRun {
		return rep, store.View(ctx, fn)
	}
	return rep, store.WithinTx(ctx, fn)
}

// Sweep runs inside the caller's transaction.
func (s *Sweeper) Sweep(ctx context.Context, repo ports.Repository, opts Options) (Report, error) {
	rep := Report{DryRun: opts.DryRun}

	current, err := repo.CurrentSources(ctx, opts.IdentifierIDs)
	if err != nil {
		return rep, fmt.Errorf("current sources: %w", err)
	}
	if len(current) == 0 {
		return rep, nil
	}

	idents := make([]int64, 0, len(current))
	for _, src := range current {
		idents = append(idents, src.ReportIdentifierID)
	}
	latest, err := s.graph.LatestRevisions(ctx, unique(idents))
	if err != nil {
		return rep, fmt.Errorf("latest revisions: %w", err)
	}

	stale := map[int64]bool{}
	var affected []domain.Target
	seen := map[domain.Target]bool{}
	for _, src := range current {
		rev, ok := latest[src.ReportIdentifierID]
		if !ok || rev == src.ReportRevisionID {
			continue
		}
		stale[src.ID] = true
		rep.Outdated = append(rep.Outdated, src.ID)
		if src.Owner.Kind == domain.TargetIndicator && !seen[src.Owner] {
			seen[src.Owner] = true
			affected = append(affected, src.Owner)
		}
	}
	if len(rep.Outdated) == 0 {
		return rep, nil
	}
	rep.Indicators = len(affected)

	intents, err := s.intents(ctx, repo, affected, stale)
	if err != nil {
		return rep, err
	}
	rep.Intents = intents

	if opts.DryRun {
		for _, in := range intents {
			s.log.Info("would tag indicator",
				zap.Int64("indicator_id", in.IndicatorID),
				zap.String("tag", in.Tag.String()),
				zap.Int64s("reports", in.Reports))
		}
		s.log.Info("dry run sweep",
			zap.Int("stale_sources", len(rep.Outdated)),
			zap.Int("indicators", rep.Indicators),
			zap.Int("tags", len(intents)))
		return rep, nil
	}

	if err := repo.MarkSourcesOutdated(ctx, rep.Outdated); err != nil {
		return rep, fmt.Errorf("mark sources outdated: %w", err)
	}
	metrics.RecordSourcesOutdated(len(rep.Outdated))

	if err := s.apply(ctx, repo, intents, opts.User); err != nil {
		return rep, err
	}
	s.log.Info("outdated sources",
		zap.Int("sources", len(rep.Outdated)),
		zap.Int("indicators", rep.Indicators),
		zap.Int("tags", len(intents)))
	return rep, nil
}

// intents finds, per indicator, the contexts whose facts are only reached
// through stale sources.
func (s *Sweeper) intents(ctx context.Context, repo ports.Repository, affected []domain.Target, stale map[int64]bool) ([]Intent, error) {
	sources, err := repo.SourcesForTargets(ctx, affected)
	if err != nil {
		return nil, fmt.Errorf("sources of affected indicators: %w", err)
	}
	var factIDs []int64
	for _, src := range sources {
		factIDs = append(factIDs, src.FactID)
	}
	factTags, err := s.facts.TagsForFacts(ctx, unique(factIDs))
	if err != nil {
		return nil, fmt.Errorf("fact tags: %w", err)
	}

	matcher := s.tags.Matcher()
	type acc struct {
		live    domain.Set
		gone    domain.Set
		reports map[string][]int64
	}
	per := map[int64]*acc{}
	for _, src := range sources {
		a := per[src.Owner.ID]
		if a == nil {
			a = &acc{live: domain.Set{}, gone: domain.Set{}, reports: map[string][]int64{}}
			per[src.Owner.ID] = a
		}
		for _, tag := range factTags[src.FactID] {
			if !matcher.IsContext(tag) {
				continue
			}
			switch {
			case stale[src.ID]:
				a.gone.Add(tag)
				a.reports[tag] = append(a.reports[tag], src.ReportIdentifierID)
			case !src.Outdated:
				a.live.Add(tag)
			}
		}
	}

	var out []Intent
	for _, t := range affected {
		a := per[t.ID]
		if a == nil {
			continue
		}
		for _, c := range a.gone.Minus(a.live).Sorted() {
			out = append(out, Intent{
				IndicatorID: t.ID,
				Tag:         domain.TagRef{Context: c, Name: s.outdatedTag},
				Reports:     unique(a.reports[c]),
			})
		}
	}
	return out, nil
}

func (s *Sweeper) apply(ctx context.Context, repo ports.Repository, intents []Intent, user string) error {
	type group struct {
		tag     domain.TagRef
		comment string
	}
	byGroup := map[group][]int64{}
	var order []group
	for _, in := range intents {
		g := group{tag: in.Tag, comment: comment(in.Reports)}
		if _, ok := byGroup[g]; !ok {
			order = append(order, g)
		}
		byGroup[g] = append(byGroup[g], in.IndicatorID)
	}

	for _, g := range order {
		if _, err := s.tags.BulkAction(ctx, repo, tagging.BulkRequest{
			Action:               domain.TagAdd,
			Tags:                 []domain.TagRef{g.tag},
			TargetIDs:            unique(byGroup[g]),
			Kind:                 domain.TargetIndicator,
			User:                 user,
			Comment:              g.comment,
			SuppressExternalSync: true,
		}); err != nil {
			return fmt.Errorf("tag %s: %w", g.tag, err)
		}
	}
	return nil
}

func comment(reports []int64) string {
	ids := make([]string, 0, len(reports))
	for _, r := range reports {
		ids = append(ids, fmt.Sprint(r))
	}
	return "indicator no longer contained in the latest revision of report " + strings.Join(ids, ", ")
}

func unique(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
