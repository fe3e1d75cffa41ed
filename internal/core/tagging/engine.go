// Package tagging keeps actionable tags on indicators in step with the
// plain tags on the facts those indicators were extracted from.
package tagging

import (
	"context"
	"fmt"
	"time"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/hive-corporation/actionables/internal/core/registry"
	"github.com/hive-corporation/actionables/internal/core/status"
	"github.com/hive-corporation/actionables/internal/metrics"
	"github.com/hive-corporation/actionables/internal/platform/logger"
	"go.uber.org/zap"
)

const syncComment = "synchronised from fact tags"

// Engine runs bulk tag actions and the fact tag synchronisation.
type Engine struct {
	facts   ports.FactTags
	reg     *registry.Registries
	status  *status.Engine
	matcher *ContextMatcher
	log     *zap.Logger
	now     func() time.Time
}

func NewEngine(facts ports.FactTags, reg *registry.Registries, st *status.Engine, matcher *ContextMatcher, log *zap.Logger) *Engine {
	return &Engine{
		facts:   facts,
		reg:     reg,
		status:  st,
		matcher: matcher,
		log:     log.Named("tagging"),
		now:     time.Now,
	}
}

func (e *Engine) Matcher() *ContextMatcher { return e.matcher }

// BulkResult counts what a bulk action changed.
type BulkResult struct {
	Attached int
	Detached int
	Mirrored int
	History  int
}

// BulkAction adds or removes actionable tags on targets. Removing a
// context's own tag removes every tag of that context from the target.
// Repeating an action is a no-op.
func (e *Engine) BulkAction(ctx context.Context, repo ports.Repository, req BulkRequest) (BulkResult, error) {
	var res BulkResult
	if len(req.Tags) == 0 || len(req.TargetIDs) == 0 {
		return res, nil
	}

	targets := make([]domain.Target, 0, len(req.TargetIDs))
	for _, id := range req.TargetIDs {
		targets = append(targets, domain.Target{Kind: req.Kind, ID: id})
	}

	var history []domain.TagHistoryEntry
	record := func(tagID int64, t domain.Target) {
		history = append(history, domain.TagHistoryEntry{
			TagID:     tagID,
			Target:    t,
			Action:    req.Action,
			User:      req.User,
			Comment:   req.Comment,
			Timestamp: e.now(),
		})
	}

	// contexts whose membership changed, per target
	touched := map[domain.Target]domain.Set{}
	touch := func(t domain.Target, c string) {
		if touched[t] == nil {
			touched[t] = domain.Set{}
		}
		touched[t].Add(c)
	}

	switch req.Action {
	case domain.TagAdd:
		for _, ref := range req.Tags {
			tagID, err := e.reg.ActionableTagID(ctx, repo, ref)
			if err != nil {
				return res, fmt.Errorf("resolve tag %s: %w", ref, err)
			}
			for _, t := range targets {
				added, err := repo.AttachTag(ctx, tagID, t)
				if err != nil {
					return res, fmt.Errorf("attach %s: %w", ref, err)
				}
				if added {
					res.Attached++
					record(tagID, t)
					touch(t, ref.Context)
				}
			}
		}

	case domain.TagRemove:
		attached, err := repo.AttachedTags(ctx, targets)
		if err != nil {
			return res, fmt.Errorf("load attached tags: %w", err)
		}
		byTarget := map[domain.Target][]domain.AttachedTag{}
		for _, a := range attached {
			byTarget[a.Target] = append(byTarget[a.Target], a)
		}

		for _, t := range targets {
			drop := map[int64]domain.TagRef{}
			for _, ref := range req.Tags {
				for _, a := range byTarget[t] {
					if a.TagRef == ref || (ref.IsContextTag() && a.Context == ref.Context) {
						drop[a.TagID] = a.TagRef
					}
				}
			}
			for _, tagID := range sortedTagIDs(drop) {
				removed, err := repo.DetachTag(ctx, tagID, t)
				if err != nil {
					return res, fmt.Errorf("detach %s: %w", drop[tagID], err)
				}
				if removed {
					res.Detached++
					record(tagID, t)
					touch(t, drop[tagID].Context)
				}
			}
		}

	default:
		return res, ErrUnknownAction
	}

	if len(history) > 0 {
		if err := repo.AppendTagHistory(ctx, history); err != nil {
			return res, fmt.Errorf("append tag history: %w", err)
		}
		res.History = len(history)
	}

	direction := "outbound"
	if req.SuppressExternalSync {
		direction = "inbound"
	}
	metrics.RecordTagChange(req.Action.String(), direction, res.Attached+res.Detached)

	if len(touched) == 0 {
		return res, nil
	}

	if req.Kind == domain.TargetIndicator && !req.SuppressExternalSync {
		n, err := e.mirror(ctx, repo, req, touched)
		if err != nil {
			return res, err
		}
		res.Mirrored = n
	}

	if req.Kind == domain.TargetIndicator {
		ids := make([]int64, 0, len(touched))
		for t := range touched {
			ids = append(ids, t.ID)
		}
		if err := e.RefreshTagCaches(ctx, repo, ids); err != nil {
			return res, err
		}
	}
	return res, nil
}

// mirror adds or removes context names as plain tags on the facts behind
// the changed indicators. A removal is only mirrored once no tag of that
// context is left on the indicator.
func (e *Engine) mirror(ctx context.Context, repo ports.Repository, req BulkRequest, touched map[domain.Target]domain.Set) (int, error) {
	if req.User == "" {
		e.log.Error("refusing to mirror tag change without a user", logger.Critical(),
			zap.String("action", req.Action.String()),
			zap.Int("targets", len(touched)))
		return 0, nil
	}

	targets := make([]domain.Target, 0, len(touched))
	for t := range touched {
		targets = append(targets, t)
	}

	remaining := map[domain.Target]domain.Set{}
	if req.Action == domain.TagRemove {
		attached, err := repo.AttachedTags(ctx, targets)
		if err != nil {
			return 0, fmt.Errorf("load attached tags: %w", err)
		}
		for _, a := range attached {
			if remaining[a.Target] == nil {
				remaining[a.Target] = domain.Set{}
			}
			remaining[a.Target].Add(a.Context)
		}
	}

	sources, err := repo.SourcesForTargets(ctx, targets)
	if err != nil {
		return 0, fmt.Errorf("load sources: %w", err)
	}
	factsOf := map[domain.Target][]int64{}
	for _, s := range sources {
		factsOf[s.Owner] = append(factsOf[s.Owner], s.FactID)
	}

	// context name -> facts to change
	plan := map[string][]int64{}
	for t, contexts := range touched {
		for c := range contexts {
			if req.Action == domain.TagRemove && remaining[t].Has(c) {
				continue
			}
			plan[c] = append(plan[c], factsOf[t]...)
		}
	}

	mirrored := 0
	for _, c := range sortedKeys(plan) {
		facts := uniqueInt64(plan[c])
		if len(facts) == 0 {
			continue
		}
		var err error
		if req.Action == domain.TagAdd {
			err = e.facts.AddFactTag(ctx, facts, c, req.User, req.Comment)
		} else {
			err = e.facts.RemoveFactTag(ctx, facts, c, req.User, req.Comment)
		}
		if err != nil {
			return mirrored, fmt.Errorf("mirror %s onto facts: %w", c, err)
		}
		mirrored += len(facts)
	}
	return mirrored, nil
}

// RefreshTagCaches recomputes the "context:name" cache of indicators.
func (e *Engine) RefreshTagCaches(ctx context.Context, repo ports.Repository, indicatorIDs []int64) error {
	inds, err := repo.IndicatorsByIDs(ctx, indicatorIDs)
	if err != nil {
		return fmt.Errorf("load indicators: %w", err)
	}
	targets := make([]domain.Target, 0, len(inds))
	for _, ind := range inds {
		targets = append(targets, ind.Target())
	}
	attached, err := repo.AttachedTags(ctx, targets)
	if err != nil {
		return fmt.Errorf("load attached tags: %w", err)
	}

	sets := map[int64]domain.Set{}
	for _, a := range attached {
		if sets[a.Target.ID] == nil {
			sets[a.Target.ID] = domain.Set{}
		}
		sets[a.Target.ID].Add(a.TagRef.String())
	}

	for _, ind := range inds {
		cache := sets[ind.ID].Join(domain.TagSeparator)
		if cache == ind.TagCache {
			continue
		}
		if err := repo.UpdateTagCache(ctx, ind.ID, cache); err != nil {
			return fmt.Errorf("update tag cache of %d: %w", ind.ID, err)
		}
	}
	return nil
}

func sortedTagIDs(m map[int64]domain.TagRef) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return uniqueInt64(ids)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
