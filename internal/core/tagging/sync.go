package tagging

import (
	"context"
	"fmt"
	"sort"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/hive-corporation/actionables/internal/core/status"
	"go.uber.org/zap"
)

// SyncResult counts what a fact tag synchronisation changed.
type SyncResult struct {
	Indicators int
	Added      int
	Removed    int
	Contexts   BulkResult
}

// IndicatorDiff is the synced tag change of one indicator.
type IndicatorDiff struct {
	IndicatorID int64
	Found       domain.Set
	Added       domain.Set
	Removed     domain.Set
}

// DiffSyncedTags compares the tags found on an indicator's facts with the
// ones recorded at the last synchronisation.
func DiffSyncedTags(ind domain.Indicator, found domain.Set) IndicatorDiff {
	existing := domain.ParseSet(ind.SyncedTags, domain.TagSeparator)
	return IndicatorDiff{
		IndicatorID: ind.ID,
		Found:       found,
		Added:       found.Minus(existing),
		Removed:     existing.Minus(found),
	}
}

// SyncFromFacts pulls fact tags onto the indicators extracted from
// factIDs. Context names among the changes become actionable context tags
// without being mirrored back.
func (e *Engine) SyncFromFacts(ctx context.Context, repo ports.Repository, factIDs []int64, user string) (SyncResult, error) {
	var res SyncResult
	if len(factIDs) == 0 {
		return res, nil
	}

	touching, err := repo.SourcesByFacts(ctx, factIDs)
	if err != nil {
		return res, fmt.Errorf("sources by facts: %w", err)
	}
	var targets []domain.Target
	seen := map[domain.Target]bool{}
	for _, s := range touching {
		if s.Owner.Kind == domain.TargetIndicator && !seen[s.Owner] {
			seen[s.Owner] = true
			targets = append(targets, s.Owner)
		}
	}
	if len(targets) == 0 {
		return res, nil
	}

	// an indicator's tags come from all of its facts, not just the ones
	// of this report
	sources, err := repo.SourcesForTargets(ctx, targets)
	if err != nil {
		return res, fmt.Errorf("sources for indicators: %w", err)
	}
	factsOf := map[int64][]int64{}
	var allFacts []int64
	for _, s := range sources {
		factsOf[s.Owner.ID] = append(factsOf[s.Owner.ID], s.FactID)
		allFacts = append(allFacts, s.FactID)
	}

	factTags, err := e.facts.TagsForFacts(ctx, uniqueInt64(allFacts))
	if err != nil {
		return res, fmt.Errorf("load fact tags: %w", err)
	}

	ids := make([]int64, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.ID)
	}
	inds, err := repo.IndicatorsByIDs(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("load indicators: %w", err)
	}

	action := status.NewAction(user, syncComment)
	addedBy := map[string][]int64{}
	removedBy := map[string][]int64{}

	for _, ind := range inds {
		found := domain.Set{}
		for _, f := range factsOf[ind.ID] {
			for _, tag := range factTags[f] {
				found.Add(tag)
			}
		}

		diff := DiffSyncedTags(ind, found)
		if diff.Added.Len() == 0 && diff.Removed.Len() == 0 {
			continue
		}

		if err := repo.UpdateSyncedTags(ctx, ind.ID, found.Join(domain.TagSeparator)); err != nil {
			return res, fmt.Errorf("update synced tags of %d: %w", ind.ID, err)
		}
		if _, err := e.status.Apply(ctx, repo, ind.Target(), action, status.Inputs{
			AddedTags:   diff.Added,
			RemovedTags: diff.Removed,
		}); err != nil {
			return res, fmt.Errorf("status of %d: %w", ind.ID, err)
		}

		res.Indicators++
		res.Added += diff.Added.Len()
		res.Removed += diff.Removed.Len()

		for c := range e.matcher.Filter(diff.Added) {
			addedBy[c] = append(addedBy[c], ind.ID)
		}
		for c := range e.matcher.Filter(diff.Removed) {
			removedBy[c] = append(removedBy[c], ind.ID)
		}
	}

	for _, step := range []struct {
		action domain.TagAction
		byTag  map[string][]int64
	}{
		{domain.TagAdd, addedBy},
		{domain.TagRemove, removedBy},
	} {
		for _, c := range sortedKeys(step.byTag) {
			attrUser, comment := e.attribution(ctx, c, step.action, user)
			br, err := e.BulkAction(ctx, repo, BulkRequest{
				Action:               step.action,
				Tags:                 []domain.TagRef{{Context: c, Name: c}},
				TargetIDs:            uniqueInt64(step.byTag[c]),
				Kind:                 domain.TargetIndicator,
				User:                 attrUser,
				Comment:              comment,
				SuppressExternalSync: true,
			})
			if err != nil {
				return res, fmt.Errorf("%s context %s: %w", step.action, c, err)
			}
			res.Contexts.Attached += br.Attached
			res.Contexts.Detached += br.Detached
			res.Contexts.History += br.History
		}
	}

	if res.Indicators > 0 {
		e.log.Info("synchronised fact tags",
			zap.Int("indicators", res.Indicators),
			zap.Int("added", res.Added),
			zap.Int("removed", res.Removed))
	}
	return res, nil
}

// attribution borrows user and comment from the newest matching fact tag
// history entry, preferring one by user.
func (e *Engine) attribution(ctx context.Context, tag string, action domain.TagAction, user string) (string, string) {
	lookups := []string{""}
	if user != "" {
		lookups = []string{user, ""}
	}
	for _, u := range lookups {
		ev, err := e.facts.LatestTagEvent(ctx, tag, action, u)
		if err != nil {
			e.log.Warn("fact tag history lookup failed", zap.String("tag", tag), zap.Error(err))
			break
		}
		if ev != nil {
			comment := ev.Comment
			if comment == "" {
				comment = syncComment
			}
			if ev.User == "" {
				return user, comment
			}
			return ev.User, comment
		}
	}
	return user, syncComment
}

func sortedKeys(m map[string][]int64) []string {
	out := keys(m)
	sort.Strings(out)
	return out
}

func uniqueInt64(ids []int64) []int64 {
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
