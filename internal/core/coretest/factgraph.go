// Package coretest provides in-memory fakes of the external fact store for
// tests of the core packages.
package coretest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/graph"
	"github.com/hive-corporation/actionables/internal/core/ports"
)

var (
	_ ports.ReportGraph = (*FactGraph)(nil)
	_ ports.FactTags    = (*FactGraph)(nil)
)

// FactGraph is an in-memory ports.ReportGraph and ports.FactTags.
type FactGraph struct {
	mu sync.Mutex

	reports  map[int64]graph.Report
	graphs   map[int64]*graph.Graph
	markings map[int64]string
	latest   map[int64]int64

	tags    map[int64]domain.Set
	history []domain.FactTagEvent
	now     func() time.Time
	clock   time.Time
}

func NewFactGraph() *FactGraph {
	f := &FactGraph{
		reports:  map[int64]graph.Report{},
		graphs:   map[int64]*graph.Graph{},
		markings: map[int64]string{},
		latest:   map[int64]int64{},
		tags:     map[int64]domain.Set{},
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	// strictly increasing so "latest" lookups are deterministic
	f.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

// AddReport stores a report revision. The newest revision per identifier
// by creation time becomes the latest one.
func (f *FactGraph) AddReport(r graph.Report, g *graph.Graph) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports[r.IObjectID] = r
	f.graphs[r.IObjectID] = g
	if cur, ok := f.latest[r.IdentifierID]; !ok || f.reports[cur].CreatedAt.Before(r.CreatedAt) {
		f.latest[r.IdentifierID] = r.IObjectID
	}
}

// SetLatest points an identifier at a revision explicitly.
func (f *FactGraph) SetLatest(identifierID, iobjectID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[identifierID] = iobjectID
}

// Mark gives an object a TLP colour.
func (f *FactGraph) Mark(iobjectID int64, color string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markings[iobjectID] = color
}

// TagFact tags facts as a user of the fact store would, with history.
func (f *FactGraph) TagFact(tag, user, comment string, factIDs ...int64) {
	_ = f.AddFactTag(context.Background(), factIDs, tag, user, comment)
}

// FactTagSet returns the tags of one fact.
func (f *FactGraph) FactTagSet(factID int64) domain.Set {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.NewSet(f.tags[factID].Sorted()...)
}

func (f *FactGraph) History() []domain.FactTagEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.FactTagEvent(nil), f.history...)
}

func (f *FactGraph) ReportsCreatedBetween(ctx context.Context, from, to time.Time, objectTypes []string) ([]graph.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := domain.NewSet(objectTypes...)
	var out []graph.Report
	for _, r := range f.reports {
		if r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		if types.Len() > 0 && !types.Has(r.ObjectType) {
			continue
		}
		out = append(out, r)
	}
	sortReports(out)
	return out, nil
}

func (f *FactGraph) ReportsByID(ctx context.Context, ids []int64) ([]graph.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []graph.Report
	for _, id := range ids {
		if r, ok := f.reports[id]; ok {
			out = append(out, r)
		}
	}
	sortReports(out)
	return out, nil
}

func (f *FactGraph) FollowReferences(ctx context.Context, rootIDs []int64, dir graph.Direction) (*graph.Graph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := graph.New()
	for _, id := range rootIDs {
		g, ok := f.graphs[id]
		if !ok {
			continue
		}
		for _, n := range g.Nodes() {
			out.AddNode(n)
			for _, c := range g.Children(n.IObjectID) {
				out.AddEdge(graph.Edge{From: n.IObjectID, To: c.IObjectID})
			}
		}
	}
	return out, nil
}

func (f *FactGraph) MarkingColors(ctx context.Context, iobjectIDs []int64) (map[int64]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]string{}
	for _, id := range iobjectIDs {
		if c, ok := f.markings[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (f *FactGraph) LatestRevisions(ctx context.Context, identifierIDs []int64) (map[int64]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]int64{}
	for _, id := range identifierIDs {
		if rev, ok := f.latest[id]; ok {
			out[id] = rev
		}
	}
	return out, nil
}

func (f *FactGraph) TagsForFacts(ctx context.Context, factIDs []int64) (map[int64][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64][]string{}
	for _, id := range factIDs {
		if s := f.tags[id]; s.Len() > 0 {
			out[id] = s.Sorted()
		}
	}
	return out, nil
}

func (f *FactGraph) AddFactTag(ctx context.Context, factIDs []int64, tag, user, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := false
	for _, id := range factIDs {
		if f.tags[id] == nil {
			f.tags[id] = domain.Set{}
		}
		if !f.tags[id].Has(tag) {
			f.tags[id].Add(tag)
			changed = true
		}
	}
	if changed {
		f.history = append(f.history, domain.FactTagEvent{Tag: tag, Action: domain.TagAdd, User: user, Comment: comment, Timestamp: f.now()})
	}
	return nil
}

func (f *FactGraph) RemoveFactTag(ctx context.Context, factIDs []int64, tag, user, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := false
	for _, id := range factIDs {
		if f.tags[id].Has(tag) {
			delete(f.tags[id], tag)
			changed = true
		}
	}
	if changed {
		f.history = append(f.history, domain.FactTagEvent{Tag: tag, Action: domain.TagRemove, User: user, Comment: comment, Timestamp: f.now()})
	}
	return nil
}

func (f *FactGraph) LatestTagEvent(ctx context.Context, tag string, action domain.TagAction, user string) (*domain.FactTagEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.history) - 1; i >= 0; i-- {
		ev := f.history[i]
		if ev.Tag == tag && ev.Action == action && (user == "" || ev.User == user) {
			return &ev, nil
		}
	}
	return nil, nil
}

func (f *FactGraph) FactTagExists(ctx context.Context, tag string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.tags {
		if s.Has(tag) {
			return true, nil
		}
	}
	return false, nil
}

func (f *FactGraph) RenameFactTag(ctx context.Context, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.tags {
		if s.Has(from) {
			delete(s, from)
			s.Add(to)
		}
	}
	return nil
}

func (f *FactGraph) DeleteFactTags(ctx context.Context, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.tags {
		for _, t := range tags {
			delete(s, t)
		}
	}
	return nil
}

func sortReports(rs []graph.Report) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].IObjectID < rs[j].IObjectID
	})
}
