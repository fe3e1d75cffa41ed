package tagging

import (
	"context"
	"testing"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
)

func TestDiffSyncedTags(t *testing.T) {
	ind := domain.Indicator{ID: 1, SyncedTags: "INVES-1,foo"}
	found := domain.NewSet("INVES-1", "bar")

	diff := DiffSyncedTags(ind, found)
	if !diff.Added.Equal(domain.NewSet("bar")) {
		t.Errorf("added = %v", diff.Added.Sorted())
	}
	if !diff.Removed.Equal(domain.NewSet("foo")) {
		t.Errorf("removed = %v", diff.Removed.Sorted())
	}
	if got := diff.Found.Join(domain.TagSeparator); got != "INVES-1,bar" {
		t.Errorf("synced tags = %q", got)
	}
}

func (h *harness) sync(factIDs ...int64) SyncResult {
	h.t.Helper()
	var res SyncResult
	h.tx(func(ctx context.Context, repo ports.Repository) error {
		var err error
		res, err = h.engine.SyncFromFacts(ctx, repo, factIDs, "actionables")
		return err
	})
	return res
}

func TestSyncFromFactsCreatesContextTags(t *testing.T) {
	h := newHarness(t)
	ind := h.seed("192.0.2.10", 11, 12)

	h.facts.TagFact("INVES-1", "alice", "phishing wave", 11)
	h.facts.TagFact("foo", "alice", "", 12)
	events := len(h.facts.History())

	res := h.sync(11)
	if res.Indicators != 1 || res.Added != 2 || res.Removed != 0 {
		t.Fatalf("sync result = %+v", res)
	}
	if res.Contexts.Attached != 1 {
		t.Errorf("expected the context tag to be attached, got %+v", res.Contexts)
	}

	got := h.indicator(ind.ID)
	if got.SyncedTags != "INVES-1,foo" {
		t.Errorf("synced tags = %q", got.SyncedTags)
	}
	if got.TagCache != "INVES-1:INVES-1" {
		t.Errorf("tag cache = %q", got.TagCache)
	}

	hist := h.history("INVES-1")
	if len(hist) != 1 {
		t.Fatalf("history = %+v", hist)
	}
	if hist[0].User != "alice" || hist[0].Comment != "phishing wave" {
		t.Errorf("attribution = %q / %q", hist[0].User, hist[0].Comment)
	}

	if n := len(h.facts.History()); n != events {
		t.Errorf("inbound changes must not be mirrored back, fact history grew to %d", n)
	}

	again := h.sync(11, 12)
	if again.Indicators != 0 {
		t.Errorf("second sync should change nothing, got %+v", again)
	}
}

func TestSyncFromFactsRemovesContextTags(t *testing.T) {
	h := newHarness(t)
	ind := h.seed("192.0.2.20", 31)

	h.facts.TagFact("IR-4", "alice", "triage", 31)
	h.sync(31)

	if err := h.facts.RemoveFactTag(context.Background(), []int64{31}, "IR-4", "bob", "resolved"); err != nil {
		t.Fatal(err)
	}
	res := h.sync(31)
	if res.Removed != 1 || res.Contexts.Detached != 1 {
		t.Fatalf("sync result = %+v", res)
	}

	got := h.indicator(ind.ID)
	if got.SyncedTags != "" || got.TagCache != "" {
		t.Errorf("indicator after removal = %+v", got)
	}

	var remove *domain.TagHistoryEntry
	for _, e := range h.history("IR-4") {
		if e.Action == domain.TagRemove {
			e := e
			remove = &e
		}
	}
	if remove == nil {
		t.Fatal("no remove entry in history")
	}
	if remove.User != "bob" || remove.Comment != "resolved" {
		t.Errorf("attribution = %q / %q", remove.User, remove.Comment)
	}
}

func TestSyncUsesTagsOfAllSources(t *testing.T) {
	h := newHarness(t)
	ind := h.seed("192.0.2.30", 41, 42)

	h.facts.TagFact("bar", "alice", "", 42)
	h.sync(41)

	if got := h.indicator(ind.ID).SyncedTags; got != "bar" {
		t.Errorf("synced tags = %q, want tags of the untouched source too", got)
	}
}
