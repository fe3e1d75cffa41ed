package tagging

import (
	"context"
	"errors"
	"testing"

	"github.com/hive-corporation/actionables/internal/core/coretest"
	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/hive-corporation/actionables/internal/core/status"
	"go.uber.org/zap/zaptest"
)

var errFactStoreDown = errors.New("fact store unavailable")

// flakyFacts fails the next fact tag write.
type flakyFacts struct {
	*coretest.FactGraph
	failNext bool
}

func (f *flakyFacts) AddFactTag(ctx context.Context, factIDs []int64, tag, user, comment string) error {
	if f.failNext {
		f.failNext = false
		return errFactStoreDown
	}
	return f.FactGraph.AddFactTag(ctx, factIDs, tag, user, comment)
}

func TestFailedMirrorDoesNotLeaveStaleTagIDs(t *testing.T) {
	h := newHarness(t)
	log := zaptest.NewLogger(t)
	facts := &flakyFacts{FactGraph: h.facts, failNext: true}
	engine := NewEngine(facts, h.reg, status.NewEngine(nil, log), defaultMatcher(), log)
	store := h.reg.Guard(h.store)

	first := h.seed("10.0.0.9", 91)
	req := BulkRequest{
		Action:    domain.TagAdd,
		Tags:      []domain.TagRef{{Context: "INVES-9", Name: "INVES-9"}},
		TargetIDs: []int64{first.ID},
		Kind:      domain.TargetIndicator,
		User:      "alice",
	}
	bulk := func() error {
		return store.WithinTx(context.Background(), func(ctx context.Context, repo ports.Repository) error {
			_, err := engine.BulkAction(ctx, repo, req)
			return err
		})
	}

	if err := bulk(); !errors.Is(err, errFactStoreDown) {
		t.Fatalf("first attempt: got %v, want the fact store error", err)
	}

	// ids handed out by the rolled back transaction must not be reused
	second := h.seed("10.0.0.10", 92)
	req.TargetIDs = []int64{second.ID}
	if err := bulk(); err != nil {
		t.Fatalf("retry: %v", err)
	}

	if got := h.indicator(second.ID).TagCache; got != "INVES-9:INVES-9" {
		t.Errorf("tag cache after retry = %q, want %q", got, "INVES-9:INVES-9")
	}
	if got := h.indicator(first.ID).TagCache; got != "" {
		t.Errorf("rolled back indicator kept tag cache %q", got)
	}
}

func TestGuardKeepsCachesOnCommit(t *testing.T) {
	h := newHarness(t)
	store := h.reg.Guard(h.store)

	err := store.WithinTx(context.Background(), func(ctx context.Context, repo ports.Repository) error {
		_, err := h.reg.ContextID(ctx, repo, "INVES-3")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if h.reg.Contexts.Len() == 0 {
		t.Error("committed transaction dropped the context cache")
	}

	_ = store.WithinTx(context.Background(), func(ctx context.Context, repo ports.Repository) error {
		return errFactStoreDown
	})
	if h.reg.Contexts.Len() != 0 {
		t.Error("failed transaction kept the context cache")
	}
}
