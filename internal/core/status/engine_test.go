package status

import (
	"context"
	"testing"
	"time"

	"github.com/hive-corporation/actionables/internal/adapter/repository"
	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"go.uber.org/zap/zaptest"
)

var target = domain.Target{Kind: domain.TargetIndicator, ID: 42}

func indicatorEntity(confidence string, phases ...string) domain.StixEntity {
	return domain.StixEntity{
		EntityType: domain.EntityIndicator,
		Essence:    domain.Essence{Confidence: confidence, KillChainPhases: phases},
	}
}

func TestReduceExample(t *testing.T) {
	current := domain.InitialStatus()
	current.MostPermissiveTLP = domain.TLPAmber
	current.MostRestrictiveTLP = domain.TLPAmber
	current.MaxConfidence = domain.ConfidenceLow

	got := Reduce(&current, Inputs{
		Source:   &domain.Source{TLP: domain.TLPRed},
		Entities: []domain.StixEntity{indicatorEntity("High")},
	})

	if got.MostPermissiveTLP != domain.TLPAmber {
		t.Errorf("most permissive = %s, want amber", got.MostPermissiveTLP)
	}
	if got.MostRestrictiveTLP != domain.TLPRed {
		t.Errorf("most restrictive = %s, want red", got.MostRestrictiveTLP)
	}
	if got.MaxConfidence != domain.ConfidenceHigh {
		t.Errorf("max confidence = %s, want high", got.MaxConfidence)
	}
}

func TestReduceDefaultsAndPhases(t *testing.T) {
	got := Reduce(nil, Inputs{
		Source: &domain.Source{TLP: domain.TLPGreen, Processing: domain.ProcessingAutomated},
		Entities: []domain.StixEntity{
			indicatorEntity("Low", "Delivery", "C2"),
			indicatorEntity("", "C2", "Actions"),
			{EntityType: domain.EntityThreatActor, Essence: domain.Essence{Confidence: "High"}},
		},
	})

	if !got.Active || got.FalsePositive || got.Priority != domain.PriorityUncertain {
		t.Errorf("unexpected flags %+v", got)
	}
	if got.MostRestrictiveTLP != domain.TLPGreen || got.MostPermissiveTLP != domain.TLPGreen {
		t.Errorf("tlp = %s/%s, want green/green", got.MostPermissiveTLP, got.MostRestrictiveTLP)
	}
	if got.MaxConfidence != domain.ConfidenceLow {
		t.Errorf("threat actor confidence must be ignored, got %s", got.MaxConfidence)
	}
	if got.KillChainPhases != "Actions;C2;Delivery" {
		t.Errorf("phases = %q", got.KillChainPhases)
	}
	if got.BestProcessing != domain.ProcessingAutomated {
		t.Errorf("processing = %s", got.BestProcessing)
	}

	again := Reduce(&got, Inputs{Entities: []domain.StixEntity{indicatorEntity("Low", "C2")}})
	if again != got {
		t.Errorf("reducing known information must be stable: %+v vs %+v", again, got)
	}
}

func activeLinks(t *testing.T, store ports.Store) []domain.StatusLink {
	t.Helper()
	var links []domain.StatusLink
	err := store.View(context.Background(), func(ctx context.Context, repo ports.Repository) error {
		var err error
		links, err = repo.ActiveStatusLinks(ctx, target)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return links
}

func TestApplyTransitionsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	eng := NewEngine(nil, zaptest.NewLogger(t))

	apply := func(in Inputs) Result {
		t.Helper()
		var res Result
		err := store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
			var err error
			res, err = eng.Apply(ctx, repo, target, NewAction("importer", "test"), in)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	first := apply(Inputs{Source: &domain.Source{TLP: domain.TLPAmber}})
	if !first.Changed || !first.IsNew {
		t.Fatalf("first apply should create and link a snapshot: %+v", first)
	}

	same := apply(Inputs{Source: &domain.Source{TLP: domain.TLPAmber}})
	if same.Changed || same.IsNew || same.Status.ID != first.Status.ID {
		t.Errorf("same input must be a no-op: %+v", same)
	}

	next := apply(Inputs{Source: &domain.Source{TLP: domain.TLPRed}})
	if !next.Changed {
		t.Error("new tlp must change the status")
	}

	links := activeLinks(t, store)
	if len(links) != 1 || links[0].StatusID != next.Status.ID {
		t.Fatalf("expected exactly one active link to %d, got %+v", next.Status.ID, links)
	}

	var history []domain.StatusLink
	_ = store.View(ctx, func(ctx context.Context, repo ports.Repository) error {
		history, _ = repo.StatusHistory(ctx, target)
		return nil
	})
	if len(history) != 2 {
		t.Errorf("expected 2 status links in history, got %d", len(history))
	}
}

func TestApplyReusesExistingSnapshot(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	eng := NewEngine(nil, zaptest.NewLogger(t))
	other := domain.Target{Kind: domain.TargetIndicator, ID: 7}

	err := store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		a, err := eng.Apply(ctx, repo, target, NewAction("", ""), Inputs{Source: &domain.Source{TLP: domain.TLPWhite}})
		if err != nil {
			return err
		}
		b, err := eng.Apply(ctx, repo, other, NewAction("", ""), Inputs{Source: &domain.Source{TLP: domain.TLPWhite}})
		if err != nil {
			return err
		}
		if b.IsNew || !b.Changed || a.Status.ID != b.Status.ID {
			t.Errorf("second target should link the existing snapshot: %+v vs %+v", a, b)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCurrentHealsDuplicateActiveLinks(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	eng := NewEngine(nil, zaptest.NewLogger(t))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		older, _, _ := repo.GetOrCreateStatus(ctx, domain.StatusFields{Active: true, MostPermissiveTLP: domain.TLPGreen})
		newer, _, _ := repo.GetOrCreateStatus(ctx, domain.StatusFields{Active: true, MostPermissiveTLP: domain.TLPWhite})
		for i, st := range []domain.Status{newer, older, older} {
			ts := base
			if i == 0 {
				ts = base.Add(time.Hour)
			}
			if _, err := repo.InsertStatusLink(ctx, domain.StatusLink{StatusID: st.ID, Target: target, Active: true, Timestamp: ts}); err != nil {
				return err
			}
		}

		link, cur, healed, err := eng.Current(ctx, repo, target)
		if err != nil {
			return err
		}
		if healed != 2 {
			t.Errorf("healed = %d, want 2", healed)
		}
		if cur.ID != newer.ID || link.StatusID != newer.ID {
			t.Errorf("newest link must win, got status %d", cur.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if links := activeLinks(t, store); len(links) != 1 {
		t.Fatalf("expected one active link after healing, got %d", len(links))
	}
}

func TestActionIsCreatedLazily(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	eng := NewEngine(nil, zaptest.NewLogger(t))
	act := NewAction("u", "c")

	_ = store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		if _, err := eng.Apply(ctx, repo, target, act, Inputs{}); err != nil {
			return err
		}
		first, _ := act.ID(ctx, repo)
		if _, err := eng.Apply(ctx, repo, target, act, Inputs{}); err != nil {
			return err
		}
		second, _ := act.ID(ctx, repo)
		if first == 0 || first != second {
			t.Errorf("action should be created once, got %d and %d", first, second)
		}
		return nil
	})
}
