package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
)

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		if _, _, err := repo.GetOrCreateName(ctx, ports.TagNames, "phishing"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}

	_ = store.View(ctx, func(ctx context.Context, repo ports.Repository) error {
		names, err := repo.LoadNames(ctx, ports.TagNames)
		if err != nil {
			t.Fatalf("LoadNames: %v", err)
		}
		if len(names) != 0 {
			t.Errorf("rolled back name is visible: %+v", names)
		}
		return nil
	})
}

func TestUpsertSourceUpdatesRevisionInPlace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	owner := domain.Target{Kind: domain.TargetIndicator, ID: 1}
	src := domain.Source{
		Owner:              owner,
		FactID:             10,
		FactValueID:        11,
		IObjectID:          100,
		ReportRevisionID:   100,
		ReportIdentifierID: 7,
		TLP:                domain.TLPAmber,
	}

	err := store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		first, created, err := repo.UpsertSource(ctx, src)
		if err != nil || !created {
			t.Fatalf("first upsert: created=%v err=%v", created, err)
		}
		if err := repo.MarkSourcesOutdated(ctx, []int64{first.ID}); err != nil {
			t.Fatal(err)
		}

		next := src
		next.ReportRevisionID = 101
		next.IObjectID = 101
		second, created, err := repo.UpsertSource(ctx, next)
		if err != nil || created {
			t.Fatalf("second upsert: created=%v err=%v", created, err)
		}
		if second.ID != first.ID || second.ReportRevisionID != 101 || second.Outdated {
			t.Errorf("unexpected source after revision %+v", second)
		}

		current, err := repo.CurrentSources(ctx, []int64{7})
		if err != nil {
			t.Fatal(err)
		}
		if len(current) != 1 {
			t.Errorf("got %d current sources, want 1", len(current))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDeleteContextsCascades(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	target := domain.Target{Kind: domain.TargetIndicator, ID: 42}

	err := store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		c, _, err := repo.GetOrCreateContext(ctx, domain.Context{Name: "INVES-9", Type: domain.ContextInvestigation})
		if err != nil {
			return err
		}
		nameID, _, err := repo.GetOrCreateName(ctx, ports.TagNames, "c2")
		if err != nil {
			return err
		}
		tag, _, err := repo.GetOrCreateActionableTag(ctx, c.ID, nameID)
		if err != nil {
			return err
		}
		if added, err := repo.AttachTag(ctx, tag.ID, target); err != nil || !added {
			t.Fatalf("attach: added=%v err=%v", added, err)
		}
		if added, _ := repo.AttachTag(ctx, tag.ID, target); added {
			t.Error("second attach reported a change")
		}
		if err := repo.AppendTagHistory(ctx, []domain.TagHistoryEntry{{TagID: tag.ID, Target: target, Action: domain.TagAdd, User: "u"}}); err != nil {
			return err
		}

		n, err := repo.DeleteContexts(ctx, []string{"INVES-9", "INVES-404"})
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("deleted %d contexts, want 1", n)
		}

		attached, err := repo.AttachedTags(ctx, []domain.Target{target})
		if err != nil {
			return err
		}
		if len(attached) != 0 {
			t.Errorf("attachments survived: %+v", attached)
		}
		if _, err := repo.GetContext(ctx, "INVES-9"); !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("GetContext after delete: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRenameNameConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		_, _, _ = repo.GetOrCreateName(ctx, ports.TagNames, "a")
		_, _, _ = repo.GetOrCreateName(ctx, ports.TagNames, "b")

		if err := repo.RenameName(ctx, ports.TagNames, "a", "b"); !errors.Is(err, ports.ErrConflict) {
			t.Errorf("rename onto existing: %v", err)
		}
		if err := repo.RenameName(ctx, ports.TagNames, "missing", "c"); !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("rename missing: %v", err)
		}
		if err := repo.RenameName(ctx, ports.TagNames, "a", "c"); err != nil {
			t.Errorf("rename: %v", err)
		}
		return nil
	})
}

func TestGetOrCreateActionableTagUnknownContext(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		nameID, _, err := repo.GetOrCreateName(ctx, ports.TagNames, "c2")
		if err != nil {
			t.Fatal(err)
		}
		_, created, err := repo.GetOrCreateActionableTag(ctx, 999, nameID)
		if !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
		if created {
			t.Error("reported a tag as created for an unknown context")
		}
		return nil
	})
}
