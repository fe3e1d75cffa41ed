package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/jackc/pgx/v5/pgxpool"
)

// errRollback ends a test transaction so nothing is left in the database.
var errRollback = errors.New("rollback")

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("ACTIONABLES_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ACTIONABLES_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	return store
}

// inRolledBackTx runs fn in a transaction that is always rolled back.
func inRolledBackTx(t *testing.T, store *PostgresStore, fn func(ctx context.Context, repo ports.Repository)) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(ctx context.Context, repo ports.Repository) error {
		fn(ctx, repo)
		return errRollback
	})
	if !errors.Is(err, errRollback) {
		t.Fatalf("transaction: %v", err)
	}
}

func TestPostgresIndicatorAndSourceUpserts(t *testing.T) {
	store := newTestPostgresStore(t)
	suffix := uuid.NewString()

	inRolledBackTx(t, store, func(ctx context.Context, repo ports.Repository) {
		typeID, created, err := repo.GetOrCreateName(ctx, ports.IndicatorTypes, "type-"+suffix)
		if err != nil || !created {
			t.Fatalf("create type: created=%v err=%v", created, err)
		}
		again, created, err := repo.GetOrCreateName(ctx, ports.IndicatorTypes, "type-"+suffix)
		if err != nil || created || again != typeID {
			t.Fatalf("second get: id=%d created=%v err=%v", again, created, err)
		}
		subID, _, err := repo.GetOrCreateName(ctx, ports.IndicatorSubtypes, "")
		if err != nil {
			t.Fatal(err)
		}

		ind, created, err := repo.GetOrCreateIndicator(ctx, typeID, subID, "198.51.100.7")
		if err != nil || !created {
			t.Fatalf("create indicator: created=%v err=%v", created, err)
		}
		if err := repo.LockIndicator(ctx, ind.ID); err != nil {
			t.Fatalf("lock: %v", err)
		}
		same, created, err := repo.GetOrCreateIndicator(ctx, typeID, subID, "198.51.100.7")
		if err != nil || created || same.ID != ind.ID {
			t.Fatalf("second indicator get: id=%d created=%v err=%v", same.ID, created, err)
		}

		src := domain.Source{
			Owner:              ind.Target(),
			FactID:             1,
			FactValueID:        2,
			IObjectID:          100,
			ReportRevisionID:   100,
			ReportIdentifierID: 7,
			TLP:                domain.TLPAmber,
			Origin:             domain.OriginExternalUncertain,
			Processing:         domain.ProcessingAutomated,
		}
		first, created, err := repo.UpsertSource(ctx, src)
		if err != nil || !created {
			t.Fatalf("create source: created=%v err=%v", created, err)
		}
		if err := repo.MarkSourcesOutdated(ctx, []int64{first.ID}); err != nil {
			t.Fatal(err)
		}

		src.ReportRevisionID = 101
		src.IObjectID = 101
		second, created, err := repo.UpsertSource(ctx, src)
		if err != nil || created {
			t.Fatalf("revision upsert: created=%v err=%v", created, err)
		}
		if second.ID != first.ID || second.ReportRevisionID != 101 || second.Outdated {
			t.Errorf("revision upsert = %+v", second)
		}

		byTarget, err := repo.SourcesForTargets(ctx, []domain.Target{ind.Target(), {Kind: domain.TargetIndicator, ID: -1}})
		if err != nil {
			t.Fatal(err)
		}
		if len(byTarget) != 1 || byTarget[0].ID != first.ID {
			t.Errorf("sources for targets = %+v", byTarget)
		}
	})
}

func TestPostgresStatusDedupAndTags(t *testing.T) {
	store := newTestPostgresStore(t)
	suffix := uuid.NewString()

	inRolledBackTx(t, store, func(ctx context.Context, repo ports.Repository) {
		fields := domain.InitialStatus()
		fields.KillChainPhases = "phase-" + suffix
		st, created, err := repo.GetOrCreateStatus(ctx, fields)
		if err != nil || !created {
			t.Fatalf("create status: created=%v err=%v", created, err)
		}
		again, created, err := repo.GetOrCreateStatus(ctx, fields)
		if err != nil || created || again.ID != st.ID {
			t.Fatalf("status dedup: id=%d created=%v err=%v", again.ID, created, err)
		}

		c, created, err := repo.GetOrCreateContext(ctx, domain.Context{Name: "INVES-" + suffix, Type: domain.ContextInvestigation})
		if err != nil || !created {
			t.Fatalf("create context: created=%v err=%v", created, err)
		}
		nameID, _, err := repo.GetOrCreateName(ctx, ports.TagNames, "name-"+suffix)
		if err != nil {
			t.Fatal(err)
		}
		tag, _, err := repo.GetOrCreateActionableTag(ctx, c.ID, nameID)
		if err != nil {
			t.Fatal(err)
		}

		target := domain.Target{Kind: domain.TargetImportInfo, ID: 1}
		if added, err := repo.AttachTag(ctx, tag.ID, target); err != nil || !added {
			t.Fatalf("attach: added=%v err=%v", added, err)
		}
		if added, err := repo.AttachTag(ctx, tag.ID, target); err != nil || added {
			t.Fatalf("second attach: added=%v err=%v", added, err)
		}
		attached, err := repo.AttachedTags(ctx, []domain.Target{target})
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, a := range attached {
			if a.TagID == tag.ID && a.Context == c.Name {
				found = true
			}
		}
		if !found {
			t.Errorf("attached tags = %+v", attached)
		}
	})
}
