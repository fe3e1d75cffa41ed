package tagging

import (
	"context"
	"regexp"
	"testing"

	"github.com/hive-corporation/actionables/internal/adapter/repository"
	"github.com/hive-corporation/actionables/internal/core/coretest"
	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/hive-corporation/actionables/internal/core/registry"
	"github.com/hive-corporation/actionables/internal/core/status"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	t      *testing.T
	store  *repository.MemoryStore
	facts  *coretest.FactGraph
	engine *Engine
	reg    *registry.Registries
}

func defaultMatcher() *ContextMatcher {
	return NewContextMatcher(
		ContextPattern{Regex: regexp.MustCompile(`^INVES-[0-9]+$`), Type: domain.ContextInvestigation},
		ContextPattern{Regex: regexp.MustCompile(`^IR-[0-9]+$`), Type: domain.ContextIncidentResponse},
	)
}

func newHarness(t *testing.T) *harness {
	log := zaptest.NewLogger(t)
	matcher := defaultMatcher()
	reg := registry.NewRegistries(matcher.TypeOf, log)
	facts := coretest.NewFactGraph()
	return &harness{
		t:      t,
		store:  repository.NewMemoryStore(),
		facts:  facts,
		reg:    reg,
		engine: NewEngine(facts, reg, status.NewEngine(nil, log), matcher, log),
	}
}

func (h *harness) tx(fn func(ctx context.Context, repo ports.Repository) error) {
	h.t.Helper()
	if err := h.store.WithinTx(context.Background(), fn); err != nil {
		h.t.Fatal(err)
	}
}

// seed creates an IPv4 indicator with one source per fact id.
func (h *harness) seed(value string, factIDs ...int64) domain.Indicator {
	h.t.Helper()
	var ind domain.Indicator
	h.tx(func(ctx context.Context, repo ports.Repository) error {
		typeID, err := h.reg.TypeID(ctx, repo, domain.TypeIPv4)
		if err != nil {
			return err
		}
		subID, err := h.reg.SubtypeID(ctx, repo, "")
		if err != nil {
			return err
		}
		ind, _, err = repo.GetOrCreateIndicator(ctx, typeID, subID, value)
		if err != nil {
			return err
		}
		for _, f := range factIDs {
			if _, _, err := repo.UpsertSource(ctx, domain.Source{
				Owner:              ind.Target(),
				FactID:             f,
				FactValueID:        f*10 + 1,
				ReportRevisionID:   1000,
				ReportIdentifierID: 2000,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return ind
}

func (h *harness) indicator(id int64) domain.Indicator {
	h.t.Helper()
	var ind domain.Indicator
	h.tx(func(ctx context.Context, repo ports.Repository) error {
		var err error
		ind, err = repo.GetIndicator(ctx, id)
		return err
	})
	return ind
}

func (h *harness) history(contextName string) []domain.TagHistoryEntry {
	h.t.Helper()
	var out []domain.TagHistoryEntry
	h.tx(func(ctx context.Context, repo ports.Repository) error {
		var err error
		out, err = repo.TagHistory(ctx, contextName)
		return err
	})
	return out
}

func (h *harness) bulk(req BulkRequest) BulkResult {
	h.t.Helper()
	var res BulkResult
	h.tx(func(ctx context.Context, repo ports.Repository) error {
		var err error
		res, err = h.engine.BulkAction(ctx, repo, req)
		return err
	})
	return res
}
