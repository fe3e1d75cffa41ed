package importer

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/hive-corporation/actionables/internal/adapter/repository"
	"github.com/hive-corporation/actionables/internal/core/coretest"
	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/graph"
	"github.com/hive-corporation/actionables/internal/core/outdating"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/hive-corporation/actionables/internal/core/registry"
	"github.com/hive-corporation/actionables/internal/core/status"
	"github.com/hive-corporation/actionables/internal/core/tagging"
	"go.uber.org/zap/zaptest"
)

// observableExporter emits address and domain facts with their entity
// ancestors.
type observableExporter struct{}

func (observableExporter) Name() string { return "observables" }

func (observableExporter) Export(g *graph.Graph) ([]ports.CandidateRow, error) {
	var rows []ports.CandidateRow
	for _, n := range g.Nodes() {
		var typ string
		switch n.ObjectType {
		case "AddressObject":
			typ = domain.TypeIPv4
		case "DomainNameObject":
			typ = domain.TypeFQDN
		default:
			continue
		}
		var related []*graph.Node
		for _, a := range g.Ancestors(n.IObjectID) {
			if graph.IsEntity(a) {
				related = append(related, a)
			}
		}
		for _, f := range n.Facts {
			rows = append(rows, ports.CandidateRow{
				Type:         typ,
				Value:        f.Value,
				FactID:       f.FactID,
				FactValueID:  f.ValueID,
				IObjectID:    n.IObjectID,
				IdentifierID: n.IdentifierID,
				Related:      related,
			})
		}
	}
	return rows, nil
}

// flakyStore fails the transaction of the n-th call after its work is done.
type flakyStore struct {
	*repository.MemoryStore
	failOn int
	calls  int
}

var errInjected = errors.New("injected failure")

func (s *flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	s.calls++
	call := s.calls
	return s.MemoryStore.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		if err := fn(ctx, repo); err != nil {
			return err
		}
		if call == s.failOn {
			return errInjected
		}
		return nil
	})
}

type harness struct {
	t        *testing.T
	mem      *repository.MemoryStore
	store    ports.Store
	facts    *coretest.FactGraph
	importer *Importer
}

func newHarness(t *testing.T, store ports.Store, mem *repository.MemoryStore) *harness {
	log := zaptest.NewLogger(t)
	matcher := tagging.NewContextMatcher(tagging.ContextPattern{
		Regex: regexp.MustCompile(`^INVES-[0-9]+$`),
		Type:  domain.ContextInvestigation,
	})
	reg := registry.NewRegistries(matcher.TypeOf, log)
	facts := coretest.NewFactGraph()
	st := status.NewEngine(nil, log)
	tags := tagging.NewEngine(facts, reg, st, matcher, log)
	sweeper := outdating.NewSweeper(facts, facts, tags, "OUTDATED", log)

	im := New(store, facts, reg, st, tags, sweeper, Options{
		ReportTypes:        []string{"STIX_Package"},
		Exporters:          []ports.Exporter{observableExporter{}},
		SystemUser:         "actionables",
		DefaultOrigin:      domain.OriginExternalUncertain,
		DefaultProcessing:  domain.ProcessingAutomated,
		OutdateAfterImport: true,
	}, log)
	return &harness{t: t, mem: mem, store: store, facts: facts, importer: im}
}

func newMemHarness(t *testing.T) *harness {
	mem := repository.NewMemoryStore()
	return newHarness(t, mem, mem)
}

var day = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// firstReport has an indicator node (high confidence, delivery phase) over
// an address, a domain at the top level and an address without value.
func firstReport(h *harness) graph.Report {
	r := coretest.NewReport(1000, 2000, day).
		Add(0, coretest.Indicator(10, "High", "Delivery")).
		Add(10, coretest.Address(11, 111, "10.0.0.1")).
		Add(0, coretest.Domain(12, 121, "Evil.Example.")).
		Add(0, coretest.Address(13, 131, "")).
		Into(h.facts)
	h.facts.Mark(1000, "amber")
	return r
}

func (h *harness) importAll(reports ...graph.Report) Summary {
	h.t.Helper()
	sum, err := h.importer.ImportReports(context.Background(), reports)
	if err != nil {
		h.t.Fatal(err)
	}
	return sum
}

type snapshot struct {
	Indicators []domain.IndicatorView
	Sources    []domain.Source
	Links      map[int64][]domain.StatusLink
	History    []domain.TagHistoryEntry
}

func (h *harness) snapshot() snapshot {
	h.t.Helper()
	var s snapshot
	err := h.mem.View(context.Background(), func(ctx context.Context, repo ports.Repository) error {
		var err error
		s.Indicators, _, err = repo.ListIndicators(ctx, ports.IndicatorQuery{})
		if err != nil {
			return err
		}
		var targets []domain.Target
		s.Links = map[int64][]domain.StatusLink{}
		for _, v := range s.Indicators {
			targets = append(targets, v.Target())
			if s.Links[v.ID], err = repo.StatusHistory(ctx, v.Target()); err != nil {
				return err
			}
		}
		if s.Sources, err = repo.SourcesForTargets(ctx, targets); err != nil {
			return err
		}
		s.History, err = repo.TagHistory(ctx, "INVES-3")
		return err
	})
	if err != nil {
		h.t.Fatal(err)
	}
	return s
}

func (s snapshot) indicator(value string) (domain.IndicatorView, bool) {
	for _, v := range s.Indicators {
		if v.Value == value {
			return v, true
		}
	}
	return domain.IndicatorView{}, false
}

func TestImportReport(t *testing.T) {
	h := newMemHarness(t)
	r := firstReport(h)

	sum := h.importAll(r)
	if sum.Reports != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Rows != 3 || sum.Skipped != 1 {
		t.Errorf("rows = %d skipped = %d", sum.Rows, sum.Skipped)
	}
	if sum.IndicatorsCreated != 2 || sum.SourcesCreated != 2 || sum.StatusChanges != 2 {
		t.Errorf("summary = %+v", sum)
	}

	s := h.snapshot()
	ip, ok := s.indicator("10.0.0.1")
	if !ok || ip.Status == nil {
		t.Fatalf("ip indicator missing: %+v", s.Indicators)
	}
	want := domain.StatusFields{
		MostPermissiveTLP:  domain.TLPAmber,
		MostRestrictiveTLP: domain.TLPAmber,
		MaxConfidence:      domain.ConfidenceHigh,
		BestProcessing:     domain.ProcessingAutomated,
		KillChainPhases:    "Delivery",
		Active:             true,
	}
	if ip.Status.StatusFields != want {
		t.Errorf("status = %+v, want %+v", ip.Status.StatusFields, want)
	}

	fqdn, ok := s.indicator("evil.example")
	if !ok {
		t.Fatal("domain value was not normalised")
	}
	if fqdn.Subtype != "" || fqdn.Status.MaxConfidence != domain.ConfidenceUnknown {
		t.Errorf("fqdn = %+v", fqdn)
	}

	for _, src := range s.Sources {
		if src.ReportRevisionID != 1000 || src.ReportIdentifierID != 2000 || src.TLP != domain.TLPAmber {
			t.Errorf("source = %+v", src)
		}
		if src.FactID == 111 && len(src.RelatedEntityIDs) != 1 {
			t.Errorf("ip source should link the indicator entity, got %v", src.RelatedEntityIDs)
		}
	}
}

func TestImportIsIdempotent(t *testing.T) {
	h := newMemHarness(t)
	r := firstReport(h)
	h.facts.TagFact("INVES-3", "alice", "campaign", 111)

	h.importAll(r)
	before := h.snapshot()

	sum := h.importAll(r)
	if sum.IndicatorsCreated != 0 || sum.SourcesCreated != 0 || sum.StatusChanges != 0 || sum.Tags.Indicators != 0 {
		t.Errorf("second import changed state: %+v", sum)
	}
	if after := h.snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("state differs after re-import\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestSameValueAcrossReportsIsOneIndicator(t *testing.T) {
	h := newMemHarness(t)
	first := firstReport(h)
	second := coretest.NewReport(3000, 4000, day.Add(time.Hour)).
		Add(0, coretest.Address(31, 311, "10.0.0.1")).
		Into(h.facts)
	h.facts.Mark(3000, "red")

	h.importAll(first, second)

	s := h.snapshot()
	ip, _ := s.indicator("10.0.0.1")
	count := 0
	for _, v := range s.Indicators {
		if v.Value == "10.0.0.1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("found %d indicators for one value", count)
	}
	if ip.Status.MostPermissiveTLP != domain.TLPAmber || ip.Status.MostRestrictiveTLP != domain.TLPRed {
		t.Errorf("tlp range = %v..%v", ip.Status.MostRestrictiveTLP, ip.Status.MostPermissiveTLP)
	}
	if n := len(s.Links[ip.ID]); n != 2 {
		t.Errorf("expected 2 status links, got %d", n)
	}
	active := 0
	for _, l := range s.Links[ip.ID] {
		if l.Active {
			active++
		}
	}
	if active != 1 {
		t.Errorf("active links = %d", active)
	}
}

func TestFailedReportIsIsolated(t *testing.T) {
	mem := repository.NewMemoryStore()
	h := newHarness(t, &flakyStore{MemoryStore: mem, failOn: 1}, mem)

	bad := coretest.NewReport(5000, 6000, day).
		Add(0, coretest.Address(51, 511, "192.0.2.1")).
		Into(h.facts)
	good := coretest.NewReport(7000, 8000, day).
		Add(0, coretest.Address(71, 711, "192.0.2.2")).
		Into(h.facts)

	sum := h.importAll(bad, good)
	if sum.Reports != 2 || sum.Failed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if !sum.FailedSince.Equal(day) {
		t.Errorf("failed since = %v, want %v", sum.FailedSince, day)
	}

	s := h.snapshot()
	if _, ok := s.indicator("192.0.2.1"); ok {
		t.Error("failed report left an indicator behind")
	}
	if _, ok := s.indicator("192.0.2.2"); !ok {
		t.Error("good report was not imported")
	}

	// registries were reset, so the retry recreates the rolled back rows
	sum = h.importAll(bad)
	if sum.Failed != 0 || sum.IndicatorsCreated != 1 {
		t.Errorf("retry summary = %+v", sum)
	}
}

func TestNewRevisionOutdatesSources(t *testing.T) {
	h := newMemHarness(t)
	first := firstReport(h)
	h.facts.TagFact("INVES-3", "alice", "campaign", 111)

	sum, err := h.importer.ImportRange(context.Background(), day.Add(-time.Hour), day.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if sum.Reports != 1 {
		t.Fatalf("range import found %d reports", sum.Reports)
	}

	coretest.NewReport(1500, first.IdentifierID, day.Add(2*time.Hour)).
		Add(0, coretest.Address(15, 151, "10.0.0.2")).
		Into(h.facts)
	sum, err = h.importer.ImportIDs(context.Background(), []int64{1500})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Outdated != 2 {
		t.Errorf("expected both sources of the old revision outdated, got %d", sum.Outdated)
	}

	s := h.snapshot()
	ip, _ := s.indicator("10.0.0.1")
	if ip.TagCache != "INVES-3:INVES-3,INVES-3:OUTDATED" {
		t.Errorf("tag cache = %q", ip.TagCache)
	}
	for _, src := range s.Sources {
		if want := src.ReportRevisionID == 1000; src.Outdated != want {
			t.Errorf("source %+v outdated = %v", src, src.Outdated)
		}
	}
}

func TestRecordBatch(t *testing.T) {
	h := newMemHarness(t)

	info, err := h.importer.RecordBatch(context.Background(), domain.ImportInfo{Name: "feed dump", Comment: "manual upload"})
	if err != nil {
		t.Fatal(err)
	}
	if info.ID == 0 || info.Type != domain.ImportBulk || info.User != "actionables" {
		t.Errorf("info = %+v", info)
	}
	err = h.mem.View(context.Background(), func(ctx context.Context, repo ports.Repository) error {
		links, err := repo.ActiveStatusLinks(ctx, info.Target())
		if err != nil {
			return err
		}
		if len(links) != 1 {
			t.Errorf("active links = %d", len(links))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
