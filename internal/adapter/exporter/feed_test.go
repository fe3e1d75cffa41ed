package exporter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hive-corporation/actionables/internal/core/domain"
)

func feedViews() []domain.IndicatorView {
	active := &domain.Status{ID: 1, StatusFields: domain.StatusFields{
		MostPermissiveTLP:  domain.TLPGreen,
		MostRestrictiveTLP: domain.TLPAmber,
		MaxConfidence:      domain.ConfidenceHigh,
		KillChainPhases:    "Command and Control;Delivery",
		Active:             true,
	}}
	return []domain.IndicatorView{
		{
			Indicator: domain.Indicator{ID: 7, Value: "evil.example", TagCache: "INVES-1:INVES-1,INVES-1:c2"},
			Type:      domain.TypeFQDN,
			Status:    active,
		},
		{
			Indicator: domain.Indicator{ID: 8, Value: "10.1.1.1"},
			Type:      domain.TypeIPv4,
			Status:    &domain.Status{ID: 2, StatusFields: domain.StatusFields{Active: false}},
		},
		{
			Indicator: domain.Indicator{ID: 9, Value: "10.1.1.2"},
			Type:      domain.TypeIPv4,
			Status:    &domain.Status{ID: 3, StatusFields: domain.StatusFields{Active: true, FalsePositive: true}},
		},
	}
}

func TestSTIXFeed(t *testing.T) {
	f := NewSTIXFeed()
	f.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }

	data, err := f.Render(feedViews())
	if err != nil {
		t.Fatal(err)
	}
	var bundle STIXBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		t.Fatal(err)
	}
	if len(bundle.Objects) != 1 {
		t.Fatalf("expected only the active indicator, got %d objects", len(bundle.Objects))
	}
	obj := bundle.Objects[0]
	if obj.Pattern != "[domain-name:value = 'evil.example']" {
		t.Errorf("pattern = %s", obj.Pattern)
	}
	if obj.Confidence != 85 {
		t.Errorf("confidence = %d", obj.Confidence)
	}
	if len(obj.ObjectMarkingRefs) != 1 || obj.ObjectMarkingRefs[0] != tlpMarkings[domain.TLPAmber] {
		t.Errorf("marking = %v", obj.ObjectMarkingRefs)
	}
	if len(obj.KillChainPhases) != 2 || obj.KillChainPhases[0].PhaseName != "command-and-control" {
		t.Errorf("phases = %+v", obj.KillChainPhases)
	}
	if len(obj.Labels) != 2 {
		t.Errorf("labels = %v", obj.Labels)
	}

	again, _ := f.Render(feedViews())
	var second STIXBundle
	if err := json.Unmarshal(again, &second); err != nil {
		t.Fatal(err)
	}
	if second.Objects[0].ID != obj.ID {
		t.Error("indicator ids must be stable across exports")
	}
}

func TestBuildPatternEscapesQuotes(t *testing.T) {
	p, ok := buildPattern(domain.TypeURL, `http://x.example/a'b`)
	if !ok || p != `[url:value = 'http://x.example/a\'b']` {
		t.Errorf("pattern = %s", p)
	}
	if _, ok := buildPattern("Mutex", "x"); ok {
		t.Error("unsupported types have no pattern")
	}
}

func TestCEFFeed(t *testing.T) {
	data, err := CEFFeed{}.Render(feedViews())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q", lines)
	}
	line := lines[0]
	if !strings.HasPrefix(line, "CEF:0|Hive|Actionables|1.0|FQDN|FQDN indicator|8|") {
		t.Errorf("header = %s", line)
	}
	for _, want := range []string{"dhost=evil.example", "cs4=amber", "cs5=high", "externalId=7"} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %q in %s", want, line)
		}
	}
}

func TestEscapeExtension(t *testing.T) {
	if got := escapeExtension("a=b\\c\nd"); got != `a\=b\\c\nd` {
		t.Errorf("escaped = %q", got)
	}
}

func TestFeedByName(t *testing.T) {
	for _, n := range []string{"stix", "cef"} {
		if _, ok := FeedByName(n); !ok {
			t.Errorf("feed %s missing", n)
		}
	}
	if _, ok := FeedByName("csv"); ok {
		t.Error("csv is not a feed")
	}
}
