package exporter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hive-corporation/actionables/internal/core/domain"
)

// STIX 2.1 TLP marking definitions.
var tlpMarkings = map[domain.TLP]string{
	domain.TLPWhite: "marking-definition--613f2e26-407d-48c7-9eca-b8e91df99dc9",
	domain.TLPGreen: "marking-definition--34098fce-860f-48ae-8e50-ebd3cc5e41da",
	domain.TLPAmber: "marking-definition--f88d31f6-486f-44da-b317-01333bde0b82",
	domain.TLPRed:   "marking-definition--5e57c739-391a-4eb3-b6be-7d15ca92d5ed",
}

// confidence on the STIX 0-100 scale (Low/Med/High)
var stixConfidence = map[domain.Confidence]int{
	domain.ConfidenceLow:    15,
	domain.ConfidenceMedium: 50,
	domain.ConfidenceHigh:   85,
}

const killChainName = "lockheed-martin-cyber-kill-chain"

// indicatorNamespace seeds stable STIX ids, so the same indicator keeps
// its id across exports.
var indicatorNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:actionables:indicator"))

// STIXFeed exports indicators as a STIX 2.1 bundle for SIEM ingestion
type STIXFeed struct {
	now func() time.Time
}

func NewSTIXFeed() *STIXFeed {
	return &STIXFeed{now: time.Now}
}

func (f *STIXFeed) ContentType() string { return "application/stix+json;version=2.1" }

// Render generates the bundle. The marking is the most restrictive TLP
// the indicator was ever seen with.
func (f *STIXFeed) Render(views []domain.IndicatorView) ([]byte, error) {
	now := f.now().UTC().Format(time.RFC3339)

	bundle := STIXBundle{
		Type:    "bundle",
		ID:      fmt.Sprintf("bundle--%s", uuid.New().String()),
		Objects: []STIXObject{},
	}
	for _, v := range feedable(views) {
		pattern, ok := buildPattern(v.Type, v.Value)
		if !ok {
			continue
		}
		obj := STIXObject{
			Type:           "indicator",
			SpecVersion:    "2.1",
			ID:             "indicator--" + uuid.NewSHA1(indicatorNamespace, []byte(v.Type+"\x1f"+v.Subtype+"\x1f"+v.Value)).String(),
			Created:        now,
			Modified:       now,
			Name:           fmt.Sprintf("%s %s", v.Type, v.Value),
			Pattern:        pattern,
			PatternType:    "stix",
			ValidFrom:      now,
			IndicatorTypes: []string{"malicious-activity"},
			Confidence:     stixConfidence[v.Status.MaxConfidence],
			Labels:         domain.ParseSet(v.TagCache, domain.TagSeparator).Sorted(),
		}
		for _, p := range v.Status.Phases().Sorted() {
			obj.KillChainPhases = append(obj.KillChainPhases, KillChainPhase{
				KillChainName: killChainName,
				PhaseName:     strings.ReplaceAll(strings.ToLower(p), " ", "-"),
			})
		}
		if m, ok := tlpMarkings[v.Status.MostRestrictiveTLP]; ok {
			obj.ObjectMarkingRefs = []string{m}
		}
		bundle.Objects = append(bundle.Objects, obj)
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal STIX bundle: %w", err)
	}
	return data, nil
}

// buildPattern builds the STIX 2.1 pattern for an indicator type.
func buildPattern(typeName, value string) (string, bool) {
	v := escapePattern(value)
	switch typeName {
	case domain.TypeIPv4:
		return fmt.Sprintf("[ipv4-addr:value = '%s']", v), true
	case domain.TypeIPv6:
		return fmt.Sprintf("[ipv6-addr:value = '%s']", v), true
	case domain.TypeFQDN:
		return fmt.Sprintf("[domain-name:value = '%s']", v), true
	case domain.TypeURL:
		return fmt.Sprintf("[url:value = '%s']", v), true
	case domain.TypeEmail:
		return fmt.Sprintf("[email-addr:value = '%s']", v), true
	case domain.TypeMD5, domain.TypeSHA1, domain.TypeSHA256, domain.TypeSHA512:
		return fmt.Sprintf("[file:hashes.'%s' = '%s']", stixHashName(typeName), v), true
	}
	return "", false
}

func stixHashName(typeName string) string {
	switch typeName {
	case domain.TypeSHA1:
		return "SHA-1"
	case domain.TypeSHA256:
		return "SHA-256"
	case domain.TypeSHA512:
		return "SHA-512"
	}
	return "MD5"
}

func escapePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// STIX 2.1 data structures

type STIXBundle struct {
	Type    string       `json:"type"`
	ID      string       `json:"id"`
	Objects []STIXObject `json:"objects"`
}

type STIXObject struct {
	Type              string           `json:"type"`
	SpecVersion       string           `json:"spec_version"`
	ID                string           `json:"id"`
	Created           string           `json:"created"`
	Modified          string           `json:"modified"`
	Name              string           `json:"name"`
	Pattern           string           `json:"pattern"`
	PatternType       string           `json:"pattern_type"`
	ValidFrom         string           `json:"valid_from"`
	IndicatorTypes    []string         `json:"indicator_types"`
	Confidence        int              `json:"confidence,omitempty"`
	Labels            []string         `json:"labels,omitempty"`
	KillChainPhases   []KillChainPhase `json:"kill_chain_phases,omitempty"`
	ObjectMarkingRefs []string         `json:"object_marking_refs,omitempty"`
}

type KillChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}
