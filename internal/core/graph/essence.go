package graph

import (
	"strings"

	"github.com/hive-corporation/actionables/internal/core/domain"
)

// Fact term suffixes the essence extraction looks at.
const (
	termTitle          = "Title"
	termConfidence     = "Confidence/Value"
	termKillChainPhase = "Kill_Chain_Phase"
	termIdentityName   = "Identity/Name"
	termCampaignName   = "Names/Name"
)

// IsEntity reports whether the node is a kind whose essence is kept.
func IsEntity(n *Node) bool {
	switch n.ObjectType {
	case domain.EntityIndicator, domain.EntityThreatActor, domain.EntityCampaign:
		return true
	}
	return false
}

// ExtractEssence summarises an indicator, threat actor or campaign node.
// The second result is false for any other kind of node.
func ExtractEssence(n *Node) (domain.Essence, bool) {
	if !IsEntity(n) {
		return domain.Essence{}, false
	}

	var e domain.Essence
	if titles := n.FactsWithSuffix(termTitle); len(titles) > 0 {
		e.Title = titles[0].Value
	}

	switch n.ObjectType {
	case domain.EntityIndicator:
		if c := n.FactsWithSuffix(termConfidence); len(c) > 0 {
			e.Confidence = c[0].Value
		}
		phases := domain.Set{}
		for _, f := range n.Facts {
			if f.Attribute == "name" && hasSegment(f.Term, termKillChainPhase) {
				phases.Add(f.Value)
			}
		}
		if phases.Len() > 0 {
			e.KillChainPhases = phases.Sorted()
		}

	case domain.EntityThreatActor:
		e.Names = values(n.FactsWithSuffix(termIdentityName))

	case domain.EntityCampaign:
		e.Names = values(n.FactsWithSuffix(termCampaignName))
	}

	return e, true
}

func values(facts []Fact) []string {
	if len(facts) == 0 {
		return nil
	}
	s := domain.Set{}
	for _, f := range facts {
		s.Add(f.Value)
	}
	return s.Sorted()
}

func hasSegment(term, segment string) bool {
	for _, part := range strings.Split(term, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
