package coretest

import (
	"time"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/graph"
)

// ReportBuilder assembles a small report graph rooted at a STIX package.
type ReportBuilder struct {
	report graph.Report
	g      *graph.Graph
}

func NewReport(iobjectID, identifierID int64, created time.Time) *ReportBuilder {
	g := graph.New()
	g.AddNode(&graph.Node{
		IObjectID:    iobjectID,
		IdentifierID: identifierID,
		ObjectType:   "STIX_Package",
		Family:       "stix.mitre.org",
		CreatedAt:    created,
	})
	return &ReportBuilder{
		report: graph.Report{
			IObjectID:    iobjectID,
			IdentifierID: identifierID,
			ObjectType:   "STIX_Package",
			CreatedAt:    created,
		},
		g: g,
	}
}

// Add inserts n below parent; parent 0 means the report root.
func (b *ReportBuilder) Add(parent int64, n *graph.Node) *ReportBuilder {
	if parent == 0 {
		parent = b.report.IObjectID
	}
	if n.IdentifierID == 0 {
		n.IdentifierID = n.IObjectID + 100000
	}
	b.g.AddNode(n)
	b.g.AddEdge(graph.Edge{From: parent, To: n.IObjectID})
	return b
}

func (b *ReportBuilder) Build() (graph.Report, *graph.Graph) {
	return b.report, b.g
}

// Into stores the report in f and returns it.
func (b *ReportBuilder) Into(f *FactGraph) graph.Report {
	f.AddReport(b.report, b.g)
	return b.report
}

// Address is an AddressObject node with one address fact.
func Address(iobjectID, factID int64, value string) *graph.Node {
	return &graph.Node{
		IObjectID:  iobjectID,
		ObjectType: "AddressObject",
		Facts: []graph.Fact{
			{FactID: factID, ValueID: factID*10 + 1, Term: "Address_Value", Value: value},
		},
	}
}

// Domain is a DomainNameObject node with one value fact.
func Domain(iobjectID, factID int64, value string) *graph.Node {
	return &graph.Node{
		IObjectID:  iobjectID,
		ObjectType: "DomainNameObject",
		Facts: []graph.Fact{
			{FactID: factID, ValueID: factID*10 + 1, Term: "Value", Value: value},
		},
	}
}

// Indicator is a STIX indicator node with confidence and kill chain phases.
func Indicator(iobjectID int64, confidence string, phases ...string) *graph.Node {
	n := &graph.Node{IObjectID: iobjectID, ObjectType: domain.EntityIndicator}
	if confidence != "" {
		n.Facts = append(n.Facts, graph.Fact{FactID: iobjectID*100 + 1, Term: "Confidence/Value", Value: confidence})
	}
	for i, p := range phases {
		n.Facts = append(n.Facts, graph.Fact{
			FactID:    iobjectID*100 + 10 + int64(i),
			Term:      "Kill_Chain_Phases/Kill_Chain_Phase",
			Attribute: "name",
			Value:     p,
		})
	}
	return n
}
