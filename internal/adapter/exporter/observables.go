package exporter

import (
	"strings"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/graph"
	"github.com/hive-corporation/actionables/internal/core/ports"
)

// CybOX object types read by the built-in exporters.
const (
	objectFile    = "FileObject"
	objectAddress = "AddressObject"
	objectDomain  = "DomainNameObject"
	objectURI     = "URIObject"
	objectEmail   = "EmailMessageObject"
)

// scan walks nodes of one object type and lets fn turn each fact into
// zero or more rows. Related entities are filled in by scan.
func scan(g *graph.Graph, objectType string, fn func(n *graph.Node, f graph.Fact) []ports.CandidateRow) []ports.CandidateRow {
	var rows []ports.CandidateRow
	for _, n := range g.Nodes() {
		if n.ObjectType != objectType {
			continue
		}
		related := relatedEntities(g, n)
		for _, f := range n.Facts {
			for _, row := range fn(n, f) {
				row.FactID = f.FactID
				row.FactValueID = f.ValueID
				row.IObjectID = n.IObjectID
				row.IdentifierID = n.IdentifierID
				row.Related = related
				rows = append(rows, row)
			}
		}
	}
	return rows
}

// relatedEntities returns the indicators, threat actors and campaigns an
// object can be reached from.
func relatedEntities(g *graph.Graph, n *graph.Node) []*graph.Node {
	var out []*graph.Node
	for _, a := range g.Ancestors(n.IObjectID) {
		if graph.IsEntity(a) {
			out = append(out, a)
		}
	}
	return out
}

func lastSegment(term string) string {
	if i := strings.LastIndex(term, "/"); i >= 0 {
		return term[i+1:]
	}
	return term
}

// HashExporter emits file hashes typed by digest length.
type HashExporter struct{}

func (HashExporter) Name() string { return "hashes" }

func (HashExporter) Export(g *graph.Graph) ([]ports.CandidateRow, error) {
	return scan(g, objectFile, func(n *graph.Node, f graph.Fact) []ports.CandidateRow {
		if lastSegment(f.Term) != "Simple_Hash_Value" {
			return nil
		}
		// unknown digests keep an empty type and get skipped on import
		t, _ := domain.HashType(f.Value)
		return []ports.CandidateRow{{Type: t, Value: f.Value}}
	}), nil
}

// IPExporter emits address values that parse as IPv4 or IPv6.
type IPExporter struct{}

func (IPExporter) Name() string { return "ips" }

func (IPExporter) Export(g *graph.Graph) ([]ports.CandidateRow, error) {
	return scan(g, objectAddress, func(n *graph.Node, f graph.Fact) []ports.CandidateRow {
		if lastSegment(f.Term) != "Address_Value" {
			return nil
		}
		t, ok := domain.ClassifyIP(f.Value)
		if !ok {
			// CIDR ranges, e-mail addresses and the like
			return nil
		}
		return []ports.CandidateRow{{Type: t, Value: f.Value}}
	}), nil
}

// FQDNExporter emits domain name values.
type FQDNExporter struct{}

func (FQDNExporter) Name() string { return "fqdns" }

func (FQDNExporter) Export(g *graph.Graph) ([]ports.CandidateRow, error) {
	return scan(g, objectDomain, func(n *graph.Node, f graph.Fact) []ports.CandidateRow {
		if lastSegment(f.Term) != "Value" {
			return nil
		}
		return []ports.CandidateRow{{Type: domain.TypeFQDN, Value: f.Value}}
	}), nil
}

// URLExporter emits URIs and the host each one points at.
type URLExporter struct{}

func (URLExporter) Name() string { return "urls" }

func (URLExporter) Export(g *graph.Graph) ([]ports.CandidateRow, error) {
	return scan(g, objectURI, func(n *graph.Node, f graph.Fact) []ports.CandidateRow {
		if lastSegment(f.Term) != "Value" {
			return nil
		}
		rows := []ports.CandidateRow{{Type: domain.TypeURL, Value: f.Value}}
		for _, o := range domain.ExtractURLComponents(f.Value) {
			rows = append(rows, ports.CandidateRow{Type: o.Type, Subtype: "url-host", Value: o.Value})
		}
		return rows
	}), nil
}

// EmailExporter emits e-mail header addresses, subtyped by header field.
type EmailExporter struct{}

func (EmailExporter) Name() string { return "emails" }

var emailHeaders = map[string]string{
	"From":      "From",
	"Sender":    "Sender",
	"Reply_To":  "Reply-To",
	"To":        "To",
	"CC":        "CC",
	"BCC":       "BCC",
	"Errors_To": "Errors-To",
}

func (EmailExporter) Export(g *graph.Graph) ([]ports.CandidateRow, error) {
	return scan(g, objectEmail, func(n *graph.Node, f graph.Fact) []ports.CandidateRow {
		parts := strings.Split(f.Term, "/")
		if len(parts) < 3 || parts[0] != "Header" || parts[len(parts)-1] != "Address_Value" {
			return nil
		}
		sub, ok := emailHeaders[parts[1]]
		if !ok || !strings.Contains(f.Value, "@") {
			return nil
		}
		return []ports.CandidateRow{{Type: domain.TypeEmail, Subtype: sub, Value: f.Value}}
	}), nil
}
