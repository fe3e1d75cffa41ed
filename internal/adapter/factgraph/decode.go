package factgraph

import (
	"fmt"
	"time"

	"github.com/hive-corporation/actionables/internal/core/graph"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func decodeReports(records []*neo4j.Record) ([]graph.Report, error) {
	out := make([]graph.Report, 0, len(records))
	for _, rec := range records {
		id, ok := int64Value(rec, "iobject_id")
		if !ok {
			return nil, fmt.Errorf("report record without iobject_id")
		}
		ident, _ := int64Value(rec, "identifier_id")
		out = append(out, graph.Report{
			IObjectID:    id,
			IdentifierID: ident,
			ObjectType:   stringValue(rec, "object_type"),
			Name:         stringValue(rec, "name"),
			CreatedAt:    timeValue(rec, "created_at"),
		})
	}
	return out, nil
}

// decodeNode turns one traversal row into a node and its outgoing edges.
func decodeNode(rec *neo4j.Record) (*graph.Node, []graph.Edge, error) {
	id, ok := int64Value(rec, "iobject_id")
	if !ok {
		return nil, nil, fmt.Errorf("object record without iobject_id")
	}
	ident, _ := int64Value(rec, "identifier_id")
	n := &graph.Node{
		IObjectID:    id,
		IdentifierID: ident,
		ObjectType:   stringValue(rec, "object_type"),
		Family:       stringValue(rec, "family"),
		Name:         stringValue(rec, "name"),
		CreatedAt:    timeValue(rec, "created_at"),
	}

	facts, _ := rec.Get("facts")
	for _, item := range asList(facts) {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		n.Facts = append(n.Facts, graph.Fact{
			FactID:    asInt64(m["fact_id"]),
			ValueID:   asInt64(m["value_id"]),
			Term:      asString(m["term"]),
			Attribute: asString(m["attribute"]),
			Value:     asString(m["value"]),
		})
	}

	var edges []graph.Edge
	refs, _ := rec.Get("refs")
	for _, item := range asList(refs) {
		m, ok := item.(map[string]any)
		if !ok || m["to"] == nil {
			continue
		}
		edges = append(edges, graph.Edge{From: id, To: asInt64(m["to"]), Term: asString(m["term"])})
	}
	return n, edges, nil
}

func int64Value(rec *neo4j.Record, key string) (int64, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0, false
	}
	return asInt64(v), true
}

func stringValue(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	return asString(v)
}

func stringList(rec *neo4j.Record, key string) []string {
	v, _ := rec.Get(key)
	var out []string
	for _, item := range asList(v) {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func timeValue(rec *neo4j.Record, key string) time.Time {
	v, _ := rec.Get(key)
	switch t := v.(type) {
	case time.Time:
		return t
	case interface{ Time() time.Time }:
		return t.Time()
	}
	return time.Time{}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asList(v any) []any {
	l, _ := v.([]any)
	return l
}

// stringsOrEmpty keeps a nil slice from being sent as a null parameter.
func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
