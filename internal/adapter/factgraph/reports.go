package factgraph

import (
	"context"
	"time"

	"github.com/hive-corporation/actionables/internal/core/graph"
)

const reportReturn = `
	RETURN r.iobject_id AS iobject_id, r.identifier_id AS identifier_id,
		r.object_type AS object_type, r.name AS name, r.created_at AS created_at
	ORDER BY r.created_at, r.iobject_id`

func (c *Client) ReportsCreatedBetween(ctx context.Context, from, to time.Time, objectTypes []string) ([]graph.Report, error) {
	records, err := c.read(ctx, "reports created between", `
		MATCH (r:InfoObject)
		WHERE r.created_at >= $from AND r.created_at < $to
			AND (size($types) = 0 OR r.object_type IN $types)`+reportReturn,
		map[string]any{"from": from, "to": to, "types": stringsOrEmpty(objectTypes)})
	if err != nil {
		return nil, err
	}
	return decodeReports(records)
}

func (c *Client) ReportsByID(ctx context.Context, iobjectIDs []int64) ([]graph.Report, error) {
	records, err := c.read(ctx, "reports by id", `
		MATCH (r:InfoObject)
		WHERE r.iobject_id IN $ids`+reportReturn,
		map[string]any{"ids": iobjectIDs})
	if err != nil {
		return nil, err
	}
	return decodeReports(records)
}

const followDown = `
	MATCH (root:InfoObject) WHERE root.iobject_id IN $ids
	MATCH (root)-[:REFERENCES*0..]->(n:InfoObject)`

const followUp = `
	MATCH (root:InfoObject) WHERE root.iobject_id IN $ids
	MATCH (root)<-[:REFERENCES*0..]-(n:InfoObject)`

// FollowReferences loads every object reachable from the roots in one
// query, each with its facts and outgoing references.
func (c *Client) FollowReferences(ctx context.Context, rootIDs []int64, dir graph.Direction) (*graph.Graph, error) {
	match := followDown
	if dir == graph.Up {
		match = followUp
	}
	records, err := c.read(ctx, "follow references", match+`
		WITH DISTINCT n
		OPTIONAL MATCH (n)-[:HAS_FACT]->(f:Fact)
		WITH n, collect(f {.fact_id, .value_id, .term, .attribute, .value}) AS facts
		OPTIONAL MATCH (n)-[ref:REFERENCES]->(m:InfoObject)
		RETURN n.iobject_id AS iobject_id, n.identifier_id AS identifier_id,
			n.object_type AS object_type, n.family AS family, n.name AS name,
			n.created_at AS created_at, facts,
			collect({to: m.iobject_id, term: ref.term}) AS refs`,
		map[string]any{"ids": rootIDs})
	if err != nil {
		return nil, err
	}

	g := graph.New()
	var edges []graph.Edge
	for _, rec := range records {
		n, out, err := decodeNode(rec)
		if err != nil {
			return nil, err
		}
		g.AddNode(n)
		edges = append(edges, out...)
	}
	for _, e := range edges {
		g.AddEdge(e)
	}
	return g, nil
}

func (c *Client) MarkingColors(ctx context.Context, iobjectIDs []int64) (map[int64]string, error) {
	records, err := c.read(ctx, "marking colors", `
		MATCH (n:InfoObject)-[:MARKED_BY]->(m:Marking)
		WHERE n.iobject_id IN $ids
		RETURN n.iobject_id AS iobject_id, m.color AS color`,
		map[string]any{"ids": iobjectIDs})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(records))
	for _, rec := range records {
		id, _ := int64Value(rec, "iobject_id")
		if color := stringValue(rec, "color"); color != "" {
			out[id] = color
		}
	}
	return out, nil
}

func (c *Client) LatestRevisions(ctx context.Context, identifierIDs []int64) (map[int64]int64, error) {
	records, err := c.read(ctx, "latest revisions", `
		MATCH (n:InfoObject)
		WHERE n.identifier_id IN $ids
		WITH n ORDER BY n.created_at DESC, n.iobject_id DESC
		WITH n.identifier_id AS identifier_id, collect(n.iobject_id)[0] AS latest
		RETURN identifier_id, latest`,
		map[string]any{"ids": identifierIDs})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int64, len(records))
	for _, rec := range records {
		ident, _ := int64Value(rec, "identifier_id")
		latest, ok := int64Value(rec, "latest")
		if ok {
			out[ident] = latest
		}
	}
	return out, nil
}
