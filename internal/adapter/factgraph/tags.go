package factgraph

import (
	"context"

	"github.com/hive-corporation/actionables/internal/core/domain"
)

func (c *Client) TagsForFacts(ctx context.Context, factIDs []int64) (map[int64][]string, error) {
	records, err := c.read(ctx, "tags for facts", `
		MATCH (f:Fact)-[:TAGGED]->(t:Tag)
		WHERE f.fact_id IN $ids
		RETURN f.fact_id AS fact_id, collect(DISTINCT t.name) AS tags`,
		map[string]any{"ids": factIDs})
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]string, len(records))
	for _, rec := range records {
		id, _ := int64Value(rec, "fact_id")
		tags := stringList(rec, "tags")
		if len(tags) == 0 {
			continue
		}
		out[id] = mergeSorted(out[id], tags)
	}
	return out, nil
}

// A history event is only written when at least one fact changed.
const recordEvent = `
	FOREACH (_ IN CASE WHEN changed > 0 THEN [1] ELSE [] END |
		CREATE (:TagEvent {action: $action, user: $user, comment: $comment, at: datetime()})-[:ON]->(t))
	RETURN changed`

func (c *Client) AddFactTag(ctx context.Context, factIDs []int64, tag, user, comment string) error {
	_, err := c.write(ctx, "add fact tag", `
		MERGE (t:Tag {name: $tag})
		WITH t
		MATCH (f:Fact)
		WHERE f.fact_id IN $ids AND NOT (f)-[:TAGGED]->(t)
		MERGE (f)-[:TAGGED]->(t)
		WITH t, count(f) AS changed`+recordEvent,
		tagParams(factIDs, tag, domain.TagAdd, user, comment))
	return err
}

func (c *Client) RemoveFactTag(ctx context.Context, factIDs []int64, tag, user, comment string) error {
	_, err := c.write(ctx, "remove fact tag", `
		MATCH (f:Fact)-[r:TAGGED]->(t:Tag {name: $tag})
		WHERE f.fact_id IN $ids
		DELETE r
		WITH t, count(*) AS changed`+recordEvent,
		tagParams(factIDs, tag, domain.TagRemove, user, comment))
	return err
}

func (c *Client) LatestTagEvent(ctx context.Context, tag string, action domain.TagAction, user string) (*domain.FactTagEvent, error) {
	records, err := c.read(ctx, "latest tag event", `
		MATCH (e:TagEvent)-[:ON]->(t:Tag {name: $tag})
		WHERE e.action = $action AND ($user = '' OR e.user = $user)
		RETURN e.user AS user, e.comment AS comment, e.at AS at
		ORDER BY e.at DESC
		LIMIT 1`,
		map[string]any{"tag": tag, "action": action.String(), "user": user})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	rec := records[0]
	return &domain.FactTagEvent{
		Tag:       tag,
		Action:    action,
		User:      stringValue(rec, "user"),
		Comment:   stringValue(rec, "comment"),
		Timestamp: timeValue(rec, "at"),
	}, nil
}

func (c *Client) FactTagExists(ctx context.Context, tag string) (bool, error) {
	records, err := c.read(ctx, "fact tag exists", `
		OPTIONAL MATCH (f:Fact)-[:TAGGED]->(:Tag {name: $tag})
		RETURN count(f) > 0 AS found`,
		map[string]any{"tag": tag})
	if err != nil || len(records) == 0 {
		return false, err
	}
	found, _ := records[0].Get("found")
	b, _ := found.(bool)
	return b, nil
}

// RenameFactTag renames the tag node, so its history follows it.
func (c *Client) RenameFactTag(ctx context.Context, from, to string) error {
	_, err := c.write(ctx, "rename fact tag", `
		MATCH (t:Tag {name: $from})
		SET t.name = $to`,
		map[string]any{"from": from, "to": to})
	return err
}

func (c *Client) DeleteFactTags(ctx context.Context, tags []string) error {
	_, err := c.write(ctx, "delete fact tags", `
		MATCH (t:Tag)
		WHERE t.name IN $tags
		OPTIONAL MATCH (e:TagEvent)-[:ON]->(t)
		DETACH DELETE e, t`,
		map[string]any{"tags": stringsOrEmpty(tags)})
	return err
}

func tagParams(factIDs []int64, tag string, action domain.TagAction, user, comment string) map[string]any {
	return map[string]any{
		"ids":     factIDs,
		"tag":     tag,
		"action":  action.String(),
		"user":    user,
		"comment": comment,
	}
}

func mergeSorted(a, b []string) []string {
	return domain.NewSet(append(append([]string(nil), a...), b...)...).Sorted()
}
