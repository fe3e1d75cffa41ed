package ports

import (
	"context"
	"time"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/graph"
)

// ReportGraph reads reports and their object graphs from the fact store.
type ReportGraph interface {
	ReportsCreatedBetween(ctx context.Context, from, to time.Time, objectTypes []string) ([]graph.Report, error)
	ReportsByID(ctx context.Context, iobjectIDs []int64) ([]graph.Report, error)
	// FollowReferences returns the objects reachable from the given roots,
	// including the roots, with their facts and reference edges.
	FollowReferences(ctx context.Context, rootIDs []int64, dir graph.Direction) (*graph.Graph, error)
	// MarkingColors maps each object to its TLP colour, if marked.
	MarkingColors(ctx context.Context, iobjectIDs []int64) (map[int64]string, error)
	// LatestRevisions maps identifiers to the IObjectID of their newest revision.
	LatestRevisions(ctx context.Context, identifierIDs []int64) (map[int64]int64, error)
}

// FactTags is the tag surface of the fact store. Every add or remove is
// recorded in the store's own tag history.
type FactTags interface {
	TagsForFacts(ctx context.Context, factIDs []int64) (map[int64][]string, error)
	AddFactTag(ctx context.Context, factIDs []int64, tag, user, comment string) error
	RemoveFactTag(ctx context.Context, factIDs []int64, tag, user, comment string) error
	// LatestTagEvent returns the newest history entry for tag and action,
	// limited to user when user is not empty. It returns nil when none exists.
	LatestTagEvent(ctx context.Context, tag string, action domain.TagAction, user string) (*domain.FactTagEvent, error)
	FactTagExists(ctx context.Context, tag string) (bool, error)
	RenameFactTag(ctx context.Context, from, to string) error
	DeleteFactTags(ctx context.Context, tags []string) error
}

// CandidateRow is one observable an exporter found in a report graph.
type CandidateRow struct {
	Type    string
	Subtype string
	Value   string

	FactID       int64
	FactValueID  int64
	IObjectID    int64
	IdentifierID int64

	// Related holds the entity nodes (indicators, threat actors,
	// campaigns) the observable is reachable from.
	Related []*graph.Node
}

// Exporter turns a report graph into candidate indicator rows.
type Exporter interface {
	Name() string
	Export(g *graph.Graph) ([]CandidateRow, error)
}

// JobLock is a best-effort distributed mutex for scheduled jobs.
type JobLock interface {
	// Acquire returns ok=false without error when another holder owns name.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}
