package ports

import (
	"context"
	"errors"

	"github.com/hive-corporation/actionables/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert lost a uniqueness race.
	ErrConflict = errors.New("conflict")
)

// Store gives access to the actionables repository. WithinTx runs fn in
// one transaction: if fn returns an error nothing it wrote is kept.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
	View(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// Repository is everything the core reads and writes in the actionables schema.
type Repository interface {
	NameRepository
	IndicatorRepository
	SourceRepository
	EntityRepository
	StatusRepository
	TagRepository
	ImportInfoRepository
}

// NameTable selects one of the small name registries.
type NameTable string

const (
	IndicatorTypes    NameTable = "indicator_types"
	IndicatorSubtypes NameTable = "indicator_subtypes"
	TagNames          NameTable = "tag_names"
	EntityTypes       NameTable = "entity_types"
)

type NameRepository interface {
	LoadNames(ctx context.Context, table NameTable) ([]domain.NamedID, error)
	GetOrCreateName(ctx context.Context, table NameTable, name string) (id int64, created bool, err error)
	RenameName(ctx context.Context, table NameTable, from, to string) error
	DeleteNames(ctx context.Context, table NameTable, names []string) (int, error)
}

// IndicatorQuery filters the indicator listing.
type IndicatorQuery struct {
	Types      []string
	Search     string
	TagSearch  string
	ActiveOnly bool
	// ExcludeFalsePositives drops indicators whose active status is flagged.
	ExcludeFalsePositives bool
	SortBy                string
	Descending            bool
	Limit                 int
	Offset                int
}

type IndicatorRepository interface {
	GetOrCreateIndicator(ctx context.Context, typeID, subtypeID int64, value string) (domain.Indicator, bool, error)
	GetIndicator(ctx context.Context, id int64) (domain.Indicator, error)
	IndicatorsByIDs(ctx context.Context, ids []int64) ([]domain.Indicator, error)
	UpdateSyncedTags(ctx context.Context, id int64, tags string) error
	UpdateTagCache(ctx context.Context, id int64, cache string) error
	ListIndicators(ctx context.Context, q IndicatorQuery) ([]domain.IndicatorView, int, error)
	// LockIndicator serialises status and tag updates for one indicator
	// until the surrounding transaction ends.
	LockIndicator(ctx context.Context, id int64) error
}

type SourceRepository interface {
	// UpsertSource inserts a source or, when its key exists, overwrites
	// the revision, object and classification and clears the outdated flag.
	UpsertSource(ctx context.Context, s domain.Source) (domain.Source, bool, error)
	SetSourceEntities(ctx context.Context, sourceID int64, entityIDs []int64) error
	SourcesByFacts(ctx context.Context, factIDs []int64) ([]domain.Source, error)
	SourcesForTargets(ctx context.Context, targets []domain.Target) ([]domain.Source, error)
	// CurrentSources lists non-outdated sources, optionally restricted to
	// report identifiers. A nil slice means all of them.
	CurrentSources(ctx context.Context, identifierIDs []int64) ([]domain.Source, error)
	MarkSourcesOutdated(ctx context.Context, ids []int64) error
}

type EntityRepository interface {
	UpsertEntity(ctx context.Context, e domain.StixEntity) (domain.StixEntity, error)
	EntitiesByIDs(ctx context.Context, ids []int64) ([]domain.StixEntity, error)
}

type StatusRepository interface {
	GetOrCreateStatus(ctx context.Context, f domain.StatusFields) (domain.Status, bool, error)
	GetStatus(ctx context.Context, id int64) (domain.Status, error)
	CreateAction(ctx context.Context, a domain.Action) (domain.Action, error)
	ActiveStatusLinks(ctx context.Context, t domain.Target) ([]domain.StatusLink, error)
	DeactivateStatusLinks(ctx context.Context, ids []int64) error
	InsertStatusLink(ctx context.Context, l domain.StatusLink) (domain.StatusLink, error)
	StatusHistory(ctx context.Context, t domain.Target) ([]domain.StatusLink, error)
}

type TagRepository interface {
	LoadContexts(ctx context.Context) ([]domain.Context, error)
	// GetOrCreateContext looks a context up by name and creates it from c
	// when it does not exist yet.
	GetOrCreateContext(ctx context.Context, c domain.Context) (domain.Context, bool, error)
	GetContext(ctx context.Context, name string) (domain.Context, error)
	UpdateContext(ctx context.Context, c domain.Context) error
	// DeleteContexts removes contexts with their tags, attachments and history.
	DeleteContexts(ctx context.Context, names []string) (int, error)

	LoadActionableTags(ctx context.Context) ([]domain.ActionableTag, error)
	GetOrCreateActionableTag(ctx context.Context, contextID, tagNameID int64) (domain.ActionableTag, bool, error)

	AttachTag(ctx context.Context, tagID int64, t domain.Target) (bool, error)
	DetachTag(ctx context.Context, tagID int64, t domain.Target) (bool, error)
	AttachedTags(ctx context.Context, targets []domain.Target) ([]domain.AttachedTag, error)
	// TargetsWithTags lists targets carrying a tag whose context or name is in names.
	TargetsWithTags(ctx context.Context, names []string) ([]domain.Target, error)

	AppendTagHistory(ctx context.Context, entries []domain.TagHistoryEntry) error
	TagHistory(ctx context.Context, contextName string) ([]domain.TagHistoryEntry, error)
}

type ImportInfoRepository interface {
	CreateImportInfo(ctx context.Context, info domain.ImportInfo) (domain.ImportInfo, error)
	GetImportInfo(ctx context.Context, id int64) (domain.ImportInfo, error)
}
