package registry

import (
	"context"
	"strconv"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"go.uber.org/zap"
)

// ContextTypeFunc derives the type of a context created on demand.
type ContextTypeFunc func(name string) domain.ContextType

// Registries bundles the caches an import or tagging run works with.
// It is owned by whoever drives those runs and passed down explicitly.
type Registries struct {
	Types          *Registry
	Subtypes       *Registry
	TagNames       *Registry
	EntityTypes    *Registry
	Contexts       *Registry
	ActionableTags *Registry
}

func NewRegistries(classify ContextTypeFunc, log *zap.Logger) *Registries {
	if classify == nil {
		classify = func(string) domain.ContextType { return domain.ContextInvestigation }
	}
	return &Registries{
		Types:       nameRegistry(ports.IndicatorTypes, log),
		Subtypes:    nameRegistry(ports.IndicatorSubtypes, log),
		TagNames:    nameRegistry(ports.TagNames, log),
		EntityTypes: nameRegistry(ports.EntityTypes, log),
		Contexts: New("contexts",
			func(ctx context.Context, repo ports.Repository) ([]Entry, error) {
				rows, err := repo.LoadContexts(ctx)
				if err != nil {
					return nil, err
				}
				out := make([]Entry, 0, len(rows))
				for _, c := range rows {
					out = append(out, Entry{Fields: Fields{"name": c.Name}, ID: c.ID})
				}
				return out, nil
			},
			func(ctx context.Context, repo ports.Repository, f Fields) (int64, bool, error) {
				c, created, err := repo.GetOrCreateContext(ctx, domain.Context{
					Name: f["name"],
					Type: classify(f["name"]),
				})
				return c.ID, created, err
			},
			log),
		ActionableTags: New("actionable_tags",
			func(ctx context.Context, repo ports.Repository) ([]Entry, error) {
				rows, err := repo.LoadActionableTags(ctx)
				if err != nil {
					return nil, err
				}
				out := make([]Entry, 0, len(rows))
				for _, t := range rows {
					out = append(out, Entry{Fields: tagFields(t.ContextID, t.TagNameID), ID: t.ID})
				}
				return out, nil
			},
			func(ctx context.Context, repo ports.Repository, f Fields) (int64, bool, error) {
				cid, _ := strconv.ParseInt(f["context_id"], 10, 64)
				nid, _ := strconv.ParseInt(f["tag_name_id"], 10, 64)
				t, created, err := repo.GetOrCreateActionableTag(ctx, cid, nid)
				return t.ID, created, err
			},
			log),
	}
}

func nameRegistry(table ports.NameTable, log *zap.Logger) *Registry {
	return New(string(table),
		func(ctx context.Context, repo ports.Repository) ([]Entry, error) {
			rows, err := repo.LoadNames(ctx, table)
			if err != nil {
				return nil, err
			}
			out := make([]Entry, 0, len(rows))
			for _, r := range rows {
				out = append(out, Entry{Fields: Fields{"name": r.Name}, ID: r.ID})
			}
			return out, nil
		},
		func(ctx context.Context, repo ports.Repository, f Fields) (int64, bool, error) {
			return repo.GetOrCreateName(ctx, table, f["name"])
		},
		log)
}

func tagFields(contextID, tagNameID int64) Fields {
	return Fields{
		"context_id":  strconv.FormatInt(contextID, 10),
		"tag_name_id": strconv.FormatInt(tagNameID, 10),
	}
}

// InvalidateAll drops every cache, e.g. after a rolled back transaction.
func (r *Registries) InvalidateAll() {
	for _, reg := range []*Registry{r.Types, r.Subtypes, r.TagNames, r.EntityTypes, r.Contexts, r.ActionableTags} {
		reg.Invalidate()
	}
}

// Guard wraps store so that a failed transaction drops every cache. Ids
// created inside a rolled back transaction must not be handed out again.
func (r *Registries) Guard(store ports.Store) ports.Store {
	return &guardedStore{Store: store, reg: r}
}

type guardedStore struct {
	ports.Store
	reg *Registries
}

func (g *guardedStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	err := g.Store.WithinTx(ctx, fn)
	if err != nil {
		g.reg.InvalidateAll()
	}
	return err
}

func (r *Registries) TypeID(ctx context.Context, repo ports.Repository, name string) (int64, error) {
	id, _, err := r.Types.GetOrCreate(ctx, repo, Fields{"name": name})
	return id, err
}

// SubtypeID resolves a subtype. The empty subtype is a regular row.
func (r *Registries) SubtypeID(ctx context.Context, repo ports.Repository, name string) (int64, error) {
	id, _, err := r.Subtypes.GetOrCreate(ctx, repo, Fields{"name": name})
	return id, err
}

func (r *Registries) EntityTypeID(ctx context.Context, repo ports.Repository, name string) (int64, error) {
	id, _, err := r.EntityTypes.GetOrCreate(ctx, repo, Fields{"name": name})
	return id, err
}

func (r *Registries) ContextID(ctx context.Context, repo ports.Repository, name string) (int64, error) {
	id, _, err := r.Contexts.GetOrCreate(ctx, repo, Fields{"name": name})
	return id, err
}

// ActionableTagID resolves or creates the tag for a (context, name) pair.
func (r *Registries) ActionableTagID(ctx context.Context, repo ports.Repository, ref domain.TagRef) (int64, error) {
	cid, err := r.ContextID(ctx, repo, ref.Context)
	if err != nil {
		return 0, err
	}
	nid, _, err := r.TagNames.GetOrCreate(ctx, repo, Fields{"name": ref.Name})
	if err != nil {
		return 0, err
	}
	id, _, err := r.ActionableTags.GetOrCreate(ctx, repo, tagFields(cid, nid))
	return id, err
}

// LookupActionableTag finds an existing tag without creating anything.
func (r *Registries) LookupActionableTag(ctx context.Context, repo ports.Repository, ref domain.TagRef) (int64, bool, error) {
	cid, ok, err := r.Contexts.Lookup(ctx, repo, Fields{"name": ref.Context})
	if err != nil || !ok {
		return 0, false, err
	}
	nid, ok, err := r.TagNames.Lookup(ctx, repo, Fields{"name": ref.Name})
	if err != nil || !ok {
		return 0, false, err
	}
	return r.ActionableTags.Lookup(ctx, repo, tagFields(cid, nid))
}
