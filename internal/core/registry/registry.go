// Package registry keeps read-through caches from natural keys (type
// names, tag names, context names, tag pairs) to persistent identifiers.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hive-corporation/actionables/internal/core/ports"
	"go.uber.org/zap"
)

// Fields is a natural key. Its cache key does not depend on field order.
type Fields map[string]string

// Key joins the fields sorted by field name.
func (f Fields) Key() string {
	names := make([]string, 0, len(f))
	for n := range f {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(f[n])
	}
	return b.String()
}

// Entry is one cached row.
type Entry struct {
	Fields Fields
	ID     int64
}

// LoadFunc loads the whole table.
type LoadFunc func(ctx context.Context, repo ports.Repository) ([]Entry, error)

// CreateFunc looks up or creates a single row.
type CreateFunc func(ctx context.Context, repo ports.Repository, f Fields) (int64, bool, error)

// Registry caches one table. The first miss loads the whole table.
type Registry struct {
	name   string
	load   LoadFunc
	create CreateFunc
	log    *zap.Logger

	mu     sync.RWMutex
	loaded bool
	ids    map[string]int64
}

func New(name string, load LoadFunc, create CreateFunc, log *zap.Logger) *Registry {
	return &Registry{
		name:   name,
		load:   load,
		create: create,
		log:    log.With(zap.String("registry", name)),
		ids:    map[string]int64{},
	}
}

// Lookup returns the cached id without creating anything.
func (r *Registry) Lookup(ctx context.Context, repo ports.Repository, f Fields) (int64, bool, error) {
	key := f.Key()
	if id, ok := r.cached(key); ok {
		return id, true, nil
	}
	if err := r.ensureLoaded(ctx, repo); err != nil {
		return 0, false, err
	}
	id, ok := r.cached(key)
	return id, ok, nil
}

// GetOrCreate returns the id for f, creating the row when needed.
func (r *Registry) GetOrCreate(ctx context.Context, repo ports.Repository, f Fields) (int64, bool, error) {
	id, ok, err := r.Lookup(ctx, repo, f)
	if err != nil || ok {
		return id, false, err
	}

	id, created, err := r.create(ctx, repo, f)
	if errors.Is(err, ports.ErrConflict) {
		// someone else created it first
		r.log.Error("lost create race, reloading", zap.String("key", f.Key()))
		r.Invalidate()
		id, created, err = r.create(ctx, repo, f)
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s get or create: %w", r.name, err)
	}

	r.mu.Lock()
	r.ids[f.Key()] = id
	r.mu.Unlock()
	return id, created, nil
}

// Invalidate drops the cache; the next miss reloads the table.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.ids = map[string]int64{}
	r.mu.Unlock()
}

// Len is the number of cached keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

func (r *Registry) cached(key string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[key]
	return id, ok
}

func (r *Registry) ensureLoaded(ctx context.Context, repo ports.Repository) error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	entries, err := r.load(ctx, repo)
	if err != nil {
		return fmt.Errorf("%s load: %w", r.name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.ids[e.Fields.Key()] = e.ID
	}
	r.loaded = true
	r.log.Debug("registry loaded", zap.Int("rows", len(entries)))
	return nil
}
