package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
)

// MemoryStore is an in-process ports.Store. Transactions are serialised
// and work on a copy of the state that replaces it on commit.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState(), now: time.Now}
}

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memRepo{s: work, now: m.now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) View(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &memRepo{s: m.state, now: m.now})
}

var (
	_ ports.Store      = (*MemoryStore)(nil)
	_ ports.Repository = (*memRepo)(nil)
)

type attachKey struct {
	TagID  int64
	Target domain.Target
}

type memState struct {
	nextID int64

	names      map[ports.NameTable]map[int64]string
	indicators map[int64]domain.Indicator
	sources    map[int64]domain.Source
	entities   map[int64]domain.StixEntity
	statuses   map[int64]domain.Status
	actions    map[int64]domain.Action
	links      map[int64]domain.StatusLink
	contexts   map[int64]domain.Context
	tags       map[int64]domain.ActionableTag
	attached   map[attachKey]struct{}
	history    []domain.TagHistoryEntry
	imports    map[int64]domain.ImportInfo
}

func newMemState() *memState {
	return &memState{
		names: map[ports.NameTable]map[int64]string{
			ports.IndicatorTypes:    {},
			ports.IndicatorSubtypes: {},
			ports.TagNames:          {},
			ports.EntityTypes:       {},
		},
		indicators: map[int64]domain.Indicator{},
		sources:    map[int64]domain.Source{},
		entities:   map[int64]domain.StixEntity{},
		statuses:   map[int64]domain.Status{},
		actions:    map[int64]domain.Action{},
		links:      map[int64]domain.StatusLink{},
		contexts:   map[int64]domain.Context{},
		tags:       map[int64]domain.ActionableTag{},
		attached:   map[attachKey]struct{}{},
		imports:    map[int64]domain.ImportInfo{},
	}
}

// clone copies the state. Slices inside rows are never mutated in place,
// so sharing them between copies is safe.
func (s *memState) clone() *memState {
	c := newMemState()
	c.nextID = s.nextID
	for t, rows := range s.names {
		for id, n := range rows {
			c.names[t][id] = n
		}
	}
	copyMap(c.indicators, s.indicators)
	copyMap(c.sources, s.sources)
	copyMap(c.entities, s.entities)
	copyMap(c.statuses, s.statuses)
	copyMap(c.actions, s.actions)
	copyMap(c.links, s.links)
	copyMap(c.contexts, s.contexts)
	copyMap(c.tags, s.tags)
	copyMap(c.attached, s.attached)
	copyMap(c.imports, s.imports)
	c.history = append([]domain.TagHistoryEntry(nil), s.history...)
	return c
}

func copyMap[K comparable, V any](dst, src map[K]V) {
	for k, v := range src {
		dst[k] = v
	}
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func sortedKeys[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type memRepo struct {
	s   *memState
	now func() time.Time
}

// names

func (r *memRepo) LoadNames(ctx context.Context, table ports.NameTable) ([]domain.NamedID, error) {
	rows := r.s.names[table]
	out := make([]domain.NamedID, 0, len(rows))
	for _, id := range sortedKeys(rows) {
		out = append(out, domain.NamedID{ID: id, Name: rows[id]})
	}
	return out, nil
}

func (r *memRepo) nameID(table ports.NameTable, name string) (int64, bool) {
	for id, n := range r.s.names[table] {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

func (r *memRepo) GetOrCreateName(ctx context.Context, table ports.NameTable, name string) (int64, bool, error) {
	if id, ok := r.nameID(table, name); ok {
		return id, false, nil
	}
	id := r.s.id()
	r.s.names[table][id] = name
	return id, true, nil
}

func (r *memRepo) RenameName(ctx context.Context, table ports.NameTable, from, to string) error {
	if _, ok := r.nameID(table, to); ok {
		return ports.ErrConflict
	}
	id, ok := r.nameID(table, from)
	if !ok {
		return ports.ErrNotFound
	}
	r.s.names[table][id] = to
	return nil
}

func (r *memRepo) DeleteNames(ctx context.Context, table ports.NameTable, names []string) (int, error) {
	n := 0
	for _, name := range names {
		id, ok := r.nameID(table, name)
		if !ok {
			continue
		}
		delete(r.s.names[table], id)
		n++
		if table == ports.TagNames {
			var tagIDs []int64
			for tid, t := range r.s.tags {
				if t.TagNameID == id {
					tagIDs = append(tagIDs, tid)
				}
			}
			r.deleteTags(tagIDs)
		}
	}
	return n, nil
}

// indicators

func (r *memRepo) GetOrCreateIndicator(ctx context.Context, typeID, subtypeID int64, value string) (domain.Indicator, bool, error) {
	for _, ind := range r.s.indicators {
		if ind.TypeID == typeID && ind.SubtypeID == subtypeID && ind.Value == value {
			return ind, false, nil
		}
	}
	ind := domain.Indicator{ID: r.s.id(), TypeID: typeID, SubtypeID: subtypeID, Value: value}
	r.s.indicators[ind.ID] = ind
	return ind, true, nil
}

func (r *memRepo) GetIndicator(ctx context.Context, id int64) (domain.Indicator, error) {
	ind, ok := r.s.indicators[id]
	if !ok {
		return domain.Indicator{}, ports.ErrNotFound
	}
	return ind, nil
}

func (r *memRepo) IndicatorsByIDs(ctx context.Context, ids []int64) ([]domain.Indicator, error) {
	var out []domain.Indicator
	for _, id := range uniqueIDs(ids) {
		if ind, ok := r.s.indicators[id]; ok {
			out = append(out, ind)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateSyncedTags(ctx context.Context, id int64, tags string) error {
	ind, ok := r.s.indicators[id]
	if !ok {
		return ports.ErrNotFound
	}
	ind.SyncedTags = tags
	r.s.indicators[id] = ind
	return nil
}

func (r *memRepo) UpdateTagCache(ctx context.Context, id int64, cache string) error {
	ind, ok := r.s.indicators[id]
	if !ok {
		return ports.ErrNotFound
	}
	ind.TagCache = cache
	r.s.indicators[id] = ind
	return nil
}

func (r *memRepo) ListIndicators(ctx context.Context, q ports.IndicatorQuery) ([]domain.IndicatorView, int, error) {
	types := domain.NewSet(q.Types...)
	var views []domain.IndicatorView

	for _, id := range sortedKeys(r.s.indicators) {
		ind := r.s.indicators[id]
		v := domain.IndicatorView{
			Indicator: ind,
			Type:      r.s.names[ports.IndicatorTypes][ind.TypeID],
			Subtype:   r.s.names[ports.IndicatorSubtypes][ind.SubtypeID],
			Status:    r.activeStatus(ind.Target()),
		}
		if types.Len() > 0 && !types.Has(v.Type) {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(v.Value), strings.ToLower(q.Search)) {
			continue
		}
		if q.TagSearch != "" && !strings.Contains(v.TagCache, q.TagSearch) {
			continue
		}
		if q.ActiveOnly && (v.Status == nil || !v.Status.Active) {
			continue
		}
		if q.ExcludeFalsePositives && v.Status != nil && v.Status.FalsePositive {
			continue
		}
		views = append(views, v)
	}

	sortViews(views, q.SortBy, q.Descending)
	total := len(views)
	return page(views, q.Offset, q.Limit), total, nil
}

func (r *memRepo) activeStatus(t domain.Target) *domain.Status {
	var best *domain.StatusLink
	for _, l := range r.s.links {
		if l.Target != t || !l.Active {
			continue
		}
		if best == nil || l.Timestamp.After(best.Timestamp) || (l.Timestamp.Equal(best.Timestamp) && l.ID > best.ID) {
			cp := l
			best = &cp
		}
	}
	if best == nil {
		return nil
	}
	st := r.s.statuses[best.StatusID]
	return &st
}

func sortViews(views []domain.IndicatorView, by string, desc bool) {
	less := func(a, b domain.IndicatorView) bool { return a.ID < b.ID }
	switch by {
	case "value":
		less = func(a, b domain.IndicatorView) bool { return a.Value < b.Value }
	case "type":
		less = func(a, b domain.IndicatorView) bool {
			if a.Type != b.Type {
				return a.Type < b.Type
			}
			return a.Value < b.Value
		}
	case "tags":
		less = func(a, b domain.IndicatorView) bool { return a.TagCache < b.TagCache }
	}
	sort.SliceStable(views, func(i, j int) bool {
		if desc {
			return less(views[j], views[i])
		}
		return less(views[i], views[j])
	})
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (r *memRepo) LockIndicator(ctx context.Context, id int64) error {
	// transactions are already serialised
	return nil
}

// sources

func (r *memRepo) UpsertSource(ctx context.Context, s domain.Source) (domain.Source, bool, error) {
	key := s.Key()
	for id, existing := range r.s.sources {
		if existing.Key() != key {
			continue
		}
		existing.ReportRevisionID = s.ReportRevisionID
		existing.IObjectID = s.IObjectID
		existing.TLP = s.TLP
		existing.Origin = s.Origin
		existing.Processing = s.Processing
		existing.Outdated = false
		r.s.sources[id] = existing
		return existing, false, nil
	}

	s.ID = r.s.id()
	s.Outdated = false
	s.RelatedEntityIDs = nil
	if s.Timestamp.IsZero() {
		s.Timestamp = r.now()
	}
	r.s.sources[s.ID] = s
	return s, true, nil
}

func (r *memRepo) SetSourceEntities(ctx context.Context, sourceID int64, entityIDs []int64) error {
	s, ok := r.s.sources[sourceID]
	if !ok {
		return ports.ErrNotFound
	}
	s.RelatedEntityIDs = uniqueIDs(entityIDs)
	r.s.sources[sourceID] = s
	return nil
}

func (r *memRepo) filterSources(keep func(domain.Source) bool) []domain.Source {
	var out []domain.Source
	for _, id := range sortedKeys(r.s.sources) {
		if s := r.s.sources[id]; keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func (r *memRepo) SourcesByFacts(ctx context.Context, factIDs []int64) ([]domain.Source, error) {
	facts := idSet(factIDs)
	return r.filterSources(func(s domain.Source) bool { return facts[s.FactID] }), nil
}

func (r *memRepo) SourcesForTargets(ctx context.Context, targets []domain.Target) ([]domain.Source, error) {
	want := map[domain.Target]bool{}
	for _, t := range targets {
		want[t] = true
	}
	return r.filterSources(func(s domain.Source) bool { return want[s.Owner] }), nil
}

func (r *memRepo) CurrentSources(ctx context.Context, identifierIDs []int64) ([]domain.Source, error) {
	ids := idSet(identifierIDs)
	return r.filterSources(func(s domain.Source) bool {
		if s.Outdated {
			return false
		}
		return identifierIDs == nil || ids[s.ReportIdentifierID]
	}), nil
}

func (r *memRepo) MarkSourcesOutdated(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		s, ok := r.s.sources[id]
		if !ok {
			continue
		}
		s.Outdated = true
		r.s.sources[id] = s
	}
	return nil
}

// entities

func (r *memRepo) UpsertEntity(ctx context.Context, e domain.StixEntity) (domain.StixEntity, error) {
	for id, existing := range r.s.entities {
		if existing.IdentifierID == e.IdentifierID && existing.NonIObjectID == e.NonIObjectID {
			existing.EntityTypeID = e.EntityTypeID
			existing.EntityType = e.EntityType
			existing.Essence = e.Essence
			r.s.entities[id] = existing
			return existing, nil
		}
	}
	e.ID = r.s.id()
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	r.s.entities[e.ID] = e
	return e, nil
}

func (r *memRepo) EntitiesByIDs(ctx context.Context, ids []int64) ([]domain.StixEntity, error) {
	var out []domain.StixEntity
	for _, id := range uniqueIDs(ids) {
		if e, ok := r.s.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// statuses

func (r *memRepo) GetOrCreateStatus(ctx context.Context, f domain.StatusFields) (domain.Status, bool, error) {
	for _, id := range sortedKeys(r.s.statuses) {
		if st := r.s.statuses[id]; st.StatusFields == f {
			return st, false, nil
		}
	}
	st := domain.Status{ID: r.s.id(), StatusFields: f}
	r.s.statuses[st.ID] = st
	return st, true, nil
}

func (r *memRepo) GetStatus(ctx context.Context, id int64) (domain.Status, error) {
	st, ok := r.s.statuses[id]
	if !ok {
		return domain.Status{}, ports.ErrNotFound
	}
	return st, nil
}

func (r *memRepo) CreateAction(ctx context.Context, a domain.Action) (domain.Action, error) {
	a.ID = r.s.id()
	if a.Timestamp.IsZero() {
		a.Timestamp = r.now()
	}
	r.s.actions[a.ID] = a
	return a, nil
}

func (r *memRepo) ActiveStatusLinks(ctx context.Context, t domain.Target) ([]domain.StatusLink, error) {
	var out []domain.StatusLink
	for _, id := range sortedKeys(r.s.links) {
		if l := r.s.links[id]; l.Target == t && l.Active {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memRepo) DeactivateStatusLinks(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if l, ok := r.s.links[id]; ok {
			l.Active = false
			r.s.links[id] = l
		}
	}
	return nil
}

func (r *memRepo) InsertStatusLink(ctx context.Context, l domain.StatusLink) (domain.StatusLink, error) {
	l.ID = r.s.id()
	if l.Timestamp.IsZero() {
		l.Timestamp = r.now()
	}
	r.s.links[l.ID] = l
	return l, nil
}

func (r *memRepo) StatusHistory(ctx context.Context, t domain.Target) ([]domain.StatusLink, error) {
	var out []domain.StatusLink
	for _, id := range sortedKeys(r.s.links) {
		if l := r.s.links[id]; l.Target == t {
			out = append(out, l)
		}
	}
	return out, nil
}

// contexts and tags

func (r *memRepo) LoadContexts(ctx context.Context) ([]domain.Context, error) {
	out := make([]domain.Context, 0, len(r.s.contexts))
	for _, id := range sortedKeys(r.s.contexts) {
		out = append(out, r.s.contexts[id])
	}
	return out, nil
}

func (r *memRepo) contextByName(name string) (domain.Context, bool) {
	for _, c := range r.s.contexts {
		if c.Name == name {
			return c, true
		}
	}
	return domain.Context{}, false
}

func (r *memRepo) GetOrCreateContext(ctx context.Context, c domain.Context) (domain.Context, bool, error) {
	if existing, ok := r.contextByName(c.Name); ok {
		return existing, false, nil
	}
	c.ID = r.s.id()
	if c.Timestamp.IsZero() {
		c.Timestamp = r.now()
	}
	r.s.contexts[c.ID] = c
	return c, true, nil
}

func (r *memRepo) GetContext(ctx context.Context, name string) (domain.Context, error) {
	c, ok := r.contextByName(name)
	if !ok {
		return domain.Context{}, ports.ErrNotFound
	}
	return c, nil
}

func (r *memRepo) UpdateContext(ctx context.Context, c domain.Context) error {
	if _, ok := r.s.contexts[c.ID]; !ok {
		return ports.ErrNotFound
	}
	if other, ok := r.contextByName(c.Name); ok && other.ID != c.ID {
		return ports.ErrConflict
	}
	r.s.contexts[c.ID] = c
	return nil
}

func (r *memRepo) DeleteContexts(ctx context.Context, names []string) (int, error) {
	n := 0
	for _, name := range names {
		c, ok := r.contextByName(name)
		if !ok {
			continue
		}
		var tagIDs []int64
		for tid, t := range r.s.tags {
			if t.ContextID == c.ID {
				tagIDs = append(tagIDs, tid)
			}
		}
		r.deleteTags(tagIDs)
		delete(r.s.contexts, c.ID)
		n++
	}
	return n, nil
}

// deleteTags removes actionable tags with their attachments and history.
func (r *memRepo) deleteTags(tagIDs []int64) {
	gone := idSet(tagIDs)
	for _, id := range tagIDs {
		delete(r.s.tags, id)
	}
	for k := range r.s.attached {
		if gone[k.TagID] {
			delete(r.s.attached, k)
		}
	}
	kept := r.s.history[:0:0]
	for _, h := range r.s.history {
		if !gone[h.TagID] {
			kept = append(kept, h)
		}
	}
	r.s.history = kept
}

func (r *memRepo) LoadActionableTags(ctx context.Context) ([]domain.ActionableTag, error) {
	out := make([]domain.ActionableTag, 0, len(r.s.tags))
	for _, id := range sortedKeys(r.s.tags) {
		out = append(out, r.s.tags[id])
	}
	return out, nil
}

func (r *memRepo) GetOrCreateActionableTag(ctx context.Context, contextID, tagNameID int64) (domain.ActionableTag, bool, error) {
	for _, t := range r.s.tags {
		if t.ContextID == contextID && t.TagNameID == tagNameID {
			return t, false, nil
		}
	}
	if _, ok := r.s.contexts[contextID]; !ok {
		return domain.ActionableTag{}, false, ports.ErrNotFound
	}
	t := domain.ActionableTag{ID: r.s.id(), ContextID: contextID, TagNameID: tagNameID}
	r.s.tags[t.ID] = t
	return t, true, nil
}

func (r *memRepo) AttachTag(ctx context.Context, tagID int64, t domain.Target) (bool, error) {
	k := attachKey{TagID: tagID, Target: t}
	if _, ok := r.s.attached[k]; ok {
		return false, nil
	}
	r.s.attached[k] = struct{}{}
	return true, nil
}

func (r *memRepo) DetachTag(ctx context.Context, tagID int64, t domain.Target) (bool, error) {
	k := attachKey{TagID: tagID, Target: t}
	if _, ok := r.s.attached[k]; !ok {
		return false, nil
	}
	delete(r.s.attached, k)
	return true, nil
}

func (r *memRepo) tagRef(tagID int64) domain.TagRef {
	t := r.s.tags[tagID]
	return domain.TagRef{
		Context: r.s.contexts[t.ContextID].Name,
		Name:    r.s.names[ports.TagNames][t.TagNameID],
	}
}

func (r *memRepo) AttachedTags(ctx context.Context, targets []domain.Target) ([]domain.AttachedTag, error) {
	want := map[domain.Target]bool{}
	for _, t := range targets {
		want[t] = true
	}
	var out []domain.AttachedTag
	for k := range r.s.attached {
		if want[k.Target] {
			out = append(out, domain.AttachedTag{TagID: k.TagID, Target: k.Target, TagRef: r.tagRef(k.TagID)})
		}
	}
	sortAttached(out)
	return out, nil
}

func (r *memRepo) TargetsWithTags(ctx context.Context, names []string) ([]domain.Target, error) {
	want := domain.NewSet(names...)
	seen := map[domain.Target]bool{}
	var out []domain.Target
	for k := range r.s.attached {
		ref := r.tagRef(k.TagID)
		if (want.Has(ref.Context) || want.Has(ref.Name)) && !seen[k.Target] {
			seen[k.Target] = true
			out = append(out, k.Target)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memRepo) AppendTagHistory(ctx context.Context, entries []domain.TagHistoryEntry) error {
	for _, e := range entries {
		e.ID = r.s.id()
		if e.Timestamp.IsZero() {
			e.Timestamp = r.now()
		}
		e.Tag = domain.TagRef{}
		r.s.history = append(r.s.history, e)
	}
	return nil
}

func (r *memRepo) TagHistory(ctx context.Context, contextName string) ([]domain.TagHistoryEntry, error) {
	var out []domain.TagHistoryEntry
	for _, h := range r.s.history {
		ref := r.tagRef(h.TagID)
		if ref.Context != contextName {
			continue
		}
		h.Tag = ref
		out = append(out, h)
	}
	return out, nil
}

// import infos

func (r *memRepo) CreateImportInfo(ctx context.Context, info domain.ImportInfo) (domain.ImportInfo, error) {
	info.ID = r.s.id()
	if info.Timestamp.IsZero() {
		info.Timestamp = r.now()
	}
	r.s.imports[info.ID] = info
	return info, nil
}

func (r *memRepo) GetImportInfo(ctx context.Context, id int64) (domain.ImportInfo, error) {
	info, ok := r.s.imports[id]
	if !ok {
		return domain.ImportInfo{}, ports.ErrNotFound
	}
	return info, nil
}

func sortAttached(tags []domain.AttachedTag) {
	sort.Slice(tags, func(i, j int) bool {
		a, b := tags[i], tags[j]
		if a.Target.Kind != b.Target.Kind {
			return a.Target.Kind < b.Target.Kind
		}
		if a.Target.ID != b.Target.ID {
			return a.Target.ID < b.Target.ID
		}
		return a.TagRef.String() < b.TagRef.String()
	})
}

func idSet(ids []int64) map[int64]bool {
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// uniqueIDs returns the distinct ids in ascending order.
func uniqueIDs(ids []int64) []int64 {
	seen := idSet(ids)
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
