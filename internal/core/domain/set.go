package domain

import (
	"sort"
	"strings"
)

const (
	// TagSeparator joins tag names in the synced_tags and tag cache columns.
	TagSeparator = ","
	// PhaseSeparator joins kill chain phase names inside a status snapshot.
	PhaseSeparator = ";"
)

// Set is an unordered string set. Its serialised form is always the
// byte-wise sorted join, so equal sets serialise identically.
type Set map[string]struct{}

func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		s.Add(it)
	}
	return s
}

// ParseSet splits a serialised set, trimming items and dropping empties.
func ParseSet(serialized, sep string) Set {
	s := Set{}
	if serialized == "" {
		return s
	}
	for _, it := range strings.Split(serialized, sep) {
		s.Add(it)
	}
	return s
}

// Add inserts a trimmed, non-empty item.
func (s Set) Add(item string) {
	item = strings.TrimSpace(item)
	if item == "" {
		return
	}
	s[item] = struct{}{}
}

func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

func (s Set) Len() int { return len(s) }

// Minus returns the items of s that are not in o.
func (s Set) Minus(o Set) Set {
	out := Set{}
	for k := range s {
		if !o.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

func (s Set) Union(o Set) Set {
	out := make(Set, len(s)+len(o))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range o {
		out[k] = struct{}{}
	}
	return out
}

func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if !o.Has(k) {
			return false
		}
	}
	return true
}

func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s Set) Join(sep string) string {
	return strings.Join(s.Sorted(), sep)
}
