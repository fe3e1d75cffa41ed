package tagging

import (
	"regexp"

	"github.com/hive-corporation/actionables/internal/core/domain"
)

// ContextPattern recognises context names of one type.
type ContextPattern struct {
	Regex *regexp.Regexp
	Type  domain.ContextType
}

// ContextMatcher decides which plain tags name a context.
type ContextMatcher struct {
	patterns []ContextPattern
}

func NewContextMatcher(patterns ...ContextPattern) *ContextMatcher {
	return &ContextMatcher{patterns: patterns}
}

// Match reports whether tag is a context name and which type it has.
// The first matching pattern wins.
func (m *ContextMatcher) Match(tag string) (domain.ContextType, bool) {
	if m == nil {
		return domain.ContextUnknown, false
	}
	for _, p := range m.patterns {
		if p.Regex.MatchString(tag) {
			return p.Type, true
		}
	}
	return domain.ContextUnknown, false
}

func (m *ContextMatcher) IsContext(tag string) bool {
	_, ok := m.Match(tag)
	return ok
}

// TypeOf classifies a context created on demand. Names matching no
// pattern are treated as investigations.
func (m *ContextMatcher) TypeOf(name string) domain.ContextType {
	if t, ok := m.Match(name); ok {
		return t
	}
	return domain.ContextInvestigation
}

// Filter returns the members of tags that are context names.
func (m *ContextMatcher) Filter(tags domain.Set) domain.Set {
	out := domain.Set{}
	for t := range tags {
		if m.IsContext(t) {
			out[t] = struct{}{}
		}
	}
	return out
}
