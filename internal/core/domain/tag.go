package domain

import (
	"strings"
	"time"
)

// Context groups actionable tags. Context names usually follow a naming
// pattern such as INVES-123 or IR-7.
type Context struct {
	ID                int64
	Name              string
	Type              ContextType
	Title             string
	Description       string
	RelatedIncidentID string
	Timestamp         time.Time
}

// ActionableTag is a (context, tag name) pair.
type ActionableTag struct {
	ID        int64
	ContextID int64
	TagNameID int64
}

// TagRef addresses an actionable tag by names.
type TagRef struct {
	Context string
	Name    string
}

func (r TagRef) String() string { return r.Context + ":" + r.Name }

// IsContextTag reports whether the tag is the one that defines its context.
func (r TagRef) IsContextTag() bool { return r.Name == r.Context }

// ParseTagRef parses "context:name". A bare name is its own context.
func ParseTagRef(s string) TagRef {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":"); i >= 0 {
		return TagRef{Context: s[:i], Name: s[i+1:]}
	}
	return TagRef{Context: s, Name: s}
}

// AttachedTag is an actionable tag as seen from a target.
type AttachedTag struct {
	TagID  int64
	Target Target
	TagRef
}

type TagHistoryEntry struct {
	ID        int64
	TagID     int64
	Target    Target
	Action    TagAction
	User      string
	Comment   string
	Timestamp time.Time
	// Tag is filled in by read queries.
	Tag TagRef
}

// FactTagEvent is an entry of the fact graph's own tag history.
type FactTagEvent struct {
	Tag       string
	Action    TagAction
	User      string
	Comment   string
	Timestamp time.Time
}

// ImportInfo describes a manual bulk import. It is a tag and status target
// in its own right.
type ImportType int16

const (
	ImportUnknown ImportType = 0
	ImportBulk    ImportType = 10
)

type ImportInfo struct {
	ID                 int64
	Type               ImportType
	User               string
	Name               string
	Description        string
	Comment            string
	ReportIdentifierID int64
	Timestamp          time.Time
}

func (i ImportInfo) Target() Target { return Target{Kind: TargetImportInfo, ID: i.ID} }
