package domain

// Common indicator type names produced by the bundled exporters.
const (
	TypeIPv4   = "IPv4"
	TypeIPv6   = "IPv6"
	TypeFQDN   = "FQDN"
	TypeURL    = "URL"
	TypeEmail  = "EmailAddress"
	TypeMD5    = "MD5"
	TypeSHA1   = "SHA1"
	TypeSHA256 = "SHA256"
	TypeSHA512 = "SHA512"
)

// NamedID is a row of one of the small name registries (indicator types,
// subtypes, tag names, entity types).
type NamedID struct {
	ID   int64
	Name string
}

// Indicator is a unique (type, subtype, value) observable. SubtypeID always
// points at a registry row; the empty subtype is a row too.
type Indicator struct {
	ID        int64
	TypeID    int64
	SubtypeID int64
	Value     string
	// SyncedTags is the last observed union of external fact tags,
	// serialised as a sorted comma-separated list.
	SyncedTags string
	// TagCache is the sorted "context:name" list of attached actionable tags.
	TagCache string
}

func (i Indicator) Target() Target { return Target{Kind: TargetIndicator, ID: i.ID} }

// IndicatorView is the read model served by the API and the feed exporters.
type IndicatorView struct {
	Indicator
	Type    string
	Subtype string
	Status  *Status
}

// TargetKind names the kind of object a status link or tag points at.
type TargetKind string

const (
	TargetIndicator  TargetKind = "indicator"
	TargetImportInfo TargetKind = "import_info"
)

// Target references a taggable, status-bearing object.
type Target struct {
	Kind TargetKind
	ID   int64
}
