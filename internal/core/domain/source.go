package domain

import "time"

// Source records one occurrence of a target inside one report revision.
type Source struct {
	ID    int64
	Owner Target

	FactID             int64
	FactValueID        int64
	IObjectID          int64
	ReportRevisionID   int64
	ReportIdentifierID int64

	TLP        TLP
	Origin     Origin
	Processing Processing

	RelatedEntityIDs []int64
	Outdated         bool
	Timestamp        time.Time
}

// SourceKey identifies a source row across report revisions: a new
// revision of the same report updates the existing row in place.
type SourceKey struct {
	FactID             int64
	FactValueID        int64
	ReportIdentifierID int64
	Owner              Target
}

func (s Source) Key() SourceKey {
	return SourceKey{
		FactID:             s.FactID,
		FactValueID:        s.FactValueID,
		ReportIdentifierID: s.ReportIdentifierID,
		Owner:              s.Owner,
	}
}

// Entity kinds whose essence is extracted during import.
const (
	EntityIndicator   = "Indicator"
	EntityThreatActor = "ThreatActor"
	EntityCampaign    = "Campaign"
)

// Essence is the JSON summary kept for a related STIX entity.
type Essence struct {
	Title           string   `json:"title,omitempty"`
	Confidence      string   `json:"confidence,omitempty"`
	KillChainPhases []string `json:"kill_chain_phases,omitempty"`
	Names           []string `json:"names,omitempty"`
}

// StixEntity is a related higher-level object (indicator, threat actor,
// campaign) linked to sources. IdentifierID is set for entities that live
// in the fact graph; NonIObjectID for anything referenced by string id.
type StixEntity struct {
	ID           int64
	IdentifierID int64
	NonIObjectID string
	EntityTypeID int64
	EntityType   string
	Essence      Essence
	Timestamp    time.Time
}
