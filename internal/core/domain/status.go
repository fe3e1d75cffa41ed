package domain

import "time"

// StatusFields is the value part of a status snapshot. Two snapshots with
// equal fields are the same row.
type StatusFields struct {
	MostPermissiveTLP  TLP
	MostRestrictiveTLP TLP
	MaxConfidence      Confidence
	BestProcessing     Processing
	KillChainPhases    string
	Active             bool
	FalsePositive      bool
	Priority           Priority
}

// InitialStatus is what a target starts from before any source is seen.
func InitialStatus() StatusFields {
	return StatusFields{Active: true, Priority: PriorityUncertain}
}

func (f StatusFields) Phases() Set { return ParseSet(f.KillChainPhases, PhaseSeparator) }

type Status struct {
	ID int64
	StatusFields
}

// Action is the audit envelope for a batch of status transitions.
type Action struct {
	ID        int64
	User      string
	Comment   string
	Timestamp time.Time
}

// StatusLink attaches a status snapshot to a target. At most one link per
// target is active.
type StatusLink struct {
	ID        int64
	ActionID  int64
	StatusID  int64
	Target    Target
	Active    bool
	Timestamp time.Time
}
