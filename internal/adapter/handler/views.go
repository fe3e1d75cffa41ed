package handler

import (
	"time"

	"github.com/hive-corporation/actionables/internal/core/domain"
)

type bulkTagsRequest struct {
	Action      string   `json:"action"`
	Objects     []int64  `json:"objects"`
	Tags        []string `json:"tags"`
	CurrContext string   `json:"curr_context"`
	Comment     string   `json:"comment"`
	Kind        string   `json:"kind"`
}

type statusJSON struct {
	MostPermissiveTLP  string   `json:"most_permissive_tlp"`
	MostRestrictiveTLP string   `json:"most_restrictive_tlp"`
	MaxConfidence      string   `json:"max_confidence"`
	BestProcessing     string   `json:"best_processing"`
	KillChainPhases    []string `json:"kill_chain_phases"`
	Active             bool     `json:"active"`
	FalsePositive      bool     `json:"false_positive"`
	Priority           string   `json:"priority"`
}

type indicatorJSON struct {
	ID             int64       `json:"id"`
	Type           string      `json:"type"`
	Subtype        string      `json:"subtype,omitempty"`
	Value          string      `json:"value"`
	Tags           []string    `json:"tags"`
	ActionableTags []string    `json:"actionable_tags"`
	Status         *statusJSON `json:"status"`
}

type entityJSON struct {
	Type    string         `json:"type"`
	Essence domain.Essence `json:"essence"`
}

type sourceJSON struct {
	ID                 int64        `json:"id"`
	FactID             int64        `json:"fact_id"`
	IObjectID          int64        `json:"iobject_id"`
	ReportRevisionID   int64        `json:"report_revision_id"`
	ReportIdentifierID int64        `json:"report_identifier_id"`
	TLP                string       `json:"tlp"`
	Origin             string       `json:"origin"`
	Processing         string       `json:"processing"`
	Outdated           bool         `json:"outdated"`
	Timestamp          time.Time    `json:"timestamp"`
	Entities           []entityJSON `json:"entities"`
}

type statusLinkJSON struct {
	ID        int64       `json:"id"`
	ActionID  int64       `json:"action_id"`
	Active    bool        `json:"active"`
	Timestamp time.Time   `json:"timestamp"`
	Status    *statusJSON `json:"status"`
}

type tagHistoryJSON struct {
	Tag        string    `json:"tag"`
	TargetKind string    `json:"target_kind"`
	TargetID   int64     `json:"target_id"`
	Action     string    `json:"action"`
	User       string    `json:"user"`
	Comment    string    `json:"comment"`
	Timestamp  time.Time `json:"timestamp"`
}

func toStatusJSON(st *domain.Status) *statusJSON {
	if st == nil {
		return nil
	}
	return &statusJSON{
		MostPermissiveTLP:  st.MostPermissiveTLP.String(),
		MostRestrictiveTLP: st.MostRestrictiveTLP.String(),
		MaxConfidence:      st.MaxConfidence.String(),
		BestProcessing:     st.BestProcessing.String(),
		KillChainPhases:    st.Phases().Sorted(),
		Active:             st.Active,
		FalsePositive:      st.FalsePositive,
		Priority:           st.Priority.String(),
	}
}

func toIndicatorJSON(v domain.IndicatorView) indicatorJSON {
	return indicatorJSON{
		ID:             v.ID,
		Type:           v.Type,
		Subtype:        v.Subtype,
		Value:          v.Value,
		Tags:           domain.ParseSet(v.SyncedTags, domain.TagSeparator).Sorted(),
		ActionableTags: domain.ParseSet(v.TagCache, domain.TagSeparator).Sorted(),
		Status:         toStatusJSON(v.Status),
	}
}

func toSourceJSON(s domain.Source, entities map[int64]domain.StixEntity) sourceJSON {
	out := sourceJSON{
		ID:                 s.ID,
		FactID:             s.FactID,
		IObjectID:          s.IObjectID,
		ReportRevisionID:   s.ReportRevisionID,
		ReportIdentifierID: s.ReportIdentifierID,
		TLP:                s.TLP.String(),
		Origin:             s.Origin.String(),
		Processing:         s.Processing.String(),
		Outdated:           s.Outdated,
		Timestamp:          s.Timestamp,
		Entities:           []entityJSON{},
	}
	for _, id := range s.RelatedEntityIDs {
		if e, ok := entities[id]; ok {
			out.Entities = append(out.Entities, entityJSON{Type: e.EntityType, Essence: e.Essence})
		}
	}
	return out
}
