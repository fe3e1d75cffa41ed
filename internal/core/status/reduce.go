// Package status computes aggregate indicator status snapshots and keeps
// exactly one of them active per target.
package status

import (
	"github.com/hive-corporation/actionables/internal/core/domain"
)

// Inputs is what was newly observed about a target.
type Inputs struct {
	Source      *domain.Source
	Entities    []domain.StixEntity
	AddedTags   domain.Set
	RemovedTags domain.Set
}

// Reducer folds new observations into a status. Implementations must be
// deterministic so unchanged inputs give the same snapshot.
type Reducer interface {
	Reduce(current domain.StatusFields, in Inputs) domain.StatusFields
}

// DefaultReducer applies the standard aggregation rules. Tag changes do
// not alter any field.
type DefaultReducer struct{}

func (DefaultReducer) Reduce(cur domain.StatusFields, in Inputs) domain.StatusFields {
	next := cur

	if s := in.Source; s != nil {
		next.MostPermissiveTLP = domain.MorePermissiveTLP(next.MostPermissiveTLP, s.TLP)
		next.MostRestrictiveTLP = domain.MoreRestrictiveTLP(next.MostRestrictiveTLP, s.TLP)
		if s.Processing > next.BestProcessing {
			next.BestProcessing = s.Processing
		}
	}

	phases := cur.Phases()
	for _, e := range in.Entities {
		if e.EntityType != domain.EntityIndicator {
			continue
		}
		for _, p := range e.Essence.KillChainPhases {
			phases.Add(p)
		}
		if c := domain.ParseConfidence(e.Essence.Confidence); c > next.MaxConfidence {
			next.MaxConfidence = c
		}
	}
	next.KillChainPhases = phases.Join(domain.PhaseSeparator)

	return next
}

// Reduce is DefaultReducer.Reduce starting from the initial status when
// there is no current one.
func Reduce(current *domain.StatusFields, in Inputs) domain.StatusFields {
	seed := domain.InitialStatus()
	if current != nil {
		seed = *current
	}
	return DefaultReducer{}.Reduce(seed, in)
}
