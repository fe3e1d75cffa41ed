package status

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/hive-corporation/actionables/internal/metrics"
	"go.uber.org/zap"
)

// Result describes what Apply did for one target.
type Result struct {
	Status  domain.Status
	IsNew   bool
	Changed bool
	Healed  int
}

// Engine persists reduced statuses as immutable snapshots.
type Engine struct {
	reducer Reducer
	log     *zap.Logger
	now     func() time.Time
}

func NewEngine(reducer Reducer, log *zap.Logger) *Engine {
	if reducer == nil {
		reducer = DefaultReducer{}
	}
	return &Engine{reducer: reducer, log: log.Named("status"), now: time.Now}
}

// Current returns the active link and snapshot of a target, healing
// duplicate active links on the way. Both are nil for a target without status.
func (e *Engine) Current(ctx context.Context, repo ports.Repository, t domain.Target) (*domain.StatusLink, *domain.Status, int, error) {
	links, err := repo.ActiveStatusLinks(ctx, t)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("active status links: %w", err)
	}
	if len(links) == 0 {
		return nil, nil, 0, nil
	}

	healed := 0
	if len(links) > 1 {
		sort.Slice(links, func(i, j int) bool {
			if !links[i].Timestamp.Equal(links[j].Timestamp) {
				return links[i].Timestamp.After(links[j].Timestamp)
			}
			return links[i].ID > links[j].ID
		})
		stale := make([]int64, 0, len(links)-1)
		for _, l := range links[1:] {
			stale = append(stale, l.ID)
		}
		if err := repo.DeactivateStatusLinks(ctx, stale); err != nil {
			return nil, nil, 0, fmt.Errorf("deactivate duplicate links: %w", err)
		}
		healed = len(stale)
		metrics.RecordStatusHeal()
		e.log.Error("multiple active status links, kept the newest",
			zap.String("target_kind", string(t.Kind)),
			zap.Int64("target_id", t.ID),
			zap.Int64("kept_link", links[0].ID),
			zap.Int64s("deactivated", stale))
	}

	link := links[0]
	st, err := repo.GetStatus(ctx, link.StatusID)
	if err != nil {
		return nil, nil, healed, fmt.Errorf("get status %d: %w", link.StatusID, err)
	}
	return &link, &st, healed, nil
}

// Apply reduces the target's current status with in and, when the result
// is a different snapshot, makes it the active one under action.
func (e *Engine) Apply(ctx context.Context, repo ports.Repository, t domain.Target, action *ActionRef, in Inputs) (Result, error) {
	link, cur, healed, err := e.Current(ctx, repo, t)
	if err != nil {
		return Result{}, err
	}

	seed := domain.InitialStatus()
	if cur != nil {
		seed = cur.StatusFields
	}
	fields := e.reducer.Reduce(seed, in)

	st, isNew, err := repo.GetOrCreateStatus(ctx, fields)
	if err != nil {
		return Result{}, fmt.Errorf("get or create status: %w", err)
	}
	res := Result{Status: st, IsNew: isNew, Healed: healed}

	if !isNew && cur != nil && cur.ID == st.ID {
		return res, nil
	}

	actionID, err := action.ID(ctx, repo)
	if err != nil {
		return Result{}, err
	}
	if link != nil {
		if err := repo.DeactivateStatusLinks(ctx, []int64{link.ID}); err != nil {
			return Result{}, fmt.Errorf("deactivate status link: %w", err)
		}
	}
	if _, err := repo.InsertStatusLink(ctx, domain.StatusLink{
		ActionID:  actionID,
		StatusID:  st.ID,
		Target:    t,
		Active:    true,
		Timestamp: e.now(),
	}); err != nil {
		return Result{}, fmt.Errorf("insert status link: %w", err)
	}

	res.Changed = true
	metrics.RecordStatusTransition()
	e.log.Debug("status changed",
		zap.String("target_kind", string(t.Kind)),
		zap.Int64("target_id", t.ID),
		zap.Int64("status_id", st.ID),
		zap.Bool("new_snapshot", isNew))
	return res, nil
}

// ActionRef creates its audit action on first use, so runs that change
// nothing leave no action behind.
type ActionRef struct {
	user    string
	comment string
	id      int64
}

func NewAction(user, comment string) *ActionRef {
	return &ActionRef{user: user, comment: comment}
}

func (a *ActionRef) ID(ctx context.Context, repo ports.Repository) (int64, error) {
	if a.id != 0 {
		return a.id, nil
	}
	act, err := repo.CreateAction(ctx, domain.Action{User: a.user, Comment: a.comment, Timestamp: time.Now()})
	if err != nil {
		return 0, fmt.Errorf("create action: %w", err)
	}
	a.id = act.ID
	return a.id, nil
}

// Reset forgets the created action, e.g. after its transaction rolled back.
func (a *ActionRef) Reset() { a.id = 0 }
