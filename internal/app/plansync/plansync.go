// Package plansync mirrors a unit completion onto the learner's daily plan
// entries for that unit.
package plansync

import (
	"context"

	"github.com/okian/lingotrack/internal/domain/errs"
	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/pkg/logger"
	"github.com/okian/lingotrack/pkg/metrics"
)

// Plans is the subset of the plan collaborator the syncer needs.
type Plans interface {
	EntriesForUnit(ctx context.Context, learnerID, unitID string) ([]model.PlanEntry, error)
	MarkEntry(ctx context.Context, learnerID, entryID string, completed bool, score int) error
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.log = l
		}
	}
}

// Syncer updates plan entries. It never creates or deletes them.
type Syncer struct {
	plans Plans
	log   logger.Logger
}

// New creates a Syncer.
func New(plans Plans, opts ...Option) *Syncer {
	s := &Syncer{plans: plans}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("plansync")
	}
	return s
}

// SyncCompletion marks every entry of the learner for unitID as completed
// with score. It reports whether any entry exists, even when none needed a
// change. The first failed write aborts the sync.
func (s *Syncer) SyncCompletion(ctx context.Context, learnerID, unitID string, score int) (bool, error) {
	const op = "plansync.sync_completion"

	entries, err := s.plans.EntriesForUnit(ctx, learnerID, unitID)
	if err != nil {
		return false, errs.WrapKind(op, errs.ErrStore, err)
	}

	changed := 0
	for i := range entries {
		e := &entries[i]
		if e.Completed && e.Score == score {
			continue
		}
		if err := s.plans.MarkEntry(ctx, learnerID, e.ID, true, score); err != nil {
			return false, errs.WrapKind(op, errs.ErrStore, err)
		}
		changed++
	}
	metrics.RecordPlanEntriesSynced(changed)

	if len(entries) > 0 {
		s.log.Debug(ctx, "plan entries synced",
			logger.String("learner_id", learnerID),
			logger.String("unit_id", unitID),
			logger.Int("entries", len(entries)),
			logger.Int("changed", changed),
		)
	}
	return len(entries) > 0, nil
}
