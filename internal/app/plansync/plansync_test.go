package plansync_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lingotrack/internal/app/plansync"
	"github.com/okian/lingotrack/internal/domain/errs"
	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/pkg/logger"
)

type memPlans struct {
	entries []model.PlanEntry
	marks   []string
	listErr error
	markErr error
}

func (m *memPlans) EntriesForUnit(_ context.Context, learnerID, unitID string) ([]model.PlanEntry, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.PlanEntry
	for _, e := range m.entries {
		if e.LearnerID == learnerID && e.UnitID == unitID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memPlans) MarkEntry(_ context.Context, learnerID, entryID string, completed bool, score int) error {
	if m.markErr != nil {
		return m.markErr
	}
	for i := range m.entries {
		if m.entries[i].ID == entryID && m.entries[i].LearnerID == learnerID {
			m.entries[i].Completed = completed
			m.entries[i].Score = score
			m.marks = append(m.marks, entryID)
		}
	}
	return nil
}

func TestSyncCompletion(t *testing.T) {
	ctx := context.Background()

	Convey("Given plan entries across dates and learners", t, func() {
		plans := &memPlans{entries: []model.PlanEntry{
			{ID: "p1", LearnerID: "l1", UnitID: "u1"},
			{ID: "p2", LearnerID: "l1", UnitID: "u1", Completed: true, Score: 92},
			{ID: "p3", LearnerID: "l1", UnitID: "u2"},
			{ID: "p4", LearnerID: "l2", UnitID: "u1"},
		}}
		s := plansync.New(plans, plansync.WithLogger(logger.Nop()))

		Convey("When the unit completes with 92", func() {
			updated, err := s.SyncCompletion(ctx, "l1", "u1", 92)

			Convey("Then every entry of the learner for the unit matches", func() {
				So(err, ShouldBeNil)
				So(updated, ShouldBeTrue)
				So(plans.entries[0].Completed, ShouldBeTrue)
				So(plans.entries[0].Score, ShouldEqual, 92)
			})

			Convey("And entries already in sync are not rewritten", func() {
				So(plans.marks, ShouldResemble, []string{"p1"})
			})

			Convey("And other units and learners are untouched", func() {
				So(plans.entries[2].Completed, ShouldBeFalse)
				So(plans.entries[3].Completed, ShouldBeFalse)
			})
		})

		Convey("When every entry is already in sync", func() {
			_, err := s.SyncCompletion(ctx, "l1", "u1", 92)
			So(err, ShouldBeNil)
			plans.marks = nil
			updated, err := s.SyncCompletion(ctx, "l1", "u1", 92)

			Convey("Then it still reports that entries exist", func() {
				So(err, ShouldBeNil)
				So(updated, ShouldBeTrue)
				So(plans.marks, ShouldBeEmpty)
			})
		})

		Convey("When the unit has no plan entry", func() {
			updated, err := s.SyncCompletion(ctx, "l1", "u9", 50)

			Convey("Then nothing is created and false is returned", func() {
				So(err, ShouldBeNil)
				So(updated, ShouldBeFalse)
				So(len(plans.entries), ShouldEqual, 4)
			})
		})

		Convey("When the plan store fails", func() {
			plans.markErr = errors.New("deadlock detected")
			_, err := s.SyncCompletion(ctx, "l1", "u1", 80)

			Convey("Then a store error carrying the cause is returned", func() {
				So(errors.Is(err, errs.ErrStore), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "deadlock detected")
			})
		})
	})
}
