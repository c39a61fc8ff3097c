package plan_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/okian/lingotrack/internal/adapters/plan"
	"github.com/okian/lingotrack/internal/domain/model"
)

func newPlanStore(t *testing.T) (*plan.GormStore, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	s := plan.NewGormStore(db)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s, db
}

func TestPlanStore(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	Convey("Given plan entries for two learners", t, func() {
		s, db := newPlanStore(t)
		for _, e := range []model.PlanEntry{
			{ID: "p1", LearnerID: "l1", UnitID: "u1", PlanDate: day},
			{ID: "p2", LearnerID: "l1", UnitID: "u1", PlanDate: day.AddDate(0, 0, 3)},
			{ID: "p3", LearnerID: "l1", UnitID: "u2", PlanDate: day},
			{ID: "p4", LearnerID: "l2", UnitID: "u1", PlanDate: day},
		} {
			So(db.Create(&e).Error, ShouldBeNil)
		}

		Convey("Entries are scoped by learner and unit across dates", func() {
			entries, err := s.EntriesForUnit(ctx, "l1", "u1")
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 2)
			So(entries[0].ID, ShouldEqual, "p1")
			So(entries[1].ID, ShouldEqual, "p2")
		})

		Convey("Marking an entry updates only that row", func() {
			So(s.MarkEntry(ctx, "l1", "p1", true, 92), ShouldBeNil)

			var got model.PlanEntry
			So(db.Take(&got, "id = ?", "p1").Error, ShouldBeNil)
			So(got.Completed, ShouldBeTrue)
			So(got.Score, ShouldEqual, 92)

			var other model.PlanEntry
			So(db.Take(&other, "id = ?", "p4").Error, ShouldBeNil)
			So(other.Completed, ShouldBeFalse)
		})

		Convey("Marking another learner's entry fails", func() {
			err := s.MarkEntry(ctx, "l1", "p4", true, 50)
			So(errors.Is(err, plan.ErrEntryMissing), ShouldBeTrue)
		})
	})
}
