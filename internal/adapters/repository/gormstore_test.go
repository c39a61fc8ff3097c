package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lingotrack/internal/adapters/repository"
	"github.com/okian/lingotrack/internal/domain/model"
)

func newStore(t *testing.T) *repository.GormStore {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repository.Open(ctx, repository.DriverSQLite, dsn, repository.WithMaxOpenConns(1))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repository.Close(db) })
	s := repository.NewGormStore(db)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestOpen(t *testing.T) {
	Convey("Given an unknown driver", t, func() {
		_, err := repository.Open(context.Background(), "mysql", "x")
		So(errors.Is(err, repository.ErrUnsupportedDriver), ShouldBeTrue)
	})

	Convey("Given pool and SQL logging settings", t, func() {
		level, err := repository.ParseSQLLogLevel("silent")
		So(err, ShouldBeNil)
		dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		db, err := repository.Open(context.Background(), repository.DriverSQLite, dsn,
			repository.WithMaxOpenConns(2),
			repository.WithConnMaxLifetime(time.Minute),
			repository.WithSQLLogLevel(level),
		)
		So(err, ShouldBeNil)
		defer func() { _ = repository.Close(db) }()

		sqlDB, err := db.DB()
		So(err, ShouldBeNil)
		So(sqlDB.Stats().MaxOpenConnections, ShouldEqual, 2)
	})
}

func TestParseSQLLogLevel(t *testing.T) {
	Convey("Given SQL log level names", t, func() {
		for _, name := range []string{"", "silent", "ERROR", "warn", "warning", "info"} {
			_, err := repository.ParseSQLLogLevel(name)
			So(err, ShouldBeNil)
		}
		_, err := repository.ParseSQLLogLevel("trace")
		So(errors.Is(err, repository.ErrUnknownLogLevel), ShouldBeTrue)
	})
}

func TestIDGenerator(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store with a fixed id sequence", t, func() {
		dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		db, err := repository.Open(ctx, repository.DriverSQLite, dsn, repository.WithMaxOpenConns(1))
		So(err, ShouldBeNil)
		defer func() { _ = repository.Close(db) }()

		n := 0
		s := repository.NewGormStore(db, repository.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}))
		So(s.Migrate(ctx), ShouldBeNil)

		Convey("Then new rows take their ids from it", func() {
			p, err := s.EnsureUnitStarted(ctx, "l1", "u1", t0)
			So(err, ShouldBeNil)
			So(p.ID, ShouldEqual, "id-1")

			a, err := s.AppendAttempt(ctx, model.PronunciationAttempt{
				LearnerID: "l1", UnitID: "u1", AudioReference: "r.webm", Score: 70, CreatedAt: t0,
			})
			So(err, ShouldBeNil)
			So(a.ID, ShouldEqual, "id-2")
		})
	})
}

func TestUnitProgress(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := newStore(t)

		Convey("When looking up a unit that was never started", func() {
			p, err := s.FindUnitProgress(ctx, "l1", "u1")

			Convey("Then nothing is returned without error", func() {
				So(err, ShouldBeNil)
				So(p, ShouldBeNil)
			})
		})

		Convey("When a unit is started twice", func() {
			first, err := s.EnsureUnitStarted(ctx, "l1", "u1", t0)
			So(err, ShouldBeNil)
			second, err := s.EnsureUnitStarted(ctx, "l1", "u1", t0.Add(time.Hour))
			So(err, ShouldBeNil)

			Convey("Then started_at keeps its first value", func() {
				So(first.StartedAt, ShouldNotBeNil)
				So(first.StartedAt.Equal(t0), ShouldBeTrue)
				So(second.StartedAt.Equal(t0), ShouldBeTrue)
				So(second.ID, ShouldEqual, first.ID)
				So(second.Completed, ShouldBeFalse)
				So(second.Score, ShouldEqual, 0)
			})

			Convey("And another learner gets a separate row", func() {
				other, err := s.EnsureUnitStarted(ctx, "l2", "u1", t0)
				So(err, ShouldBeNil)
				So(other.ID, ShouldNotEqual, first.ID)
				rows, err := s.ListUnitProgress(ctx, "l1")
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 1)
			})
		})

		Convey("When a started unit is completed twice", func() {
			_, err := s.EnsureUnitStarted(ctx, "l1", "u1", t0)
			So(err, ShouldBeNil)
			done, err := s.MarkUnitCompleted(ctx, "l1", "u1", 70, t0.Add(time.Minute))
			So(err, ShouldBeNil)
			again, err := s.MarkUnitCompleted(ctx, "l1", "u1", 95, t0.Add(time.Hour))
			So(err, ShouldBeNil)

			Convey("Then the score is replaced and completed_at is kept", func() {
				So(done.Completed, ShouldBeTrue)
				So(again.Score, ShouldEqual, 95)
				So(again.CompletedAt.Equal(t0.Add(time.Minute)), ShouldBeTrue)
			})
		})

		Convey("When completing a unit that has no row", func() {
			_, err := s.MarkUnitCompleted(ctx, "l1", "missing", 10, t0)
			So(errors.Is(err, repository.ErrRowMissing), ShouldBeTrue)
		})

		Convey("When listing recent units", func() {
			for i := 0; i < 12; i++ {
				_, err := s.EnsureUnitStarted(ctx, "l1", fmt.Sprintf("u%02d", i), t0.Add(time.Duration(i)*time.Minute))
				So(err, ShouldBeNil)
			}
			recent, err := s.RecentUnitProgress(ctx, "l1", 10)
			So(err, ShouldBeNil)

			Convey("Then the most recently updated come first", func() {
				So(len(recent), ShouldEqual, 10)
				So(recent[0].UnitID, ShouldEqual, "u11")
				So(recent[9].UnitID, ShouldEqual, "u02")
			})

			Convey("And a non-positive limit is rejected", func() {
				_, err := s.RecentUnitProgress(ctx, "l1", 0)
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})
	})
}

func TestAssetProgress(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := newStore(t)
		dur := 120

		Convey("When an asset completes and is later rewound", func() {
			at := t0
			first, err := s.UpsertAssetProgress(ctx, model.AssetProgress{
				LearnerID: "l1", UnitID: "u1", AssetID: "a1",
				ProgressPercentage: 95, SecondsWatched: 114, DurationSeconds: &dur,
				Completed: true, CompletedAt: &at, UpdatedAt: t0,
			})
			So(err, ShouldBeNil)

			later, err := s.UpsertAssetProgress(ctx, model.AssetProgress{
				LearnerID: "l1", UnitID: "u1", AssetID: "a1",
				ProgressPercentage: 20, SecondsWatched: 24,
				UpdatedAt: t0.Add(time.Hour),
			})
			So(err, ShouldBeNil)

			Convey("Then completion and completed_at survive", func() {
				So(first.Completed, ShouldBeTrue)
				So(later.Completed, ShouldBeTrue)
				So(later.CompletedAt.Equal(t0), ShouldBeTrue)
			})

			Convey("And progress, seconds and duration follow the rules", func() {
				So(later.ProgressPercentage, ShouldEqual, 20)
				So(later.SecondsWatched, ShouldEqual, 24)
				So(later.DurationSeconds, ShouldNotBeNil)
				So(*later.DurationSeconds, ShouldEqual, 120)
				So(later.ID, ShouldEqual, first.ID)
			})
		})

		Convey("When an incomplete asset is force completed", func() {
			_, err := s.UpsertAssetProgress(ctx, model.AssetProgress{
				LearnerID: "l1", UnitID: "u1", AssetID: "a1",
				ProgressPercentage: 40, SecondsWatched: 48, UpdatedAt: t0,
			})
			So(err, ShouldBeNil)
			forced, err := s.ForceCompleteAsset(ctx, model.AssetProgress{
				LearnerID: "l1", UnitID: "u1", AssetID: "a1", SecondsWatched: 999, UpdatedAt: t0.Add(time.Hour),
			})
			So(err, ShouldBeNil)

			Convey("Then it is at 100% with seconds preserved", func() {
				So(forced.ProgressPercentage, ShouldEqual, 100)
				So(forced.Completed, ShouldBeTrue)
				So(forced.SecondsWatched, ShouldEqual, 48)
				So(forced.CompletedAt.Equal(t0.Add(time.Hour)), ShouldBeTrue)
			})
		})

		Convey("When a never touched asset is force completed", func() {
			forced, err := s.ForceCompleteAsset(ctx, model.AssetProgress{
				LearnerID: "l1", UnitID: "u1", AssetID: "a2", SecondsWatched: 120, DurationSeconds: &dur, UpdatedAt: t0,
			})
			So(err, ShouldBeNil)

			Convey("Then the row is created complete", func() {
				So(forced.ProgressPercentage, ShouldEqual, 100)
				So(forced.SecondsWatched, ShouldEqual, 120)
				So(forced.CompletedAt.Equal(t0), ShouldBeTrue)
			})
		})

		Convey("When many writers race on a brand-new asset", func() {
			var wg sync.WaitGroup
			errs := make(chan error, 8)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := s.UpsertAssetProgress(ctx, model.AssetProgress{
						LearnerID: "l1", UnitID: "u1", AssetID: "race",
						ProgressPercentage: float64(i * 10), UpdatedAt: t0,
					})
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)

			Convey("Then exactly one row survives and no writer fails", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				rows, err := s.ListUnitAssetProgress(ctx, "l1", "u1")
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 1)
			})
		})

		Convey("When listing by asset ids", func() {
			for _, id := range []string{"a1", "a2", "a3"} {
				_, err := s.UpsertAssetProgress(ctx, model.AssetProgress{LearnerID: "l1", UnitID: "u1", AssetID: id, UpdatedAt: t0})
				So(err, ShouldBeNil)
			}
			rows, err := s.ListAssetProgress(ctx, "l1", []string{"a1", "a3", "zz"})
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 2)

			none, err := s.ListAssetProgress(ctx, "l1", nil)
			So(err, ShouldBeNil)
			So(none, ShouldBeEmpty)

			missing, err := s.FindAssetProgress(ctx, "l2", "a1")
			So(err, ShouldBeNil)
			So(missing, ShouldBeNil)
		})
	})
}

func TestAttempts(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := newStore(t)

		Convey("When no attempts exist", func() {
			stats, err := s.AttemptStats(ctx, "l1", "u1")
			So(err, ShouldBeNil)
			So(stats, ShouldResemble, model.AttemptStats{})
		})

		Convey("When attempts are appended", func() {
			for i, score := range []float64{80, 90, 70} {
				_, err := s.AppendAttempt(ctx, model.PronunciationAttempt{
					LearnerID: "l1", UnitID: "u1", AudioReference: fmt.Sprintf("rec/%d.webm", i),
					Score: score, CreatedAt: t0.Add(time.Duration(i) * time.Minute),
				})
				So(err, ShouldBeNil)
			}
			_, err := s.AppendAttempt(ctx, model.PronunciationAttempt{
				LearnerID: "l1", UnitID: "u2", AudioReference: "rec/x.webm", Score: 20, CreatedAt: t0,
			})
			So(err, ShouldBeNil)

			Convey("Then each is its own row, newest first", func() {
				rows, err := s.ListAttempts(ctx, "l1", "u1")
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 3)
				So(rows[0].Score, ShouldEqual, 70)
				So(rows[2].Score, ShouldEqual, 80)
			})

			Convey("And stats are recomputed per unit and per learner", func() {
				unit, err := s.AttemptStats(ctx, "l1", "u1")
				So(err, ShouldBeNil)
				So(unit.Count, ShouldEqual, 3)
				So(unit.Average, ShouldAlmostEqual, 80, 1e-9)

				total, err := s.AttemptTotals(ctx, "l1")
				So(err, ShouldBeNil)
				So(total.Count, ShouldEqual, 4)
				So(total.Average, ShouldAlmostEqual, 65, 1e-9)
			})
		})
	})
}
