package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/gorm"

	"github.com/okian/lingotrack/internal/adapters/repository"
	service "github.com/okian/lingotrack/internal/app"
	"github.com/okian/lingotrack/internal/app/progress"
	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/pkg/logger"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repository.Open(context.Background(), repository.DriverSQLite, dsn, repository.WithMaxOpenConns(1))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = repository.Close(db) })
	return db
}

func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, r := range []any{
		&model.Story{ID: "s1", Title: "Greetings", Position: 1},
		&model.Unit{ID: "u1", StoryID: "s1", Title: "Hello", Position: 1},
		&model.Asset{ID: "a1", UnitID: "u1", AssetType: "video", StorageKey: "u1/clip.mp4", Position: 1},
	} {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func progressUpdate() progress.AssetUpdate {
	return progress.AssetUpdate{LearnerID: "l1", UnitID: "u1", AssetID: "a1", SecondsWatched: 30, ProgressPercentage: 50}
}

func stopWithin(svc *service.Service, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return svc.Stop(ctx)
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service that was never started", t, func() {
		svc := service.New(openDB(t), service.WithLogger(logger.Nop()))

		Convey("Then it rejects events and reports itself stopped", func() {
			err := svc.Enqueue(ctx, model.ProgressEvent{EventID: "e1", LearnerID: "l1"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(svc.Size(), ShouldEqual, 0)
			So(stopWithin(svc, time.Second), ShouldBeNil)
		})
	})

	Convey("Given a started service", t, func() {
		db := openDB(t)
		svc := service.New(db,
			service.WithLogger(logger.Nop()),
			service.WithAutoMigrate(true),
			service.WithWorkerCount(2),
			service.WithQueueSize(16),
		)
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		seedCatalog(t, db)
		defer func() { _ = stopWithin(svc, 5*time.Second) }()

		Convey("Then it is healthy and exposes its parts", func() {
			So(svc.Ping(ctx), ShouldBeNil)
			So(svc.Coordinator(), ShouldNotBeNil)
			So(svc.Reporter(), ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["queueSize"], ShouldEqual, 16)
			So(stats["catalogCache"], ShouldEqual, false)
		})

		Convey("When events are enqueued and the service stops", func() {
			done := true
			evs := []model.ProgressEvent{
				{EventID: "e1", LearnerID: "l1", UnitID: "u1", Kind: model.EventAsset, AssetID: "a1", SecondsWatched: 30, ProgressPercentage: 100, Completed: &done},
				{EventID: "e2", LearnerID: "l1", UnitID: "u1", Kind: model.EventPronunciation, AudioReference: "rec/1.m4a", Score: 80},
				{EventID: "e3", LearnerID: "l1", UnitID: "u1", Kind: "bogus"},
			}
			for _, ev := range evs {
				So(svc.SeenAndRecord(ctx, ev.DedupeKey()), ShouldBeFalse)
				So(svc.Enqueue(ctx, ev), ShouldBeNil)
			}
			So(svc.SeenAndRecord(ctx, evs[0].DedupeKey()), ShouldBeTrue)
			So(stopWithin(svc, 5*time.Second), ShouldBeNil)

			Convey("Then the applied events are visible through the reporter", func() {
				detail, err := svc.Reporter().UnitProgress(ctx, "l1", "u1")
				So(err, ShouldBeNil)
				So(detail.Assets, ShouldHaveLength, 1)
				So(detail.Assets[0].Completed, ShouldBeTrue)
				So(detail.Attempts, ShouldHaveLength, 1)
				So(detail.Attempts[0].Score, ShouldEqual, 80.0)
			})

			Convey("And the failed event can be submitted again", func() {
				So(svc.SeenAndRecord(ctx, evs[2].DedupeKey()), ShouldBeFalse)
				So(svc.SeenAndRecord(ctx, evs[1].DedupeKey()), ShouldBeTrue)
			})

			Convey("And new events are refused", func() {
				So(errors.Is(svc.Enqueue(ctx, evs[0]), service.ErrNotStarted), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})

	Convey("Given a service whose catalog cache is unreachable", t, func() {
		db := openDB(t)
		rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
		defer func() { _ = rdb.Close() }()

		svc := service.New(db,
			service.WithLogger(logger.Nop()),
			service.WithAutoMigrate(true),
			service.WithCatalogCache(rdb, time.Minute),
		)
		So(svc.Start(ctx), ShouldBeNil)
		seedCatalog(t, db)
		defer func() { _ = stopWithin(svc, 5*time.Second) }()

		Convey("Then scoring falls through to the database", func() {
			So(svc.GetStats()["catalogCache"], ShouldEqual, true)
			_, err := svc.Coordinator().UpdateAssetProgress(ctx, progressUpdate())
			So(err, ShouldBeNil)
			score, err := svc.Coordinator().CalculateUnitScore(ctx, "l1", "u1")
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 50)
		})
	})
}
