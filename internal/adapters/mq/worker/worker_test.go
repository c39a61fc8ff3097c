package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lingotrack/internal/adapters/mq/queue"
	"github.com/okian/lingotrack/internal/adapters/mq/worker"
	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/pkg/logger"
)

var errBoom = errors.New("boom")

type recordingApplier struct {
	mu      sync.Mutex
	applied []string
	failOn  map[string]bool
}

func (r *recordingApplier) Apply(_ context.Context, ev worker.Event) error { //nolint:gocritic // hugeParam: matches Applier
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[ev.EventID] {
		return errBoom
	}
	r.applied = append(r.applied, ev.EventID)
	return nil
}

func (r *recordingApplier) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.applied...)
}

type entry struct {
	msg    string
	fields map[string]logger.Field
}

// recordingLogger keeps Debug and Error entries for inspection.
type recordingLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (l *recordingLogger) add(msg string, fields []logger.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := make(map[string]logger.Field, len(fields))
	for _, f := range fields {
		m[f.Key] = f
	}
	l.entries = append(l.entries, entry{msg: msg, fields: m})
}

func (l *recordingLogger) find(msg string) (entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return entry{}, false
}

func (l *recordingLogger) Info(context.Context, string, ...logger.Field) {}
func (l *recordingLogger) Warn(context.Context, string, ...logger.Field) {}
func (l *recordingLogger) Fatal(context.Context, string, ...logger.Field) {}
func (l *recordingLogger) Debug(_ context.Context, msg string, fields ...logger.Field) {
	l.add(msg, fields)
}
func (l *recordingLogger) Error(_ context.Context, msg string, fields ...logger.Field) {
	l.add(msg, fields)
}
func (l *recordingLogger) Named(string) logger.Logger { return l }

func ev(id string) queue.Event {
	return model.ProgressEvent{EventID: id, LearnerID: "l1", UnitID: "u1", Kind: model.EventAsset, AssetID: "a1"}
}

func TestPool(t *testing.T) {
	ctx := context.Background()

	Convey("Given a pool over a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		app := &recordingApplier{failOn: map[string]bool{"bad": true}}

		var (
			mu     sync.Mutex
			failed []string
		)
		onFailure := func(_ context.Context, e worker.Event, err error) {
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, errBoom) {
				failed = append(failed, e.EventID)
			}
		}

		pool := worker.NewPool(3, q, app,
			worker.WithPoolLogger(logger.Nop()),
			worker.WithWorkerOptions(worker.WithFailureHandler(onFailure)),
		)
		So(pool.Size(), ShouldEqual, 3)
		pool.Start(ctx)

		Convey("When events are enqueued and the pool shuts down", func() {
			for _, id := range []string{"e1", "bad", "e2", "e3"} {
				So(q.Enqueue(ctx, ev(id)), ShouldBeNil)
			}
			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			So(pool.Shutdown(sctx), ShouldBeNil)

			Convey("Then every buffered event was handled before exit", func() {
				So(app.ids(), ShouldHaveLength, 3)
				So(app.ids(), ShouldContain, "e1")
				So(app.ids(), ShouldContain, "e3")
				So(pool.Processed(), ShouldEqual, int64(3))
				So(pool.Failed(), ShouldEqual, int64(1))
				So(pool.Active(), ShouldBeZeroValue)
			})

			Convey("And the failure handler saw the failed event", func() {
				mu.Lock()
				defer mu.Unlock()
				So(failed, ShouldResemble, []string{"bad"})
			})

			Convey("And the queue refuses further events", func() {
				So(errors.Is(q.Enqueue(ctx, ev("late")), queue.ErrClosed), ShouldBeTrue)
			})
		})

		Convey("When the pool is stopped without draining", func() {
			pool.Stop()
			pool.Stop()

			Convey("Then later events stay in the queue", func() {
				So(q.Enqueue(ctx, ev("e9")), ShouldBeNil)
				time.Sleep(20 * time.Millisecond)
				So(q.Len(), ShouldEqual, 1)
			})
		})
	})
}

func TestWorkerLogsEventTime(t *testing.T) {
	Convey("Given a worker with a recording logger", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		rec := &recordingLogger{}
		w := worker.NewInMemoryWorker(q, &recordingApplier{failOn: map[string]bool{"bad": true}}, worker.WithLogger(rec))
		go w.Run(context.Background())

		sent := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
		for _, id := range []string{"e1", "bad"} {
			e := ev(id)
			e.TS = sent
			So(q.Enqueue(context.Background(), e), ShouldBeNil)
		}
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			_, applied := rec.find("event applied")
			_, failed := rec.find("failed to apply event")
			if applied && failed {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		So(w.Shutdown(ctx), ShouldBeNil)

		Convey("Then applied events carry their timestamp and lag", func() {
			e, ok := rec.find("event applied")
			So(ok, ShouldBeTrue)
			So(e.fields, ShouldContainKey, "ts")
			So(e.fields["ts"].Integer, ShouldEqual, sent.UnixNano())
			So(time.Duration(e.fields["lag"].Integer), ShouldBeGreaterThan, time.Duration(0))
		})

		Convey("And failed events carry their timestamp", func() {
			e, ok := rec.find("failed to apply event")
			So(ok, ShouldBeTrue)
			So(e.fields["ts"].Integer, ShouldEqual, sent.UnixNano())
		})
	})
}

func TestWorkerShutdown(t *testing.T) {
	Convey("Given a single worker on an idle queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		w := worker.NewInMemoryWorker(q, &recordingApplier{}, worker.WithLogger(logger.Nop()), worker.WithName("solo"))
		go w.Run(context.Background())

		Convey("Then Shutdown returns once the loop exits", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			So(w.Shutdown(ctx), ShouldBeNil)
			So(w.Shutdown(ctx), ShouldBeNil)
		})
	})

	Convey("Given a worker whose context is cancelled", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1))
		w := worker.NewInMemoryWorker(q, &recordingApplier{}, worker.WithLogger(logger.Nop()))
		ctx, cancel := context.WithCancel(context.Background())
		go w.Run(ctx)
		cancel()

		Convey("Then Shutdown still completes", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			So(w.Shutdown(sctx), ShouldBeNil)
		})
	})
}
