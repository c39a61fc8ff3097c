package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lingotrack/internal/adapters/mq/queue"
	"github.com/okian/lingotrack/internal/domain/model"
)

func event(id string) queue.Event {
	return model.ProgressEvent{EventID: id, LearnerID: "l1", UnitID: "u1", Kind: model.EventAsset, AssetID: "a1"}
}

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with capacity 2", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		So(q.Len(), ShouldEqual, 0)
		So(q.Cap(), ShouldEqual, 2)

		Convey("When an event is enqueued and dequeued", func() {
			So(q.Enqueue(ctx, event("e1")), ShouldBeNil)
			So(q.Len(), ShouldEqual, 1)
			got := <-q.Dequeue()

			Convey("Then the same event comes out", func() {
				So(got.EventID, ShouldEqual, "e1")
				So(q.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the queue is full", func() {
			So(q.Enqueue(ctx, event("e1")), ShouldBeNil)
			So(q.Enqueue(ctx, event("e2")), ShouldBeNil)
			err := q.Enqueue(ctx, event("e3"))

			Convey("Then enqueue reports backpressure", func() {
				So(errors.Is(err, queue.ErrFull), ShouldBeTrue)
				So(q.Len(), ShouldEqual, 2)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(errors.Is(q.Enqueue(cctx, event("e1")), context.Canceled), ShouldBeTrue)
		})

		Convey("When the queue is closed with events buffered", func() {
			So(q.Enqueue(ctx, event("e1")), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then new events are refused", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(errors.Is(q.Enqueue(ctx, event("e2")), queue.ErrClosed), ShouldBeTrue)
			})

			Convey("And buffered events drain before the channel closes", func() {
				var ids []string
				for e := range q.Dequeue() {
					ids = append(ids, e.EventID)
				}
				So(ids, ShouldResemble, []string{"e1"})
			})
		})
	})

	Convey("Given concurrent producers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		var wg sync.WaitGroup
		for p := 0; p < 10; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					_ = q.Enqueue(ctx, event(fmt.Sprintf("p%d-%d", p, i)))
				}
			}(p)
		}
		wg.Wait()
		So(q.Len(), ShouldEqual, 500)
	})
}
