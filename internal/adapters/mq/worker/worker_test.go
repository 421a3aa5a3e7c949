package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/tally/internal/adapters/mq/queue"
	"github.com/okian/tally/internal/adapters/mq/worker"
	"github.com/okian/tally/internal/domain/model"
	logging "github.com/okian/tally/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

// recorder keeps the order events were handled in, per entity.
type recorder struct {
	mu   sync.Mutex
	seen map[int64][]string
	fail map[string]error
}

func newRecorder() *recorder {
	return &recorder{seen: map[int64][]string{}, fail: map[string]error{}}
}

func (r *recorder) Handle(_ context.Context, e model.LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[e.EntityID] = append(r.seen[e.EntityID], e.EventID)
	return r.fail[e.EventID]
}

func (r *recorder) events(id int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen[id]...)
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ids := range r.seen {
		n += len(ids)
	}
	return n
}

func event(id string, entity int64, kind model.Kind) model.LifecycleEvent {
	return model.LifecycleEvent{EventID: id, EntityID: entity, Kind: kind, TS: time.Now()}
}

func TestPoolOrdering(t *testing.T) {
	convey.Convey("Given a pool with several shards", t, func() {
		rec := newRecorder()
		pool := worker.NewPool(4, 256, rec)
		ctx := context.Background()
		pool.Start(ctx)

		convey.Convey("When each entity attaches then detaches repeatedly", func() {
			for entity := int64(1); entity <= 8; entity++ {
				for i := 0; i < 10; i++ {
					kind := model.KindAttach
					if i%2 == 1 {
						kind = model.KindDetach
					}
					err := pool.Submit(ctx, event(fmt.Sprintf("%d-%d", entity, i), entity, kind))
					convey.So(err, convey.ShouldBeNil)
				}
			}
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then every entity sees its events in submit order", func() {
				convey.So(rec.total(), convey.ShouldEqual, 80)
				for entity := int64(1); entity <= 8; entity++ {
					want := make([]string, 0, 10)
					for i := 0; i < 10; i++ {
						want = append(want, fmt.Sprintf("%d-%d", entity, i))
					}
					convey.So(rec.events(entity), convey.ShouldResemble, want)
				}
			})
		})
	})
}

func TestPoolBackpressure(t *testing.T) {
	convey.Convey("Given a single shard with room for one event", t, func() {
		started := make(chan struct{}, 1)
		release := make(chan struct{})
		handler := worker.HandlerFunc(func(_ context.Context, _ model.LifecycleEvent) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return nil
		})
		pool := worker.NewPool(1, 1, handler)
		ctx := context.Background()
		pool.Start(ctx)

		convey.So(pool.Submit(ctx, event("a", 1, model.KindAttach)), convey.ShouldBeNil)
		<-started
		convey.So(pool.Submit(ctx, event("b", 1, model.KindDetach)), convey.ShouldBeNil)

		convey.Convey("When the shard is saturated", func() {
			err := pool.Submit(ctx, event("c", 1, model.KindAttach))

			convey.Convey("Then Submit reports the queue as full", func() {
				convey.So(errors.Is(err, queue.ErrFull), convey.ShouldBeTrue)
				convey.So(pool.Len(), convey.ShouldEqual, 1)
			})
		})

		close(release)
		convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
	})
}

func TestPoolShutdown(t *testing.T) {
	convey.Convey("Given a pool with queued events", t, func() {
		rec := newRecorder()
		rec.fail["bad"] = errors.New("boom")
		pool := worker.NewPool(2, 16, rec)
		ctx, cancel := context.WithCancel(context.Background())
		pool.Start(ctx)

		for i := 0; i < 5; i++ {
			convey.So(pool.Submit(ctx, event(fmt.Sprintf("e%d", i), int64(i+1), model.KindAttach)), convey.ShouldBeNil)
		}
		convey.So(pool.Submit(ctx, event("bad", 9, model.KindDetach)), convey.ShouldBeNil)

		convey.Convey("When the context is cancelled and the pool shuts down", func() {
			cancel()
			err := pool.Shutdown(context.Background())

			convey.Convey("Then queued events are still handled", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(rec.total(), convey.ShouldEqual, 6)
			})

			convey.Convey("Then later submissions are refused", func() {
				err := pool.Submit(context.Background(), event("late", 1, model.KindAttach))
				convey.So(errors.Is(err, worker.ErrStopped), convey.ShouldBeTrue)
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}
