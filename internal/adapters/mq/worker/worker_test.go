package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/crowdews/internal/adapters/mq/queue"
	"github.com/okian/crowdews/internal/adapters/mq/worker"
	"github.com/okian/crowdews/internal/domain/model"
	logging "github.com/okian/crowdews/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

// recorder remembers the per-zone handling order and flags any zone that
// was handled by two goroutines at once.
type recorder struct {
	mu       sync.Mutex
	seen     map[string][]string
	inflight map[string]int
	overlap  atomic.Bool
	fail     string
}

func newRecorder() *recorder {
	return &recorder{seen: map[string][]string{}, inflight: map[string]int{}}
}

func (r *recorder) Handle(_ context.Context, rd model.SignalReading) error { //nolint:gocritic // test
	r.mu.Lock()
	r.inflight[rd.Zone]++
	if r.inflight[rd.Zone] > 1 {
		r.overlap.Store(true)
	}
	r.mu.Unlock()

	time.Sleep(100 * time.Microsecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[rd.Zone]--
	r.seen[rd.Zone] = append(r.seen[rd.Zone], rd.ID)
	if rd.ID == r.fail {
		return errors.New("evaluation failed")
	}
	return nil
}

func (r *recorder) ids(zone string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen[zone]...)
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

func TestShard(t *testing.T) {
	convey.Convey("Given zone routing", t, func() {
		convey.Convey("The same zone always maps to the same worker", func() {
			for _, zone := range []string{"ghat-1", "ghat-2", "sector-9", ""} {
				first := worker.Shard(zone, 8)
				for range 10 {
					convey.So(worker.Shard(zone, 8), convey.ShouldEqual, first)
				}
				convey.So(first, convey.ShouldBeBetweenOrEqual, 0, 7)
			}
		})

		convey.Convey("A single worker owns everything", func() {
			convey.So(worker.Shard("anything", 1), convey.ShouldEqual, 0)
			convey.So(worker.Shard("anything", 0), convey.ShouldEqual, 0)
		})

		convey.Convey("Many zones spread over several workers", func() {
			used := map[int]bool{}
			for i := range 100 {
				used[worker.Shard(fmt.Sprintf("zone-%d", i), 4)] = true
			}
			convey.So(len(used), convey.ShouldEqual, 4)
		})
	})
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker", t, func() {
		rec := newRecorder()
		w := worker.NewInMemoryWorker(rec, worker.WithName("w-test"), worker.WithInboxSize(4))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When readings are submitted and the inbox closed", func() {
			for i := range 3 {
				convey.So(w.Submit(ctx, model.SignalReading{ID: fmt.Sprintf("r%d", i), Zone: "z"}), convey.ShouldBeNil)
			}
			w.Close()
			<-w.Done()

			convey.Convey("Then all of them are handled in order", func() {
				convey.So(rec.ids("z"), convey.ShouldResemble, []string{"r0", "r1", "r2"})
				convey.So(w.Processed(), convey.ShouldEqual, 3)
				convey.So(w.Name(), convey.ShouldEqual, "w-test")
			})
		})

		convey.Convey("When the handler fails the worker keeps going", func() {
			rec.fail = "bad"
			_ = w.Submit(ctx, model.SignalReading{ID: "bad", Zone: "z"})
			_ = w.Submit(ctx, model.SignalReading{ID: "good", Zone: "z"})
			w.Close()
			<-w.Done()
			convey.So(rec.ids("z"), convey.ShouldResemble, []string{"bad", "good"})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over an in-memory queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		rec := newRecorder()
		pool := worker.NewPool(q, rec, worker.WithWorkerCount(4), worker.WithWorkerInboxSize(8))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)
		pool.Start(ctx)

		zones := []string{"ghat-1", "ghat-2", "ghat-3", "ghat-4", "ghat-5"}
		const perZone = 40
		for i := range perZone {
			for _, z := range zones {
				err := q.Enqueue(ctx, model.SignalReading{ID: fmt.Sprintf("%s-%03d", z, i), Zone: z})
				convey.So(err, convey.ShouldBeNil)
			}
		}

		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
		convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)

		convey.Convey("Then every reading was handled exactly once", func() {
			convey.So(rec.total(), convey.ShouldEqual, perZone*len(zones))
		})

		convey.Convey("Then each zone saw its readings in queue order", func() {
			for _, z := range zones {
				ids := rec.ids(z)
				convey.So(ids, convey.ShouldHaveLength, perZone)
				for i, id := range ids {
					convey.So(id, convey.ShouldEqual, fmt.Sprintf("%s-%03d", z, i))
				}
			}
		})

		convey.Convey("Then no zone was ever handled concurrently", func() {
			convey.So(rec.overlap.Load(), convey.ShouldBeFalse)
		})

		convey.Convey("Then the pool reports its routing", func() {
			convey.So(pool.Size(), convey.ShouldEqual, 4)
			convey.So(pool.WorkerFor("ghat-1"), convey.ShouldEqual, pool.WorkerFor("ghat-1"))
		})
	})
}

type chanQueue struct{ ch chan model.SignalReading }

func (c *chanQueue) Dequeue(context.Context) <-chan model.SignalReading { return c.ch }

func TestPoolWithoutClosableQueue(t *testing.T) {
	convey.Convey("Given a queue the pool cannot close", t, func() {
		q := &chanQueue{ch: make(chan model.SignalReading)}
		pool := worker.NewPool(q, worker.HandlerFunc(func(context.Context, model.SignalReading) error { return nil }),
			worker.WithWorkerCount(2))
		pool.Start(context.Background())

		convey.Convey("Shutdown still returns", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
		})
	})
}
