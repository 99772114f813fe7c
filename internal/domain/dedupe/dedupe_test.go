package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/crowdews/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a reading ID is recorded for the first time", func() {
			seen := d.SeenAndRecord(ctx, "ghat-1|2025-01-14T08:00:00Z")

			Convey("Then it is reported as new", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And a replay is reported as seen", func() {
				So(d.SeenAndRecord(ctx, "ghat-1|2025-01-14T08:00:00Z"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When an ID is unrecorded", func() {
			d.SeenAndRecord(ctx, "r-1")
			d.Unrecord(ctx, "r-1")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "r-1"), ShouldBeFalse)
			})
		})

		Convey("When an unknown ID is unrecorded nothing changes", func() {
			d.SeenAndRecord(ctx, "r-1")
			d.Unrecord(ctx, "r-2")
			So(d.Size(), ShouldEqual, 1)
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, id := range []string{"r-1", "r-2", "r-3", "r-4"} {
			So(d.SeenAndRecord(ctx, id), ShouldBeFalse)
		}

		Convey("Then the oldest ID was forgotten first", func() {
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "r-4"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "r-3"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "r-1"), ShouldBeFalse)
		})

		Convey("Then unrecording frees a slot without evicting", func() {
			d.Unrecord(ctx, "r-3")
			So(d.SeenAndRecord(ctx, "r-5"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "r-2"), ShouldBeTrue)
			So(d.Size(), ShouldEqual, 3)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := range 1000 {
			So(d.SeenAndRecord(ctx, fmt.Sprintf("r-%d", i)), ShouldBeFalse)
		}
		So(d.Size(), ShouldEqual, 1000)
		So(d.SeenAndRecord(ctx, "r-0"), ShouldBeTrue)
	})
}

func TestDedupeConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Given concurrent submitters of the same IDs", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10000))
		const workers = 8
		const ids = 200

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := range ids {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("r-%d", j)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then every ID is admitted exactly once", func() {
			So(fresh, ShouldEqual, ids)
			So(d.Size(), ShouldEqual, ids)
		})
	})
}
