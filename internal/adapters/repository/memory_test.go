package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/crowdews/internal/adapters/repository"
	"github.com/okian/crowdews/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2025, 1, 14, 4, 0, 0, 0, time.UTC)

func rec(zone string, i int) model.Record {
	return model.Record{
		ID:        fmt.Sprintf("%s-%d", zone, i),
		Zone:      zone,
		Timestamp: base.Add(time.Duration(i) * 5 * time.Minute),
		Risk:      float64(i) / 100,
		Alert:     model.Yellow,
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty memory store", t, func() {
		s := repository.NewMemoryStore(repository.WithHistoryLimit(5))
		So(s.Limit(), ShouldEqual, 5)

		Convey("Latest of an unknown zone is not found", func() {
			_, err := s.Latest(ctx, "ghat-1")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Recent of an unknown zone is empty", func() {
			out, err := s.Recent(ctx, "ghat-1", 10)
			So(err, ShouldBeNil)
			So(out, ShouldBeEmpty)
		})

		Convey("Invalid zones and limits are rejected", func() {
			So(errors.Is(s.Append(ctx, rec("a/b", 0)), repository.ErrInvalidZone), ShouldBeTrue)
			So(errors.Is(s.Append(ctx, rec("", 0)), repository.ErrInvalidZone), ShouldBeTrue)
			_, err := s.Recent(ctx, "ghat-1", 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("When records are appended", func() {
			for i := range 3 {
				So(s.Append(ctx, rec("ghat-1", i)), ShouldBeNil)
			}
			So(s.Append(ctx, rec("ghat-0", 0)), ShouldBeNil)

			Convey("Then Latest returns the newest", func() {
				got, err := s.Latest(ctx, "ghat-1")
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, "ghat-1-2")
			})

			Convey("Then Recent is ordered oldest to newest", func() {
				got, err := s.Recent(ctx, "ghat-1", 2)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 2)
				So(got[0].ID, ShouldEqual, "ghat-1-1")
				So(got[1].ID, ShouldEqual, "ghat-1-2")
			})

			Convey("Then zones are listed in order and counted", func() {
				zones, err := s.Zones(ctx)
				So(err, ShouldBeNil)
				So(zones, ShouldResemble, []string{"ghat-0", "ghat-1"})
				n, err := s.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 4)
			})
		})

		Convey("When a zone overflows its ring", func() {
			for i := range 12 {
				So(s.Append(ctx, rec("ghat-1", i)), ShouldBeNil)
			}

			Convey("Then only the newest records remain", func() {
				got, err := s.Recent(ctx, "ghat-1", 100)
				So(err, ShouldBeNil)
				So(got, ShouldHaveLength, 5)
				for i, r := range got {
					So(r.ID, ShouldEqual, fmt.Sprintf("ghat-1-%d", 7+i))
				}
				n, _ := s.Count(ctx)
				So(n, ShouldEqual, 5)
			})
		})

		Convey("When closed it refuses writes but still serves reads", func() {
			So(s.Append(ctx, rec("ghat-1", 0)), ShouldBeNil)
			So(s.Close(), ShouldBeNil)
			So(errors.Is(s.Append(ctx, rec("ghat-1", 1)), repository.ErrClosed), ShouldBeTrue)
			_, err := s.Latest(ctx, "ghat-1")
			So(err, ShouldBeNil)
		})
	})

	Convey("Concurrent appends to different zones are all kept", t, func() {
		s := repository.NewMemoryStore()
		var wg sync.WaitGroup
		for z := range 8 {
			wg.Add(1)
			go func(zone string) {
				defer wg.Done()
				for i := range 50 {
					_ = s.Append(ctx, rec(zone, i))
				}
			}(fmt.Sprintf("zone-%d", z))
		}
		wg.Wait()
		n, err := s.Count(ctx)
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 400)
	})
}
