package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/okian/crowdews/internal/simulate"
	"github.com/okian/crowdews/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func execute(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestGenerate(t *testing.T) {
	convey.Convey("Given the generate command", t, func() {
		convey.Convey("It writes one day of records to stdout", func() {
			out, errOut, err := execute("generate", "--days", "1", "--seed", "7")
			convey.So(err, convey.ShouldBeNil)

			rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
			convey.So(err, convey.ShouldBeNil)
			convey.So(rows, convey.ShouldHaveLength, ticksPerDay+1)
			convey.So(rows[0], convey.ShouldResemble, simulate.Columns)
			convey.So(errOut, convey.ShouldContainSubstring, "alert distribution over 288 records")
			convey.So(errOut, convey.ShouldContainSubstring, "green")
		})

		convey.Convey("It writes to a file when asked", func() {
			path := filepath.Join(t.TempDir(), "ews.csv")
			_, _, err := execute("generate", "--days", "1", "--out", path, "--alert-source", "extended")
			convey.So(err, convey.ShouldBeNil)
			data, err := os.ReadFile(path)
			convey.So(err, convey.ShouldBeNil)
			convey.So(strings.HasPrefix(string(data), "timestamp,phase,"), convey.ShouldBeTrue)
		})

		convey.Convey("The same seed reproduces the dataset", func() {
			a, _, err := execute("generate", "--days", "1", "--mode", "realtime")
			convey.So(err, convey.ShouldBeNil)
			b, _, err := execute("generate", "--days", "1", "--mode", "realtime")
			convey.So(err, convey.ShouldBeNil)
			convey.So(a, convey.ShouldEqual, b)
		})

		convey.Convey("Invalid flags are rejected", func() {
			_, _, err := execute("generate", "--mode", "bogus")
			convey.So(err, convey.ShouldNotBeNil)
			_, _, err = execute("generate", "--days", "0")
			convey.So(err, convey.ShouldNotBeNil)
			_, _, err = execute("generate", "--start", "yesterday")
			convey.So(err, convey.ShouldNotBeNil)
			_, _, err = execute("generate", "--alert-source", "bogus")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestStream(t *testing.T) {
	convey.Convey("Given a service accepting readings", t, func() {
		var posts atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/readings" {
				http.NotFound(w, r)
				return
			}
			posts.Add(1)
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"accepted"}`))
		}))
		defer srv.Close()

		convey.Convey("A burst posts count readings per zone", func() {
			out, _, err := execute("stream", "--url", srv.URL, "--zones", "ghat-1,ghat-2", "--count", "3")
			convey.So(err, convey.ShouldBeNil)
			convey.So(posts.Load(), convey.ShouldEqual, 6)
			convey.So(out, convey.ShouldContainSubstring, "submitted 6 readings")
			convey.So(out, convey.ShouldContainSubstring, "accepted: 6")
		})

		convey.Convey("Failures make the command fail", func() {
			_, _, err := execute("stream", "--url", srv.URL+"/missing", "--count", "2")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("An empty zone list is rejected", func() {
			_, _, err := execute("stream", "--url", srv.URL, "--zones", "")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
