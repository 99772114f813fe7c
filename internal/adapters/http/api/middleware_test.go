package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorClass(t *testing.T) {
	Convey("Given response statuses", t, func() {
		So(errorClass(http.StatusOK), ShouldEqual, "")
		So(errorClass(http.StatusAccepted), ShouldEqual, "")
		So(errorClass(http.StatusBadRequest), ShouldEqual, "client_error")
		So(errorClass(http.StatusNotFound), ShouldEqual, "not_found")
		So(errorClass(http.StatusTooManyRequests), ShouldEqual, "backpressure")
		So(errorClass(http.StatusServiceUnavailable), ShouldEqual, "unavailable")
		So(errorClass(http.StatusInternalServerError), ShouldEqual, "server_error")
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a wrapped handler", t, func() {
		h := MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}, "readings")

		Convey("The handler status passes through", func() {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodPost, "/readings", nil))
			So(rec.Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("Handlers that never write a header report 200", func() {
			sw := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
			_, _ = sw.Write([]byte("ok"))
			So(sw.status, ShouldEqual, http.StatusOK)
		})
	})
}
