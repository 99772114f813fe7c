package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/crowdews/internal/domain/model"
)

// ZoneDependencies reads zone history and resets zones.
type ZoneDependencies interface {
	Latest(ctx context.Context, zone string) (model.Record, error)
	Recent(ctx context.Context, zone string, n int) ([]model.Record, error)
	Zones(ctx context.Context) ([]string, error)
	ResetZone(ctx context.Context, zone string) error
}

// ZonesHandler serves per-zone status and history.
type ZonesHandler struct {
	deps     ZoneDependencies
	maxLimit int
}

// NewZonesHandler creates a new zones handler. maxLimit caps history length.
func NewZonesHandler(deps ZoneDependencies, maxLimit int) *ZonesHandler {
	return &ZonesHandler{deps: deps, maxLimit: maxLimit}
}

type zonesResponse struct {
	Zones []string `json:"zones"`
}

type historyResponse struct {
	Zone    string         `json:"zone"`
	Records []model.Record `json:"records"`
}

// HandleStatus handles GET /status?zone= requests.
func (h *ZonesHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_status"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	zone := r.URL.Query().Get("zone")
	if zone == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	h.writeLatest(w, r, op, zone)
}

// HandleHistory handles GET /history?zone=&n= requests.
func (h *ZonesHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	zone := q.Get("zone")
	if zone == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	n := 0
	if s := q.Get("n"); s != "" {
		var err error
		n, err = strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrLimitExceeded))
			return
		}
	}
	recs, err := h.deps.Recent(r.Context(), zone, n)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Zone: zone, Records: recs})
}

// HandleListZones handles GET /zones requests.
func (h *ZonesHandler) HandleListZones(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_zones"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	zones, err := h.deps.Zones(r.Context())
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, zonesResponse{Zones: zones})
}

// HandleZone handles GET and DELETE /zones/{zone} requests. DELETE resets
// the zone's alert state.
func (h *ZonesHandler) HandleZone(w http.ResponseWriter, r *http.Request) {
	const op = "api.zone"
	zone := strings.TrimPrefix(r.URL.Path, "/zones/")
	if zone == "" || strings.Contains(zone, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.writeLatest(w, r, op, zone)
	case http.MethodDelete:
		if err := h.deps.ResetZone(r.Context(), zone); err != nil {
			writeServiceError(w, op, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (h *ZonesHandler) writeLatest(w http.ResponseWriter, r *http.Request, op, zone string) {
	rec, err := h.deps.Latest(r.Context(), zone)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
