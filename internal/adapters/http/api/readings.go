package api

import (
	"net/http"

	"github.com/okian/crowdews/internal/adapters/ingest"
)

// ReadingsHandler handles reading submissions.
type ReadingsHandler struct {
	deps ReadingDependencies
}

// NewReadingsHandler creates a new readings handler.
func NewReadingsHandler(deps ReadingDependencies) *ReadingsHandler {
	return &ReadingsHandler{deps: deps}
}

// HandlePostReading handles POST /readings requests.
func (h *ReadingsHandler) HandlePostReading(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_reading"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	reading, err := ingest.Decode(r.Body)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	res, err := h.deps.Submit(r.Context(), reading)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", ID: res.ID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ID: res.ID})
}

// AssessHandler handles stateless what-if evaluations.
type AssessHandler struct {
	deps AssessDependencies
}

// NewAssessHandler creates a new assess handler.
func NewAssessHandler(deps AssessDependencies) *AssessHandler {
	return &AssessHandler{deps: deps}
}

// HandleAssess handles POST /assess requests.
func (h *AssessHandler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	const op = "api.assess"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	reading, err := ingest.Decode(r.Body)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Assess(&reading))
}
