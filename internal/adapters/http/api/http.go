// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/crowdews/internal/adapters/ingest"
	service "github.com/okian/crowdews/internal/app"
	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/internal/domain/risk"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	ReadingDependencies
	AssessDependencies
	ZoneDependencies
	ConfigDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	readingsHandler *ReadingsHandler
	assessHandler   *AssessHandler
	zonesHandler    *ZonesHandler
	configHandler   *ConfigHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, maxHistory int) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		readingsHandler: NewReadingsHandler(deps),
		assessHandler:   NewAssessHandler(deps),
		zonesHandler:    NewZonesHandler(deps, maxHistory),
		configHandler:   NewConfigHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/config", MetricsMiddleware(s.configHandler.HandleGetConfig, "config"))
	mux.HandleFunc("/readings", MetricsMiddleware(s.readingsHandler.HandlePostReading, "readings"))
	mux.HandleFunc("/assess", MetricsMiddleware(s.assessHandler.HandleAssess, "assess"))
	mux.HandleFunc("/status", MetricsMiddleware(s.zonesHandler.HandleStatus, "status"))
	mux.HandleFunc("/history", MetricsMiddleware(s.zonesHandler.HandleHistory, "history"))
	mux.HandleFunc("/zones", MetricsMiddleware(s.zonesHandler.HandleListZones, "zones"))
	mux.HandleFunc("/zones/", MetricsMiddleware(s.zonesHandler.HandleZone, "zone"))
}

type ackResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service and ingestion errors to status codes.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ingest.ErrMalformed):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, ingest.ErrInvalidReading), errors.Is(err, service.ErrInvalidReading):
		writeError(w, http.StatusBadRequest, "invalid_reading", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "limit_exceeded", WrapKind(op, ErrLimitExceeded, err))
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// ReadingDependencies accepts readings for evaluation.
type ReadingDependencies interface {
	Submit(ctx context.Context, r model.SignalReading) (service.SubmitResult, error)
}

// AssessDependencies evaluates readings without side effects.
type AssessDependencies interface {
	Assess(r *model.SignalReading) service.Assessment
}

// ConfigDependencies exposes the active risk model.
type ConfigDependencies interface {
	ModelConfig() risk.Config
}
