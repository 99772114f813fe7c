package api

import (
	"net/http"

	"github.com/okian/crowdews/internal/domain/risk"
)

// ConfigHandler exposes the active risk model.
type ConfigHandler struct {
	deps ConfigDependencies
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(deps ConfigDependencies) *ConfigHandler {
	return &ConfigHandler{deps: deps}
}

type modelResponse struct {
	Weights         risk.Weights       `json:"weights"`
	Thresholds      risk.Thresholds    `json:"thresholds"`
	HysteresisUp    map[string]int     `json:"hysteresis_up"`
	HysteresisDown  map[string]int     `json:"hysteresis_down"`
	Windows         []risk.Window      `json:"windows"`
	AlertSource     risk.AlertSource   `json:"alert_source"`
	StepwiseDescent bool               `json:"stepwise_descent"`
	Phases          map[string]float64 `json:"phases"`
}

// HandleGetConfig handles GET /config requests.
func (h *ConfigHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	cfg := h.deps.ModelConfig()
	writeJSON(w, http.StatusOK, modelResponse{
		Weights:         cfg.Weights(),
		Thresholds:      cfg.Thresholds(),
		HysteresisUp:    cfg.Up().StringMap(),
		HysteresisDown:  cfg.Down().StringMap(),
		Windows:         cfg.Windows(),
		AlertSource:     cfg.AlertSource(),
		StepwiseDescent: cfg.StepwiseDescent(),
		Phases:          risk.KnownPhases(),
	})
}
