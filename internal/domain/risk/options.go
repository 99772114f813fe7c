package risk

import (
	"slices"

	"github.com/okian/crowdews/internal/domain/model"
)

// Option customizes a Config built by NewConfig.
type Option func(*Config)

// WithWeights replaces the composite weights.
func WithWeights(w Weights) Option {
	return func(c *Config) {
		c.weights = w.clone()
	}
}

// WithThresholds replaces the level thresholds.
func WithThresholds(t Thresholds) Option {
	return func(c *Config) {
		c.thresholds = t
	}
}

// WithUpHysteresis replaces the escalation table.
func WithUpHysteresis(h Hysteresis) Option {
	return func(c *Config) {
		c.up = h.clone()
	}
}

// WithDownHysteresis replaces the de-escalation table.
func WithDownHysteresis(h Hysteresis) Option {
	return func(c *Config) {
		c.down = h.clone()
	}
}

// WithWindows replaces the time-index risk windows.
func WithWindows(ws []Window) Option {
	return func(c *Config) {
		c.windows = slices.Clone(ws)
	}
}

// WithAlertSource selects the risk value that drives the engine.
func WithAlertSource(src AlertSource) Option {
	return func(c *Config) {
		c.source = src
	}
}

// WithStepwiseDescent controls whether a drop of more than one level is
// walked one adjacent level at a time, each step paying its own down count.
// When disabled the engine jumps straight to the desired level and looks up
// the direct pair, which defaults to a single tick.
func WithStepwiseDescent(enabled bool) Option {
	return func(c *Config) {
		c.stepwiseDescent = enabled
	}
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithState resumes the engine from a persisted state. Invalid levels are
// ignored and negative counters are reset.
func WithState(s model.AlertState) EngineOption {
	return func(e *Engine) {
		if !s.Level.Valid() {
			return
		}
		e.state = model.AlertState{Level: s.Level, Up: max(s.Up, 0), Down: max(s.Down, 0)}
	}
}
