package risk

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/okian/crowdews/internal/domain/model"
)

// weightTolerance is the allowed deviation of the weight sum from 1.
const weightTolerance = 1e-3

// Weights maps each index to its share of the composite risk.
type Weights map[Index]float64

// DefaultWeights returns the calibrated composite weights.
func DefaultWeights() Weights {
	return Weights{
		IndexCAI: 0.18841,
		IndexCDI: 0.22613,
		IndexTHI: 0.12954,
		IndexTI:  0.21530,
		IndexEI:  0.24063,
	}
}

// WeightsFromMap converts string keys as found in configuration files.
// Keys are matched case-insensitively.
func WeightsFromMap(m map[string]float64) Weights {
	w := make(Weights, len(m))
	for k, v := range m {
		w[Index(strings.ToUpper(strings.TrimSpace(k)))] = v
	}
	return w
}

func (w Weights) clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Validate checks that exactly the five required indices are weighted,
// each weight is non-negative and the sum is 1 within tolerance.
func (w Weights) Validate() error {
	var sum float64
	for _, k := range RequiredIndices() {
		v, ok := w[k]
		if !ok {
			return fmt.Errorf("%w: %w: missing %s", ErrInvalidConfig, ErrInvalidWeights, k)
		}
		if math.IsNaN(v) || v < 0 {
			return fmt.Errorf("%w: %w: %s must be >= 0, got %v", ErrInvalidConfig, ErrInvalidWeights, k, v)
		}
		sum += v
	}
	if len(w) != len(RequiredIndices()) {
		for k := range w {
			if !slices.Contains(RequiredIndices(), k) {
				return fmt.Errorf("%w: %w: unknown index %q", ErrInvalidConfig, ErrInvalidWeights, k)
			}
		}
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: %w: sum is %.5f, want 1", ErrInvalidConfig, ErrInvalidWeights, sum)
	}
	return nil
}

// Thresholds are the inclusive lower bounds of yellow, orange and red.
type Thresholds struct {
	Yellow float64 `json:"yellow"`
	Orange float64 `json:"orange"`
	Red    float64 `json:"red"`
}

// DefaultThresholds returns 0.40 / 0.60 / 0.75.
func DefaultThresholds() Thresholds {
	return Thresholds{Yellow: 0.40, Orange: 0.60, Red: 0.75}
}

// Validate requires 0 < yellow < orange < red < 1.
func (t Thresholds) Validate() error {
	if !(0 < t.Yellow && t.Yellow < t.Orange && t.Orange < t.Red && t.Red < 1) {
		return fmt.Errorf("%w: %w: need 0 < yellow(%v) < orange(%v) < red(%v) < 1",
			ErrInvalidConfig, ErrInvalidThresholds, t.Yellow, t.Orange, t.Red)
	}
	return nil
}

// Classify returns the level a risk value maps to. Bounds are inclusive.
func (t Thresholds) Classify(risk float64) model.Level {
	switch {
	case risk >= t.Red:
		return model.Red
	case risk >= t.Orange:
		return model.Orange
	case risk >= t.Yellow:
		return model.Yellow
	default:
		return model.Green
	}
}

// Hysteresis maps a transition to the number of consecutive ticks it needs.
// A transition that is absent needs a single tick.
type Hysteresis map[model.Transition]int

// DefaultUp is the escalation table: fast to red.
func DefaultUp() Hysteresis {
	return Hysteresis{
		{From: model.Green, To: model.Yellow}:  2,
		{From: model.Yellow, To: model.Orange}: 2,
		{From: model.Orange, To: model.Red}:    1,
	}
}

// DefaultDown is the de-escalation table: slow everywhere.
func DefaultDown() Hysteresis {
	return Hysteresis{
		{From: model.Red, To: model.Orange}:    2,
		{From: model.Orange, To: model.Yellow}: 2,
		{From: model.Yellow, To: model.Green}:  2,
	}
}

// ParseHysteresis converts a {"from->to": n} table from configuration.
func ParseHysteresis(m map[string]int) (Hysteresis, error) {
	h := make(Hysteresis, len(m))
	for k, v := range m {
		tr, err := model.ParseTransition(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %w: %w", ErrInvalidConfig, ErrInvalidHysteresis, err)
		}
		h[tr] = v
	}
	return h, nil
}

// Required returns the tick count for t, defaulting to 1.
func (h Hysteresis) Required(t model.Transition) int {
	if n, ok := h[t]; ok {
		return n
	}
	return 1
}

// StringMap renders the table with "from->to" keys.
func (h Hysteresis) StringMap() map[string]int {
	out := make(map[string]int, len(h))
	for k, v := range h {
		out[k.String()] = v
	}
	return out
}

func (h Hysteresis) clone() Hysteresis {
	out := make(Hysteresis, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func (h Hysteresis) validate(upward bool) error {
	for tr, n := range h {
		if !tr.From.Valid() || !tr.To.Valid() || tr.From == tr.To || tr.Escalates() != upward {
			dir := "de-escalate"
			if upward {
				dir = "escalate"
			}
			return fmt.Errorf("%w: %w: %s must %s", ErrInvalidConfig, ErrInvalidHysteresis, tr, dir)
		}
		if n < 1 {
			return fmt.Errorf("%w: %w: %s needs a positive count, got %d", ErrInvalidConfig, ErrInvalidHysteresis, tr, n)
		}
	}
	return nil
}

func validateWindows(ws []Window) error {
	for _, w := range ws {
		if w.Start < 0 || w.End > 24 || w.Start >= w.End {
			return fmt.Errorf("%w: %w: %q [%d,%d) must satisfy 0 <= start < end <= 24",
				ErrInvalidConfig, ErrInvalidWindow, w.Name, w.Start, w.End)
		}
	}
	return nil
}

// AlertSource selects which risk value drives the alert engine.
type AlertSource string

const (
	AlertSourceComposite AlertSource = "composite"
	AlertSourceExtended  AlertSource = "extended"
)

// ParseAlertSource accepts "composite" or "extended"; empty means composite.
func ParseAlertSource(s string) (AlertSource, error) {
	switch src := AlertSource(strings.ToLower(strings.TrimSpace(s))); src {
	case "":
		return AlertSourceComposite, nil
	case AlertSourceComposite, AlertSourceExtended:
		return src, nil
	default:
		return "", fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ErrInvalidAlertSource, s)
	}
}

// Config is the validated, immutable model configuration. Copies share no
// mutable state with the options they were built from: accessors return
// fresh copies of the tables.
type Config struct {
	weights         Weights
	thresholds      Thresholds
	up              Hysteresis
	down            Hysteresis
	windows         []Window
	source          AlertSource
	stepwiseDescent bool
}

// DefaultConfig returns the calibrated defaults. It is always valid.
func DefaultConfig() Config {
	return Config{
		weights:         DefaultWeights(),
		thresholds:      DefaultThresholds(),
		up:              DefaultUp(),
		down:            DefaultDown(),
		windows:         DefaultWindows(),
		source:          AlertSourceComposite,
		stepwiseDescent: true,
	}
}

// NewConfig applies opts over the defaults and validates the result.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every part of the configuration.
func (c Config) Validate() error {
	if err := c.weights.Validate(); err != nil {
		return err
	}
	if err := c.thresholds.Validate(); err != nil {
		return err
	}
	if err := c.up.validate(true); err != nil {
		return err
	}
	if err := c.down.validate(false); err != nil {
		return err
	}
	if c.stepwiseDescent {
		// stepwise descent only ever asks for adjacent pairs
		for tr := range c.down {
			if tr.Steps() != 1 {
				return fmt.Errorf("%w: %w: %s skips levels; stepwise descent only uses adjacent pairs",
					ErrInvalidConfig, ErrInvalidHysteresis, tr)
			}
		}
	}
	if err := validateWindows(c.windows); err != nil {
		return err
	}
	if c.source != AlertSourceComposite && c.source != AlertSourceExtended {
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ErrInvalidAlertSource, c.source)
	}
	return nil
}

// Weights returns a copy of the composite weights.
func (c Config) Weights() Weights { return c.weights.clone() }

// Thresholds returns the level boundaries.
func (c Config) Thresholds() Thresholds { return c.thresholds }

// Up returns a copy of the escalation table.
func (c Config) Up() Hysteresis { return c.up.clone() }

// Down returns a copy of the de-escalation table.
func (c Config) Down() Hysteresis { return c.down.clone() }

// Windows returns a copy of the elevated-risk hour windows.
func (c Config) Windows() []Window { return slices.Clone(c.windows) }

// AlertSource returns the score that drives the engine.
func (c Config) AlertSource() AlertSource { return c.source }

// StepwiseDescent reports whether de-escalation walks one level per commit.
func (c Config) StepwiseDescent() bool { return c.stepwiseDescent }
