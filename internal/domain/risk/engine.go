package risk

import "github.com/okian/crowdews/internal/domain/model"

// Engine is the hysteresis alert state machine for one monitored zone.
// Step is the only mutator; callers must serialize calls on one instance.
type Engine struct {
	cfg   Config
	state model.AlertState
}

// NewEngine returns an engine at green with zeroed counters unless a
// state is supplied with WithState.
func NewEngine(cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Level returns the committed alert level.
func (e *Engine) Level() model.Level { return e.state.Level }

// State returns a copy of the engine state.
func (e *Engine) State() model.AlertState { return e.state }

// Step feeds one risk value and returns the (possibly unchanged) level.
// Out-of-range and NaN values are clamped first.
func (e *Engine) Step(risk float64) model.Level {
	desired := e.cfg.thresholds.Classify(Clamp01(risk))
	cur := e.state.Level

	switch {
	case desired == cur:
		e.state.Up, e.state.Down = 0, 0

	case desired > cur:
		e.state.Up++
		e.state.Down = 0
		if e.state.Up >= e.cfg.up.Required(model.Transition{From: cur, To: desired}) {
			e.commit(desired)
		}

	default:
		e.state.Down++
		e.state.Up = 0
		target := desired
		if e.cfg.stepwiseDescent {
			target = cur - 1
		}
		if e.state.Down >= e.cfg.down.Required(model.Transition{From: cur, To: target}) {
			e.commit(target)
		}
	}
	return e.state.Level
}

func (e *Engine) commit(l model.Level) {
	e.state = model.AlertState{Level: l}
}
