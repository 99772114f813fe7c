package risk

import "errors"

// Sentinel error kinds for model configuration. Every validation error
// wraps ErrInvalidConfig and one of the more specific kinds.
var (
	ErrInvalidConfig      = errors.New("invalid risk model config")
	ErrInvalidWeights     = errors.New("invalid weights")
	ErrInvalidThresholds  = errors.New("invalid thresholds")
	ErrInvalidHysteresis  = errors.New("invalid hysteresis table")
	ErrInvalidWindow      = errors.New("invalid risk window")
	ErrInvalidAlertSource = errors.New("invalid alert source")
)
