package risk

import (
	"math"
	"strings"
)

// Normalization constants.
const (
	thiComfort = 22.0 // raw THI at or below which heat stress is zero
	thiStress  = 32.0 // raw THI at or above which heat stress saturates

	freeFlowSpeed   = 1.2 // m/s; at or above this congestion risk is zero
	speedVarianceUp = 0.5 // (m/s)² that saturates turbulence risk

	pushRateMax  = 10.0
	shoutRateMax = 20.0
	nearFallsMax = 10.0

	densityAmplifier = 0.25

	timeBase     = 0.1
	timeInWindow = 0.5
	timeShoulder = 0.1

	defaultEventIndex = 0.2
)

// Clamp01 bounds x to [0,1]. NaN maps to 0 so the function is total.
func Clamp01(x float64) float64 {
	return clamp(x, 0, 1)
}

// clamp bounds x to [lo,hi]; NaN maps to lo.
func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// THIRaw is the Celsius temperature-humidity index:
// T − (0.55 − 0.0055·RH)·(T − 14.5).
func THIRaw(tempC, rh float64) float64 {
	return tempC - (0.55-0.0055*rh)*(tempC-14.5)
}

// NormalizeTHI maps a raw THI to heat-stress risk. Below ~22 is comfortable,
// above ~30 is stressful.
func NormalizeTHI(raw float64) float64 {
	return Clamp01((raw - thiComfort) / (thiStress - thiComfort))
}

// NormalizeDensity maps persons/m² to risk with four Fruin-style bands,
// continuous at the band edges and saturating at 5 persons/m².
//
//	[0,1]    -> [0,0.15]
//	(1,2]    -> [0.15,0.40]
//	(2,3.5]  -> [0.40,0.75]
//	(3.5,5]  -> [0.75,1.0]
func NormalizeDensity(d float64) float64 {
	d = clamp(d, 0, math.MaxFloat64)
	switch {
	case d <= 1.0:
		return 0.15 * d
	case d <= 2.0:
		return 0.15 + 0.25*(d-1.0)
	case d <= 3.5:
		return 0.40 + 0.35*((d-2.0)/1.5)
	default:
		return 0.75 + 0.25*math.Min(1.0, (d-3.5)/1.5)
	}
}

// NormalizeSpeed maps mean speed to congestion risk: slower is riskier.
func NormalizeSpeed(speed float64) float64 {
	return 1 - clamp(speed, 0, freeFlowSpeed)/freeFlowSpeed
}

// NormalizeSpeedVariance maps speed variance to turbulence risk.
func NormalizeSpeedVariance(v float64) float64 {
	return Clamp01(v / speedVarianceUp)
}

// NormalizeAnxiety combines push, shout and near-fall rates into an
// anxiety proxy.
func NormalizeAnxiety(push, shout, nearFalls float64) float64 {
	pr := Clamp01(push / pushRateMax)
	sr := Clamp01(shout / shoutRateMax)
	nf := Clamp01(nearFalls / nearFallsMax)
	return Clamp01(0.4*pr + 0.3*sr + 0.3*nf)
}

// CAI is the crowd anxiety index. Density amplifies anxiety-driven risk.
func CAI(push, shout, nearFalls, density float64) float64 {
	return Clamp01(NormalizeAnxiety(push, shout, nearFalls) + densityAmplifier*NormalizeDensity(density))
}

// CDI is the crowd dynamics index: density 50%, turbulence 30%, low speed 20%.
func CDI(density, speed, speedVariance float64) float64 {
	return Clamp01(0.5*NormalizeDensity(density) + 0.3*NormalizeSpeedVariance(speedVariance) + 0.2*NormalizeSpeed(speed))
}

// Window is a named half-open [Start,End) range of hours with elevated risk.
type Window struct {
	Name  string `json:"name"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Contains reports whether hour falls inside the window.
func (w Window) Contains(hour int) bool {
	return w.Start <= hour && hour < w.End
}

// DefaultWindows returns the pre-dawn, morning and evening peak windows.
func DefaultWindows() []Window {
	return []Window{
		{Name: "pre_dawn", Start: 3, End: 6},
		{Name: "morning", Start: 6, End: 10},
		{Name: "evening", Start: 17, End: 20},
	}
}

// TI is the time index for hour. Each window containing hour adds 0.5 to a
// base of 0.1; an hour exactly one away from any window boundary gets a
// single extra 0.1 shoulder bump.
func TI(hour int, windows []Window) float64 {
	score := timeBase
	shoulder := false
	for _, w := range windows {
		if w.Contains(hour) {
			score += timeInWindow
		}
		if absInt(hour-w.Start) == 1 || absInt(hour-w.End) == 1 {
			shoulder = true
		}
	}
	if shoulder {
		score += timeShoulder
	}
	return Clamp01(score)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// eventIndex maps ritual phases and live scenario names to EI.
var eventIndex = map[string]float64{
	// ritual phases
	"normal":      0.15,
	"pre_event":   0.15,
	"post_event":  0.25,
	"snan_window": 0.65,
	"shahi_snan":  0.9,
	"procession":  0.7,

	// live monitoring scenarios
	"morning_rush":        0.45,
	"evening_rush":        0.5,
	"festival_peak":       0.8,
	"emergency_situation": 0.95,
}

// EI is the event index for a phase or scenario label. Lookup is
// case-insensitive but otherwise exact; unknown labels yield 0.2.
func EI(phase string) float64 {
	if v, ok := eventIndex[strings.ToLower(phase)]; ok {
		return v
	}
	return defaultEventIndex
}

// KnownPhases returns a copy of the phase table.
func KnownPhases() map[string]float64 {
	out := make(map[string]float64, len(eventIndex))
	for k, v := range eventIndex {
		out[k] = v
	}
	return out
}
