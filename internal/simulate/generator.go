// Package simulate produces synthetic crowd readings for demos, load tests
// and offline datasets.
package simulate

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/okian/crowdews/internal/domain/model"
)

// Mode selects how scenarios are chosen.
type Mode string

const (
	// ModeRealtime picks a scenario from the hour of day with occasional
	// festival peaks and emergencies.
	ModeRealtime Mode = "realtime"
	// ModeFestival follows the seven-day ritual calendar starting at the
	// generator's start time.
	ModeFestival Mode = "festival"
)

// Scenario names. They double as phase labels.
const (
	Normal       = "normal"
	MorningRush  = "morning_rush"
	EveningRush  = "evening_rush"
	FestivalPeak = "festival_peak"
	Emergency    = "emergency_situation"
	PreEvent     = "pre_event"
	ShahiSnan    = "shahi_snan"
	SnanWindow   = "snan_window"
	Procession   = "procession"
	PostEvent    = "post_event"
)

const (
	festivalPeakP = 0.1
	emergencyP    = 0.05
)

// Step is the interval between consecutive generated ticks.
const Step = 5 * time.Minute

// FestivalStart is the first tick of the festival calendar.
var FestivalStart = time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC)

// profile is the mean and noise of every signal for one scenario. Rate and
// behavior signals also move with the time factor.
type profile struct {
	density, densitySD     float64
	speed, speedSD         float64
	speedVar, speedVarSD   float64
	push, pushSD           float64
	shout, shoutSD         float64
	nearFalls, nearFallsSD float64
	ati, atiSD             float64
	sni, sniSD             float64
	pci, pciSD             float64
	intensity              float64
}

var realtimeProfiles = map[string]profile{
	Normal: {
		density: 1.2, densitySD: 0.3, speed: 1.0, speedSD: 0.15, speedVar: 0.04, speedVarSD: 0.02,
		push: 0.8, pushSD: 0.6, shout: 2, shoutSD: 1.5, nearFalls: 0.3, nearFallsSD: 0.3,
		ati: 0.3, atiSD: 0.12, sni: 0.4, sniSD: 0.12, pci: 0.6, pciSD: 0.12, intensity: 0.1,
	},
	MorningRush: {
		density: 2.5, densitySD: 0.4, speed: 0.6, speedSD: 0.2, speedVar: 0.1, speedVarSD: 0.04,
		push: 4, pushSD: 2, shout: 8, shoutSD: 3, nearFalls: 2, nearFallsSD: 1.5,
		ati: 0.6, atiSD: 0.18, sni: 0.7, sniSD: 0.12, pci: 0.4, pciSD: 0.12, intensity: 0.4,
	},
	EveningRush: {
		density: 2.5, densitySD: 0.4, speed: 0.6, speedSD: 0.2, speedVar: 0.1, speedVarSD: 0.04,
		push: 4, pushSD: 2, shout: 8, shoutSD: 3, nearFalls: 2, nearFallsSD: 1.5,
		ati: 0.6, atiSD: 0.18, sni: 0.7, sniSD: 0.12, pci: 0.4, pciSD: 0.12, intensity: 0.5,
	},
	FestivalPeak: {
		density: 3.5, densitySD: 0.6, speed: 0.3, speedSD: 0.15, speedVar: 0.15, speedVarSD: 0.06,
		push: 8, pushSD: 3, shout: 15, shoutSD: 4, nearFalls: 5, nearFallsSD: 2,
		ati: 0.8, atiSD: 0.12, sni: 0.85, sniSD: 0.1, pci: 0.2, pciSD: 0.1, intensity: 0.8,
	},
	Emergency: {
		density: 4.0, densitySD: 0.5, speed: 0.1, speedSD: 0.1, speedVar: 0.2, speedVarSD: 0.08,
		push: 12, pushSD: 4, shout: 20, shoutSD: 6, nearFalls: 8, nearFallsSD: 3,
		ati: 0.9, atiSD: 0.08, sni: 0.95, sniSD: 0.05, pci: 0.05, pciSD: 0.05, intensity: 0.9,
	},
}

var festivalProfiles = map[string]profile{
	ShahiSnan: {
		density: 3.5, densitySD: 0.5, speed: 0.2, speedSD: 0.1, speedVar: 0.15, speedVarSD: 0.05,
		push: 8, pushSD: 2, shout: 12, shoutSD: 3, nearFalls: 6, nearFallsSD: 2,
		ati: 0.8, atiSD: 0.1, sni: 0.9, sniSD: 0.05, pci: 0.1, pciSD: 0.05,
	},
	SnanWindow: {
		density: 2.5, densitySD: 0.4, speed: 0.5, speedSD: 0.15, speedVar: 0.08, speedVarSD: 0.03,
		push: 4, pushSD: 1.5, shout: 6, shoutSD: 2, nearFalls: 2, nearFallsSD: 1,
		ati: 0.6, atiSD: 0.15, sni: 0.7, sniSD: 0.1, pci: 0.3, pciSD: 0.1,
	},
	Procession: {
		density: 2.0, densitySD: 0.3, speed: 0.8, speedSD: 0.2, speedVar: 0.12, speedVarSD: 0.04,
		push: 3, pushSD: 1, shout: 8, shoutSD: 2, nearFalls: 1, nearFallsSD: 0.5,
		ati: 0.5, atiSD: 0.1, sni: 0.6, sniSD: 0.1, pci: 0.4, pciSD: 0.1,
	},
	PreEvent: {
		density: 1.0, densitySD: 0.2, speed: 1.0, speedSD: 0.1, speedVar: 0.03, speedVarSD: 0.01,
		push: 0.5, pushSD: 0.3, shout: 1, shoutSD: 0.5, nearFalls: 0.2, nearFallsSD: 0.1,
		ati: 0.2, atiSD: 0.1, sni: 0.3, sniSD: 0.1, pci: 0.7, pciSD: 0.1,
	},
}

// Generator produces readings for one zone. It is deterministic for a
// given seed and sequence of timestamps, and not safe for concurrent use.
type Generator struct {
	zone  string
	mode  Mode
	start time.Time
	seed  uint64
	rng   *rand.Rand
	next  time.Time
}

// NewGenerator creates a generator for zone.
func NewGenerator(zone string, opts ...Option) *Generator {
	g := &Generator{
		zone:  zone,
		mode:  ModeRealtime,
		start: FestivalStart,
		seed:  1,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.rng = rand.New(rand.NewPCG(g.seed, g.seed^0x9e3779b97f4a7c15))
	g.next = g.start
	return g
}

// Zone returns the zone the generator produces readings for.
func (g *Generator) Zone() string { return g.zone }

// Mode returns the scenario mode.
func (g *Generator) Mode() Mode { return g.mode }

// Next returns the reading for the generator's clock and advances it by Step.
func (g *Generator) Next() model.SignalReading {
	r := g.At(g.next)
	g.next = g.next.Add(Step)
	return r
}

// At returns a reading timestamped ts.
func (g *Generator) At(ts time.Time) model.SignalReading {
	if g.mode == ModeFestival {
		return g.festival(ts)
	}
	return g.realtime(ts)
}

// Phase returns the festival calendar phase at ts: two days before the
// main bathing day, the bathing day itself (peak between 03:00 and 10:00),
// a procession day, then the post-event period.
func (g *Generator) Phase(ts time.Time) string {
	day := int(ts.Sub(truncateDay(g.start)).Hours() / 24)
	hour := ts.Hour()
	switch {
	case day < 2:
		return PreEvent
	case day == 2 && hour >= 3 && hour <= 10:
		return ShahiSnan
	case day == 2:
		return SnanWindow
	case day == 3:
		return Procession
	default:
		return PostEvent
	}
}

// scenario picks a realtime scenario for hour.
func (g *Generator) scenario(hour int) string {
	switch {
	case hour >= 6 && hour <= 10:
		return MorningRush
	case hour >= 17 && hour <= 21:
		return EveningRush
	case g.rng.Float64() < festivalPeakP:
		return FestivalPeak
	case g.rng.Float64() < emergencyP:
		return Emergency
	default:
		return Normal
	}
}

func (g *Generator) realtime(ts time.Time) model.SignalReading {
	name := g.scenario(ts.Hour())
	p := realtimeProfiles[name]
	hour := float64(ts.Hour())
	minute := float64(ts.Minute())

	temp := 20 + 10*math.Sin(2*math.Pi*hour/24) +
		g.gauss(0, 4) + 2*math.Sin(2*math.Pi*minute/60) + 8*p.intensity
	temp = clamp(temp, 5, 40)
	rh := clamp(70-(temp-20)*2+g.gauss(0, 8)+5*math.Cos(2*math.Pi*minute/30), 30, 95)

	tf := (math.Sin(2*math.Pi*minute/15)+math.Cos(2*math.Pi*float64(ts.Second())/30))*0.4 + g.gauss(0, 0.3)
	atf := math.Abs(tf)
	r := g.sample(ts, name, temp, rh, &p)

	// rates and turbulence grow with the magnitude of the time factor,
	// scaled by scenario
	k := rateScale[name]
	r.Density += tf * k.density
	r.Speed += tf * k.speed
	r.SpeedVariance += atf * k.speedVar
	r.PushRate += atf * k.push
	r.ShoutRate += atf * k.shout
	r.NearFalls += atf * k.nearFalls
	r.Attitude += tf * k.ati
	r.SubjectiveNorm += tf * k.sni
	r.PerceivedControl -= atf * k.pci
	return clampReading(r, 25, 30, 15)
}

type scale struct {
	density, speed, speedVar, push, shout, nearFalls, ati, sni, pci float64
}

var rateScale = map[string]scale{
	Normal:       {density: 0.2, speed: 0.1, speedVar: 0.01, push: 0.4, shout: 1, nearFalls: 0.2, ati: 0.08, sni: 0.06, pci: 0.05},
	MorningRush:  {density: 0.3, speed: 0.1, speedVar: 0.03, push: 1.5, shout: 2, nearFalls: 1, ati: 0.1, sni: 0.08, pci: 0.05},
	EveningRush:  {density: 0.3, speed: 0.1, speedVar: 0.03, push: 1.5, shout: 2, nearFalls: 1, ati: 0.1, sni: 0.08, pci: 0.05},
	FestivalPeak: {density: 0.4, speed: 0.1, speedVar: 0.04, push: 2, shout: 3, nearFalls: 1.5, ati: 0.08, sni: 0.06, pci: 0.05},
	Emergency:    {density: 0.5, speed: 0.05, speedVar: 0.05, push: 3, shout: 5, nearFalls: 2, ati: 0.05, sni: 0.03, pci: 0.02},
}

func (g *Generator) festival(ts time.Time) model.SignalReading {
	phase := g.Phase(ts)
	p, ok := festivalProfiles[phase]
	if !ok {
		p = festivalProfiles[PreEvent]
	}
	hour := float64(ts.Hour())
	temp := clamp(15+8*math.Sin(2*math.Pi*hour/24)+g.gauss(0, 2), 5, 35)
	rh := clamp(80-(temp-15)*2+g.gauss(0, 5), 30, 95)
	return clampReading(g.sample(ts, phase, temp, rh, &p), 15, 25, 10)
}

func (g *Generator) sample(ts time.Time, phase string, temp, rh float64, p *profile) model.SignalReading {
	return model.SignalReading{
		ID:               g.zone + "-" + ts.UTC().Format("20060102T150405Z"),
		Zone:             g.zone,
		Timestamp:        ts,
		TempC:            temp,
		RH:               rh,
		Density:          p.density + g.gauss(0, p.densitySD),
		Speed:            p.speed + g.gauss(0, p.speedSD),
		SpeedVariance:    p.speedVar + g.gauss(0, p.speedVarSD),
		PushRate:         p.push + g.gauss(0, p.pushSD),
		ShoutRate:        p.shout + g.gauss(0, p.shoutSD),
		NearFalls:        p.nearFalls + g.gauss(0, p.nearFallsSD),
		Hour:             ts.Hour(),
		Phase:            phase,
		Attitude:         p.ati + g.gauss(0, p.atiSD),
		SubjectiveNorm:   p.sni + g.gauss(0, p.sniSD),
		PerceivedControl: p.pci + g.gauss(0, p.pciSD),
	}
}

func (g *Generator) gauss(mean, sd float64) float64 {
	return mean + sd*g.rng.NormFloat64()
}

// clampReading keeps signals within the physically plausible ranges of
// the source scenarios.
func clampReading(r model.SignalReading, maxPush, maxShout, maxNearFalls float64) model.SignalReading {
	r.Density = clamp(r.Density, 0.1, 5)
	r.Speed = clamp(r.Speed, 0.05, 1.5)
	r.SpeedVariance = clamp(r.SpeedVariance, 0.01, 0.3)
	r.PushRate = clamp(r.PushRate, 0, maxPush)
	r.ShoutRate = clamp(r.ShoutRate, 0, maxShout)
	r.NearFalls = clamp(r.NearFalls, 0, maxNearFalls)
	r.Attitude = clamp(r.Attitude, 0, 1)
	r.SubjectiveNorm = clamp(r.SubjectiveNorm, 0, 1)
	r.PerceivedControl = clamp(r.PerceivedControl, 0, 1)
	return r
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
