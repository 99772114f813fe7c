package risk

import "github.com/okian/crowdews/internal/domain/model"

// Index names a component of the composite risk.
type Index string

const (
	IndexCAI Index = "CAI"
	IndexCDI Index = "CDI"
	IndexTHI Index = "THI"
	IndexTI  Index = "TI"
	IndexEI  Index = "EI"
)

// RequiredIndices returns the indices every weight table must cover.
func RequiredIndices() []Index {
	return []Index{IndexCAI, IndexCDI, IndexTHI, IndexTI, IndexEI}
}

// value picks the index from ix.
func (i Index) value(ix model.Indices) float64 {
	switch i {
	case IndexCAI:
		return ix.CAI
	case IndexCDI:
		return ix.CDI
	case IndexTHI:
		return ix.THI
	case IndexTI:
		return ix.TI
	case IndexEI:
		return ix.EI
	}
	return 0
}

// Composite is the weighted sum of the five indices, clamped to [0,1].
func Composite(w Weights, ix model.Indices) float64 {
	var sum float64
	for _, k := range RequiredIndices() {
		sum += w[k] * k.value(ix)
	}
	return Clamp01(sum)
}

// BehavioralIntention blends attitude, subjective norm and perceived
// behavioral control (Theory of Planned Behavior).
func BehavioralIntention(ati, sni, pci float64) float64 {
	return Clamp01(0.3*Clamp01(ati) + 0.5*Clamp01(sni) + 0.2*Clamp01(pci))
}

// Extended blends composite risk with behavioral intention 60/40.
func Extended(composite, bi float64) float64 {
	return Clamp01(0.6*composite + 0.4*bi)
}

// Assessment is the stateless evaluation of one reading.
type Assessment struct {
	Indices   model.Indices `json:"indices"`
	BI        float64       `json:"BI"`
	Composite float64       `json:"Risk"`
	Extended  float64       `json:"RiskExtended"`
}

// Risk returns the value that feeds the alert engine for src.
func (a Assessment) Risk(src AlertSource) float64 {
	if src == AlertSourceExtended {
		return a.Extended
	}
	return a.Composite
}

// Calculator evaluates readings against an immutable Config.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	cfg Config
}

// NewCalculator returns a calculator bound to cfg.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Config returns the configuration the calculator was built with.
func (c *Calculator) Config() Config {
	return c.cfg
}

// Indices computes the normalized indices of r.
func (c *Calculator) Indices(r *model.SignalReading) model.Indices {
	raw := THIRaw(r.TempC, r.RH)
	return model.Indices{
		CAI:    CAI(r.PushRate, r.ShoutRate, r.NearFalls, r.Density),
		CDI:    CDI(r.Density, r.Speed, r.SpeedVariance),
		THI:    NormalizeTHI(raw),
		TI:     TI(r.Hour, c.cfg.windows),
		EI:     EI(r.Phase),
		THIRaw: raw,
	}
}

// Assess computes indices, composite, behavioral intention and extended risk.
func (c *Calculator) Assess(r *model.SignalReading) Assessment {
	ix := c.Indices(r)
	comp := Composite(c.cfg.weights, ix)
	bi := BehavioralIntention(r.Attitude, r.SubjectiveNorm, r.PerceivedControl)
	return Assessment{
		Indices:   ix,
		BI:        bi,
		Composite: comp,
		Extended:  Extended(comp, bi),
	}
}

// Record builds the evaluated record for r. prev is the level before the
// engine step and state the engine state after it.
func (a Assessment) Record(id string, r *model.SignalReading, src AlertSource, prev model.Level, state model.AlertState) model.Record {
	rec := model.NewRecord(id, r)
	rec.Indices = a.Indices
	rec.BI = a.BI
	rec.Risk = a.Composite
	rec.RiskExtended = a.Extended
	rec.AlertSource = string(src)
	rec.Alert = state.Level
	rec.Previous = prev
	rec.Changed = state.Level != prev
	rec.State = state
	return rec
}
