package model

import "time"

// Record is one evaluated tick for a zone: the raw inputs, the derived
// indices and risk scores, and the alert level after the engine step.
// Field names follow the column names of the exported datasets.
type Record struct {
	ID        string    `json:"id"`
	ReadingID string    `json:"reading_id"`
	Zone      string    `json:"zone"`
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase"`

	TempC         float64 `json:"temp_c"`
	RH            float64 `json:"rh"`
	Density       float64 `json:"density_p_m2"`
	Speed         float64 `json:"speed_mps"`
	SpeedVariance float64 `json:"speed_var"`
	PushRate      float64 `json:"push_rate"`
	ShoutRate     float64 `json:"shout_rate"`
	NearFalls     float64 `json:"near_falls"`
	Hour          int     `json:"hour"`

	Indices

	ATI float64 `json:"ATI"`
	SNI float64 `json:"SNI"`
	PCI float64 `json:"PCI"`
	BI  float64 `json:"BI"`

	Risk         float64 `json:"Risk"`
	RiskExtended float64 `json:"RiskExtended"`
	AlertSource  string  `json:"alert_source"`

	Alert    Level      `json:"Alert"`
	Previous Level      `json:"previous"`
	Changed  bool       `json:"changed"`
	State    AlertState `json:"state"`

	// Reset marks the record written when an operator reset the zone.
	Reset bool `json:"reset,omitempty"`
}

// Transition returns the level change recorded by this tick.
func (r *Record) Transition() Transition {
	return Transition{From: r.Previous, To: r.Alert}
}

// NewRecord copies the raw inputs of a reading into a Record. Scores and
// alert fields are filled in by the evaluator.
func NewRecord(id string, reading *SignalReading) Record {
	return Record{
		ID:            id,
		ReadingID:     reading.ID,
		Zone:          reading.Zone,
		Timestamp:     reading.Timestamp,
		Phase:         reading.Phase,
		TempC:         reading.TempC,
		RH:            reading.RH,
		Density:       reading.Density,
		Speed:         reading.Speed,
		SpeedVariance: reading.SpeedVariance,
		PushRate:      reading.PushRate,
		ShoutRate:     reading.ShoutRate,
		NearFalls:     reading.NearFalls,
		Hour:          reading.Hour,
		ATI:           reading.Attitude,
		SNI:           reading.SubjectiveNorm,
		PCI:           reading.PerceivedControl,
	}
}
