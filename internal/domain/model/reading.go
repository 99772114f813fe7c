// Package model contains domain models passed between layers.
package model

import "time"

// SignalReading is an immutable snapshot of the raw inputs for one
// evaluation tick of one monitored zone. Values are kept in their natural
// units; out-of-range values are clamped by the normalizers, never rejected.
type SignalReading struct {
	ID        string    // unique id for idempotency
	Zone      string    // monitored stream / zone identifier
	Timestamp time.Time // tick time

	TempC         float64 // air temperature, °C
	RH            float64 // relative humidity, %
	Density       float64 // persons per m²
	Speed         float64 // mean speed, m/s
	SpeedVariance float64 // speed variance, (m/s)²
	PushRate      float64 // pushes per minute per 1000 people
	ShoutRate     float64 // shouts per minute per 1000 people
	NearFalls     float64 // near-fall incidents per 5-minute window
	Hour          int     // hour of day, 0-23
	Phase         string  // event phase or scenario label

	Attitude         float64 // ATI
	SubjectiveNorm   float64 // SNI
	PerceivedControl float64 // PCI
}

// Indices are the normalized risk contributions derived from one reading.
// Every value is within [0,1] except THIRaw, which keeps the raw index.
type Indices struct {
	CAI    float64 `json:"CAI"`
	CDI    float64 `json:"CDI"`
	THI    float64 `json:"THI"`
	TI     float64 `json:"TI"`
	EI     float64 `json:"EI"`
	THIRaw float64 `json:"THI_raw"`
}
