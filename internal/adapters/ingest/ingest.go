// Package ingest decodes and validates readings arriving over HTTP or MQTT.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/crowdews/internal/domain/model"
)

// Sentinel kinds for ingestion errors.
var (
	ErrMalformed      = errors.New("malformed reading payload")
	ErrInvalidReading = errors.New("invalid reading")
)

// maxPayloadBytes caps a single decoded reading.
const maxPayloadBytes = 64 << 10

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	err := validate.RegisterValidation("rfc3339", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.RFC3339, fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(fmt.Sprintf("ingest: register rfc3339 validation: %v", err))
	}
}

// ReadingMessage is the wire form of a reading. Field names match the
// dataset columns so exported rows can be replayed as-is.
type ReadingMessage struct {
	ID        string `json:"id,omitempty" validate:"omitempty,max=128"`
	Zone      string `json:"zone" validate:"required,max=64,excludesall=/"`
	Timestamp string `json:"timestamp" validate:"required,rfc3339"`
	Phase     string `json:"phase,omitempty" validate:"max=64"`
	Hour      *int   `json:"hour,omitempty" validate:"omitempty,min=0,max=23"`

	TempC         float64 `json:"temp_c"`
	RH            float64 `json:"rh"`
	Density       float64 `json:"density_p_m2"`
	Speed         float64 `json:"speed_mps"`
	SpeedVariance float64 `json:"speed_var"`
	PushRate      float64 `json:"push_rate"`
	ShoutRate     float64 `json:"shout_rate"`
	NearFalls     float64 `json:"near_falls"`

	ATI float64 `json:"ATI"`
	SNI float64 `json:"SNI"`
	PCI float64 `json:"PCI"`
}

// Validate checks the identifying fields. Numeric signals are never
// rejected; the risk model clamps them.
func (m *ReadingMessage) Validate() error {
	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fieldMessage(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalidReading, strings.Join(parts, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidReading, err)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "rfc3339":
		return field + " must be an RFC3339 timestamp"
	case "excludesall":
		return field + " must not contain '/'"
	case "max":
		return fmt.Sprintf("%s exceeds %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// Reading validates m and converts it. Hour defaults to the timestamp's hour.
func (m *ReadingMessage) Reading() (model.SignalReading, error) {
	if err := m.Validate(); err != nil {
		return model.SignalReading{}, err
	}
	ts, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		return model.SignalReading{}, fmt.Errorf("%w: timestamp: %w", ErrInvalidReading, err)
	}
	hour := ts.Hour()
	if m.Hour != nil {
		hour = *m.Hour
	}
	return model.SignalReading{
		ID:               m.ID,
		Zone:             m.Zone,
		Timestamp:        ts,
		TempC:            m.TempC,
		RH:               m.RH,
		Density:          m.Density,
		Speed:            m.Speed,
		SpeedVariance:    m.SpeedVariance,
		PushRate:         m.PushRate,
		ShoutRate:        m.ShoutRate,
		NearFalls:        m.NearFalls,
		Hour:             hour,
		Phase:            m.Phase,
		Attitude:         m.ATI,
		SubjectiveNorm:   m.SNI,
		PerceivedControl: m.PCI,
	}, nil
}

// FromReading renders r in wire form.
func FromReading(r *model.SignalReading) ReadingMessage {
	hour := r.Hour
	return ReadingMessage{
		ID:            r.ID,
		Zone:          r.Zone,
		Timestamp:     r.Timestamp.Format(time.RFC3339Nano),
		Phase:         r.Phase,
		Hour:          &hour,
		TempC:         r.TempC,
		RH:            r.RH,
		Density:       r.Density,
		Speed:         r.Speed,
		SpeedVariance: r.SpeedVariance,
		PushRate:      r.PushRate,
		ShoutRate:     r.ShoutRate,
		NearFalls:     r.NearFalls,
		ATI:           r.Attitude,
		SNI:           r.SubjectiveNorm,
		PCI:           r.PerceivedControl,
	}
}

// Decode reads one JSON reading from body and converts it.
func Decode(body io.Reader) (model.SignalReading, error) {
	var m ReadingMessage
	dec := json.NewDecoder(io.LimitReader(body, maxPayloadBytes))
	if err := dec.Decode(&m); err != nil {
		return model.SignalReading{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return m.Reading()
}

// Parse is Decode for an in-memory payload such as an MQTT message.
func Parse(payload []byte) (model.SignalReading, error) {
	var m ReadingMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return model.SignalReading{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return m.Reading()
}
