// Package notify delivers alert level changes to operators and downstream
// systems.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/pkg/logger"
	"github.com/okian/crowdews/pkg/metrics"
)

// Notifier is told about every committed alert level change.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, rec model.Record) error
}

// Event is the published form of a level change.
type Event struct {
	RecordID     string    `json:"record_id"`
	Zone         string    `json:"zone"`
	Timestamp    time.Time `json:"timestamp"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Escalation   bool      `json:"escalation"`
	Risk         float64   `json:"risk"`
	RiskExtended float64   `json:"risk_extended"`
	AlertSource  string    `json:"alert_source"`
	Phase        string    `json:"phase,omitempty"`
}

// NewEvent builds the event for rec.
func NewEvent(rec *model.Record) Event {
	tr := rec.Transition()
	return Event{
		RecordID:     rec.ID,
		Zone:         rec.Zone,
		Timestamp:    rec.Timestamp,
		From:         tr.From.String(),
		To:           tr.To.String(),
		Escalation:   tr.Escalates(),
		Risk:         rec.Risk,
		RiskExtended: rec.RiskExtended,
		AlertSource:  rec.AlertSource,
		Phase:        rec.Phase,
	}
}

// LogNotifier writes level changes to the structured log. Escalations are
// logged at warn level.
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier returns a notifier that logs through l, or the global
// logger when l is nil.
func NewLogNotifier(l logger.Logger) *LogNotifier {
	if l == nil {
		l = logger.Get().Named("alerts")
	}
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(ctx context.Context, rec model.Record) error { //nolint:gocritic // records are values
	ev := NewEvent(&rec)
	fields := []logger.Field{
		logger.String("zone", ev.Zone),
		logger.String("from", ev.From),
		logger.String("to", ev.To),
		logger.Float64("risk", ev.Risk),
		logger.String("phase", ev.Phase),
		logger.Any("timestamp", ev.Timestamp),
	}
	if ev.Escalation {
		n.logger.Warn(ctx, "alert escalated", fields...)
	} else {
		n.logger.Info(ctx, "alert de-escalated", fields...)
	}
	return nil
}

// Multi fans a change out to several notifiers. A failing notifier is
// logged and counted and does not stop the others.
type Multi struct {
	notifiers []Notifier
	logger    logger.Logger
}

// NewMulti combines notifiers; nil entries are skipped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{logger: logger.Get().Named("notify")}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *Multi) Name() string { return "multi" }

// Len returns the number of wrapped notifiers.
func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Notify(ctx context.Context, rec model.Record) error { //nolint:gocritic // records are values
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, rec); err != nil {
			metrics.RecordNotifyError(n.Name())
			m.logger.Error(ctx, "notification failed",
				logger.String("notifier", n.Name()),
				logger.String("zone", rec.Zone),
				logger.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
