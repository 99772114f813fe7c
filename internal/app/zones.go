package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	repository "github.com/okian/crowdews/internal/adapters/repository"
	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/internal/domain/risk"
	"github.com/okian/crowdews/pkg/logger"
	"github.com/okian/crowdews/pkg/metrics"
)

// zoneState is owned by the worker the zone hashes to; only the map that
// holds it is shared.
type zoneState struct {
	engine *risk.Engine
	last   time.Time
}

// zone returns the state of a zone, creating it on first use. A zone with
// stored history resumes from its last persisted alert state.
func (s *Service) zone(ctx context.Context, name string) *zoneState {
	s.zonesMu.Lock()
	z, ok := s.zones[name]
	s.zonesMu.Unlock()
	if ok {
		return z
	}

	z = &zoneState{}
	rec, err := s.store.Latest(ctx, name)
	switch {
	case err == nil:
		z.engine = risk.NewEngine(s.model, risk.WithState(rec.State))
		z.last = rec.Timestamp
		s.logger.Info(ctx, "zone resumed from stored state",
			logger.String("zone", name),
			logger.String("level", rec.State.Level.String()),
		)
	case errors.Is(err, repository.ErrNotFound):
		z.engine = risk.NewEngine(s.model)
	default:
		s.logger.Warn(ctx, "could not load zone state, starting at green",
			logger.String("zone", name),
			logger.Error(err),
		)
		z.engine = risk.NewEngine(s.model)
	}

	s.zonesMu.Lock()
	// a reset may have installed the zone while the store was read
	if cur, ok := s.zones[name]; ok {
		s.zonesMu.Unlock()
		return cur
	}
	s.zones[name] = z
	n := len(s.zones)
	s.zonesMu.Unlock()
	metrics.UpdateZonesTracked(n)
	return z
}

func (s *Service) trackedZones() int {
	s.zonesMu.Lock()
	defer s.zonesMu.Unlock()
	return len(s.zones)
}

// ResetZone ends monitoring of a zone: its engine restarts at green with
// cleared counters. A zone with stored history gets a green marker record
// so a restarted service resumes from the reset instead of the old level.
func (s *Service) ResetZone(ctx context.Context, name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: empty zone", ErrInvalidReading)
	}

	z := &zoneState{engine: risk.NewEngine(s.model)}
	var marker *model.Record
	latest, err := s.store.Latest(ctx, name)
	switch {
	case err == nil:
		rec := resetRecord(latest, z.engine.State(), s.model.AlertSource())
		if err := s.store.Append(ctx, rec); err != nil {
			return fmt.Errorf("store reset of %s: %w", name, err)
		}
		z.last = latest.Timestamp
		marker = &rec
	case errors.Is(err, repository.ErrNotFound):
	default:
		return fmt.Errorf("load zone %s: %w", name, err)
	}

	s.zonesMu.Lock()
	s.zones[name] = z
	n := len(s.zones)
	s.zonesMu.Unlock()

	metrics.DeleteZone(name)
	metrics.UpdateZonesTracked(n)
	s.logger.Info(ctx, "zone reset", logger.String("zone", name))

	if marker != nil && marker.Changed {
		metrics.RecordAlertTransition(name, marker.Previous.String(), marker.Alert.String())
		if err := s.notifier.Notify(ctx, *marker); err != nil {
			s.logger.Warn(ctx, "alert notification failed",
				logger.String("zone", name),
				logger.Error(err),
			)
		}
	}
	return nil
}

// resetRecord is the marker written by ResetZone. It carries the last
// record's timestamp so stale rejection is unchanged by the reset.
func resetRecord(latest model.Record, state model.AlertState, src risk.AlertSource) model.Record { //nolint:gocritic // records are values
	return model.Record{
		ID:          uuid.NewString(),
		Zone:        latest.Zone,
		Timestamp:   latest.Timestamp,
		Phase:       latest.Phase,
		AlertSource: string(src),
		Alert:       state.Level,
		Previous:    latest.Alert,
		Changed:     latest.Alert != state.Level,
		State:       state,
		Reset:       true,
	}
}

// handle evaluates one reading. It runs on the worker that owns the zone.
func (s *Service) handle(ctx context.Context, r model.SignalReading) error { //nolint:gocritic // readings are values
	start := time.Now()
	z := s.zone(ctx, r.Zone)

	if s.rejectStale && !z.last.IsZero() && !r.Timestamp.After(z.last) {
		metrics.RecordReadingStale()
		s.logger.Debug(ctx, "stale reading dropped",
			logger.String("zone", r.Zone),
			logger.String("id", r.ID),
			logger.String("timestamp", r.Timestamp.Format(time.RFC3339Nano)),
		)
		return nil
	}

	a := s.calc.Assess(&r)
	src := s.model.AlertSource()
	score := a.Risk(src)
	before, lastBefore := z.engine.State(), z.last
	prev := before.Level
	level := z.engine.Step(score)
	rec := a.Record(uuid.NewString(), &r, src, prev, z.engine.State())
	z.last = r.Timestamp

	if err := s.store.Append(ctx, rec); err != nil {
		// an unstored step never happened; the producer may resend
		z.engine = risk.NewEngine(s.model, risk.WithState(before))
		z.last = lastBefore
		s.deduper.Unrecord(ctx, r.ID)
		s.logger.Warn(ctx, "record not stored, zone state rolled back",
			logger.String("zone", r.Zone),
			logger.String("id", r.ID),
			logger.Error(err),
		)
		return fmt.Errorf("store record %s: %w", rec.ID, err)
	}

	metrics.RecordReadingEvaluated()
	metrics.UpdateZoneRisk(r.Zone, score)
	metrics.UpdateZoneAlertLevel(r.Zone, int(level))

	if rec.Changed {
		metrics.RecordAlertTransition(r.Zone, prev.String(), level.String())
		if err := s.notifier.Notify(ctx, rec); err != nil {
			s.logger.Warn(ctx, "alert notification failed",
				logger.String("zone", r.Zone),
				logger.Error(err),
			)
		}
	}
	metrics.RecordEvaluationLatency(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}
