package simulate

import (
	"context"
	"errors"
	"time"

	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/pkg/logger"
)

// Sink receives generated readings.
type Sink func(ctx context.Context, r model.SignalReading) error

// Feeder pushes one reading per zone into a sink on every tick.
type Feeder struct {
	generators []*Generator
	interval   time.Duration
	sink       Sink
	clock      func() time.Time
	logger     logger.Logger
}

// NewFeeder creates a feeder. Realtime generators are stamped with the wall
// clock; festival generators follow their own calendar clock.
func NewFeeder(gens []*Generator, interval time.Duration, sink Sink) *Feeder {
	return &Feeder{
		generators: gens,
		interval:   interval,
		sink:       sink,
		clock:      time.Now,
		logger:     logger.Get().Named("simulator"),
	}
}

// Tick emits one reading per generator.
func (f *Feeder) Tick(ctx context.Context) error {
	var errs []error
	now := f.clock().UTC().Truncate(time.Second)
	for _, g := range f.generators {
		var r model.SignalReading
		if g.Mode() == ModeFestival {
			r = g.Next()
		} else {
			r = g.At(now)
		}
		if err := f.sink(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run ticks until ctx is done.
func (f *Feeder) Run(ctx context.Context) error {
	f.logger.Info(ctx, "simulator feeding readings",
		logger.Int("zones", len(f.generators)),
		logger.Duration("interval", f.interval),
	)
	t := time.NewTicker(f.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := f.Tick(ctx); err != nil {
				f.logger.Warn(ctx, "simulated reading rejected", logger.Error(err))
			}
		}
	}
}
