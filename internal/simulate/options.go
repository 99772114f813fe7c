package simulate

import (
	"hash/fnv"
	"time"
)

// Option configures a Generator.
type Option func(*Generator)

// WithSeed seeds the generator. The zone name is mixed in so generators
// sharing a seed still differ per zone.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(g.zone))
		g.seed = uint64(seed) ^ h.Sum64() //nolint:gosec // seed bits only
	}
}

// WithMode sets the scenario mode.
func WithMode(m Mode) Option {
	return func(g *Generator) {
		if m == ModeRealtime || m == ModeFestival {
			g.mode = m
		}
	}
}

// WithStart sets the generator clock and the first day of the festival
// calendar.
func WithStart(t time.Time) Option {
	return func(g *Generator) {
		if !t.IsZero() {
			g.start = t
		}
	}
}
