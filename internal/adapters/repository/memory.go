package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/pkg/metrics"
)

const defaultHistoryLimit = 1000

// ring is a fixed-size circular buffer of records.
type ring struct {
	buf   []model.Record
	start int
	n     int
}

func (r *ring) push(rec model.Record) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = rec
		r.n++
		return
	}
	r.buf[r.start] = rec
	r.start = (r.start + 1) % len(r.buf)
}

// at returns the i-th oldest record.
func (r *ring) at(i int) model.Record {
	return r.buf[(r.start+i)%len(r.buf)]
}

// MemoryStore keeps the last N records of every zone in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	zones  map[string]*ring
	limit  int
	total  int
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		zones: make(map[string]*ring),
		limit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limit returns the per-zone history limit.
func (s *MemoryStore) Limit() int { return s.limit }

func (s *MemoryStore) Append(_ context.Context, rec model.Record) error { //nolint:gocritic // records are values
	if err := validateZone(rec.Zone); err != nil {
		return err
	}
	start := time.Now()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	r, ok := s.zones[rec.Zone]
	if !ok {
		r = &ring{buf: make([]model.Record, s.limit)}
		s.zones[rec.Zone] = r
	}
	before := r.n
	r.push(rec)
	s.total += r.n - before
	total := s.total
	s.mu.Unlock()

	metrics.UpdateStoreRecords(total)
	metrics.RecordStoreAppendLatency(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, zone string) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.zones[zone]
	if !ok || r.n == 0 {
		return model.Record{}, fmt.Errorf("%w: %s", ErrNotFound, zone)
	}
	return r.at(r.n - 1), nil
}

func (s *MemoryStore) Recent(_ context.Context, zone string, n int) ([]model.Record, error) {
	if err := validateLimit(n); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.zones[zone]
	if !ok {
		return []model.Record{}, nil
	}
	n = min(n, r.n)
	out := make([]model.Record, 0, n)
	for i := r.n - n; i < r.n; i++ {
		out = append(out, r.at(i))
	}
	return out, nil
}

func (s *MemoryStore) Zones(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.zones))
	for z := range s.zones {
		out = append(out, z)
	}
	slices.Sort(out)
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total, nil
}

// Close marks the store closed; reads keep working.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
