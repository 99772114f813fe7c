// Package service provides the early-warning service that implements
// the dependencies required by the HTTP API and the ingestion adapters.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	eventqueue "github.com/okian/crowdews/internal/adapters/mq/queue"
	workerpool "github.com/okian/crowdews/internal/adapters/mq/worker"
	"github.com/okian/crowdews/internal/adapters/notify"
	repository "github.com/okian/crowdews/internal/adapters/repository"
	"github.com/okian/crowdews/internal/domain/dedupe"
	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/internal/domain/risk"
	"github.com/okian/crowdews/pkg/logger"
	"github.com/okian/crowdews/pkg/metrics"
)

// DefaultRecent is the history length returned when none is requested:
// 24 hours of 5-minute ticks.
const DefaultRecent = 288

const (
	defaultQueueSize  = 10000
	defaultDedupeSize = 50000
	defaultMaxHistory = 10000
)

var (
	ErrNotStarted     = errors.New("service not started")
	ErrBackpressure   = errors.New("reading queue is full")
	ErrInvalidReading = errors.New("invalid reading")
	ErrInvalidLimit   = errors.New("invalid history length")
	// ErrNotFound is returned when a zone has no evaluated history.
	ErrNotFound = repository.ErrNotFound
)

// SubmitResult reports what happened to a submitted reading.
type SubmitResult struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// Assessment is a stateless what-if evaluation of one reading.
type Assessment struct {
	risk.Assessment
	Score  float64          `json:"score"`
	Level  model.Level      `json:"level"`
	Source risk.AlertSource `json:"alert_source"`
}

// Service implements the API dependencies for the early-warning system.
type Service struct {
	mu sync.RWMutex

	// Core components
	model    risk.Config
	calc     *risk.Calculator
	store    repository.Store
	notifier notify.Notifier
	deduper  dedupe.Deduper
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool

	// Configuration
	workerCount  int
	queueSize    int
	dedupeSize   int
	historyLimit int
	maxHistory   int
	rejectStale  bool

	zonesMu sync.Mutex
	zones   map[string]*zoneState

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of readings waiting for evaluation.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithHistoryLimit sets how many records per zone the default in-memory
// store keeps. It has no effect when a store is supplied.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithMaxHistory caps the n accepted by Recent.
func WithMaxHistory(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithRejectStale controls whether readings that are not newer than the
// zone's last evaluated reading are dropped.
func WithRejectStale(reject bool) Option {
	return func(s *Service) {
		s.rejectStale = reject
	}
}

// WithModel sets the risk model configuration.
func WithModel(cfg risk.Config) Option {
	return func(s *Service) {
		s.model = cfg
	}
}

// WithStore sets the record store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithNotifier sets the notifier invoked on every alert level change.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		model:       risk.DefaultConfig(),
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		dedupeSize:  defaultDedupeSize,
		maxHistory:  defaultMaxHistory,
		rejectStale: true,
		zones:       make(map[string]*zoneState),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.calc = risk.NewCalculator(s.model)
	return s
}

// Start initializes and starts the service components. Workers outlive ctx;
// they stop on Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if err := s.model.Validate(); err != nil {
		return fmt.Errorf("risk model: %w", err)
	}

	s.logger.Info(ctx, "starting early-warning service...")

	if s.store == nil {
		var opts []repository.MemoryOption
		if s.historyLimit > 0 {
			opts = append(opts, repository.WithHistoryLimit(s.historyLimit))
		}
		s.store = repository.NewMemoryStore(opts...)
		s.logger.Info(ctx, "using in-memory record store")
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.logger)
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool = workerpool.NewPool(s.queue, workerpool.HandlerFunc(s.handle),
		workerpool.WithWorkerCount(s.workerCount),
		workerpool.WithPoolLogger(s.logger),
	)
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "early-warning service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("alertSource", string(s.model.AlertSource())),
	)
	return nil
}

// Stop drains queued readings, stops the workers and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping early-warning service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	s.started = false
	s.logger.Info(ctx, "early-warning service stopped")
	return errors.Join(errs...)
}

// ReadingID returns the deterministic id of a reading without one.
func ReadingID(r *model.SignalReading) string {
	return r.Zone + "|" + r.Timestamp.UTC().Format(time.RFC3339Nano)
}

// Submit accepts a reading for asynchronous evaluation. A replayed id is
// reported as a duplicate, not an error.
func (s *Service) Submit(ctx context.Context, r model.SignalReading) (SubmitResult, error) { //nolint:gocritic // readings are values
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return SubmitResult{}, ErrNotStarted
	}
	if r.Zone == "" || strings.Contains(r.Zone, "/") {
		metrics.RecordReadingRejected("zone")
		return SubmitResult{}, fmt.Errorf("%w: zone %q", ErrInvalidReading, r.Zone)
	}
	if r.ID == "" {
		r.ID = ReadingID(&r)
	}
	res := SubmitResult{ID: r.ID}

	if s.deduper.SeenAndRecord(ctx, r.ID) {
		metrics.RecordReadingDuplicate()
		s.logger.Debug(ctx, "duplicate reading detected, skipping",
			logger.String("id", r.ID),
			logger.String("zone", r.Zone),
		)
		res.Duplicate = true
		return res, nil
	}

	if err := s.queue.Enqueue(ctx, r); err != nil {
		// allow the producer to retry the same reading
		s.deduper.Unrecord(ctx, r.ID)
		switch {
		case errors.Is(err, eventqueue.ErrFull):
			metrics.RecordReadingRejected("backpressure")
			return res, ErrBackpressure
		case errors.Is(err, eventqueue.ErrClosed):
			return res, ErrNotStarted
		default:
			return res, fmt.Errorf("enqueue reading: %w", err)
		}
	}
	metrics.RecordReadingIngested()
	return res, nil
}

// Assess evaluates a reading against the model without touching any
// zone's alert state.
func (s *Service) Assess(r *model.SignalReading) Assessment {
	a := s.calc.Assess(r)
	src := s.model.AlertSource()
	score := a.Risk(src)
	return Assessment{
		Assessment: a,
		Score:      score,
		Level:      s.model.Thresholds().Classify(score),
		Source:     src,
	}
}

// Latest returns the most recent evaluated record of zone.
func (s *Service) Latest(ctx context.Context, zone string) (model.Record, error) {
	if err := s.ready(); err != nil {
		return model.Record{}, err
	}
	return s.store.Latest(ctx, zone)
}

// Recent returns up to n records of zone, oldest first. n <= 0 selects
// DefaultRecent.
func (s *Service) Recent(ctx context.Context, zone string, n int) ([]model.Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultRecent
	}
	if n > s.maxHistory {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrInvalidLimit, n, s.maxHistory)
	}
	return s.store.Recent(ctx, zone, n)
}

// Zones lists every zone with evaluated history.
func (s *Service) Zones(ctx context.Context) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Zones(ctx)
}

// MaxHistory returns the largest n accepted by Recent.
func (s *Service) MaxHistory() int { return s.maxHistory }

// ModelConfig returns the active risk model configuration.
func (s *Service) ModelConfig() risk.Config { return s.model }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"alertSource": string(s.model.AlertSource()),
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	queueLen := s.queue.Len(ctx)
	stats["queueLength"] = queueLen
	stats["dedupeEntries"] = s.deduper.Size()
	stats["zonesTracked"] = s.trackedZones()
	if n, err := s.store.Count(ctx); err == nil {
		stats["records"] = n
	}
	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateWorkerCount(s.workerCount)
	return stats
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}
