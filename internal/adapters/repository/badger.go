package repository

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/pkg/logger"
	"github.com/okian/crowdews/pkg/metrics"
)

// Key layout:
//
//	r/<zone>/<ts:8 BE, sign-flipped>/<seq:8 BE>  -> JSON record
//	z/<zone>                                     -> empty (zone index)
//
// Fixed-width big-endian suffixes make lexical key order equal to time
// order within a zone, so reverse iteration yields newest first.
const (
	recordPrefix = "r/"
	zonePrefix   = "z/"
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Retention expires records after this age. Zero keeps them forever.
	Retention time.Duration

	// GCInterval is how often value-log GC runs. Zero disables it.
	GCInterval time.Duration

	GCDiscardRatio float64

	Logger logger.Logger
}

// DefaultBadgerConfig returns a persistent configuration for path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns a configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger routes badger's internal logging into the service logger.
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(context.Background(), fmt.Sprintf(format, args...))
}

// BadgerStore persists records in an embedded Badger database.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
	seq       atomic.Uint64
	logger    logger.Logger

	stopGC chan struct{}
	gcDone chan struct{}
	closed atomic.Bool
}

// OpenBadgerStore opens (or creates) a Badger-backed store.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger store: path is required for a persistent database")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Get().Named("badger")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: cfg.Logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &BadgerStore{
		db:        db,
		retention: cfg.Retention,
		logger:    cfg.Logger,
		stopGC:    make(chan struct{}),
		gcDone:    make(chan struct{}),
	}
	// seed the tie-breaker so keys written after a restart never collide
	s.seq.Store(uint64(time.Now().UnixNano())) //nolint:gosec // positive wall clock

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		go s.runGC(cfg.GCInterval, ratio)
	} else {
		close(s.gcDone)
	}
	return s, nil
}

func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn(context.Background(), "badger value log GC error", logger.Error(err))
			}
		}
	}
}

func zoneKeyPrefix(zone string) []byte {
	return []byte(recordPrefix + zone + "/")
}

func recordKey(zone string, ts time.Time, seq uint64) []byte {
	prefix := zoneKeyPrefix(zone)
	key := make([]byte, len(prefix)+17)
	n := copy(key, prefix)
	binary.BigEndian.PutUint64(key[n:], uint64(ts.UnixNano())^(1<<63)) //nolint:gosec // sign flip keeps order
	key[n+8] = '/'
	binary.BigEndian.PutUint64(key[n+9:], seq)
	return key
}

func (s *BadgerStore) Append(_ context.Context, rec model.Record) error { //nolint:gocritic // records are values
	if err := validateZone(rec.Zone); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	start := time.Now()
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	key := recordKey(rec.Zone, rec.Timestamp, s.seq.Add(1))
	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, val)
		z := badger.NewEntry([]byte(zonePrefix+rec.Zone), nil)
		if s.retention > 0 {
			e = e.WithTTL(s.retention)
			z = z.WithTTL(s.retention)
		}
		if err := txn.SetEntry(e); err != nil {
			return err
		}
		return txn.SetEntry(z)
	})
	if err != nil {
		metrics.RecordErrorByComponent("store", "append")
		return fmt.Errorf("append record for %s: %w", rec.Zone, err)
	}
	metrics.RecordStoreAppendLatency(float64(time.Since(start).Microseconds()) / 1000)
	return nil
}

// newest walks zone's records newest first and calls fn until it returns false.
func (s *BadgerStore) newest(zone string, fn func(model.Record) bool) error {
	prefix := zoneKeyPrefix(zone)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(slices.Clone(prefix), bytes.Repeat([]byte{0xFF}, 17)...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var rec model.Record
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			if !fn(rec) {
				return nil
			}
		}
		return nil
	})
}

func (s *BadgerStore) Latest(_ context.Context, zone string) (model.Record, error) {
	if err := validateZone(zone); err != nil {
		return model.Record{}, err
	}
	var (
		out   model.Record
		found bool
	)
	err := s.newest(zone, func(rec model.Record) bool {
		out, found = rec, true
		return false
	})
	if err != nil {
		return model.Record{}, err
	}
	if !found {
		return model.Record{}, fmt.Errorf("%w: %s", ErrNotFound, zone)
	}
	return out, nil
}

func (s *BadgerStore) Recent(_ context.Context, zone string, n int) ([]model.Record, error) {
	if err := validateLimit(n); err != nil {
		return nil, err
	}
	if err := validateZone(zone); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	out := make([]model.Record, 0, min(n, 256))
	err := s.newest(zone, func(rec model.Record) bool {
		out = append(out, rec)
		return len(out) < n
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (s *BadgerStore) Zones(_ context.Context) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(zonePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, string(it.Item().Key()[len(zonePrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (s *BadgerStore) Count(_ context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	metrics.UpdateStoreRecords(n)
	return n, nil
}

// Close stops the GC runner and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	select {
	case <-s.gcDone:
	default:
		close(s.stopGC)
		<-s.gcDone
	}
	return s.db.Close()
}
