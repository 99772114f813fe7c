package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/crowdews/internal/adapters/http/api"
	"github.com/okian/crowdews/internal/adapters/http/swagger"
	"github.com/okian/crowdews/internal/adapters/mq/mqtt"
	"github.com/okian/crowdews/internal/adapters/notify"
	repository "github.com/okian/crowdews/internal/adapters/repository"
	service "github.com/okian/crowdews/internal/app"
	"github.com/okian/crowdews/internal/config"
	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/internal/simulate"
	"github.com/okian/crowdews/pkg/logger"
	"github.com/okian/crowdews/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Get()
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		log.Warn(ctx, "invalid log_format; keeping text", logger.String("log_format", cfg.LogFormat), logger.Error(err))
	}
	log = logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg); err != nil {
		log.Error(ctx, "crowdews exited", logger.Error(err))
		os.Exit(1)
	}
}

// run starts every component and blocks until ctx is cancelled or one of
// them fails.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	notifier, closeNotifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer closeNotifier()

	svc, err := newService(cfg, store, notifier)
	if err != nil {
		_ = store.Close()
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()

	srv := newHTTPServer(ctx, cfg, svc)
	submit := func(ctx context.Context, r model.SignalReading) error {
		_, err := svc.Submit(ctx, r)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		startServiceMetricsUpdater(gctx, svc)
		return nil
	})
	if cfg.MQTT.Broker != "" {
		sub := mqtt.NewSubscriber(mqttConfig(cfg), submit)
		g.Go(func() error { return sub.Run(gctx) })
	}
	if cfg.Simulator.Enabled {
		feeder := newFeeder(cfg, submit)
		g.Go(func() error { return feeder.Run(gctx) })
	}

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// openStore selects the record store backend.
func openStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendBadger:
		bc := repository.DefaultBadgerConfig(cfg.Store.Path)
		bc.SyncWrites = cfg.Store.SyncWrites
		bc.Retention = cfg.Store.Retention
		bc.GCInterval = cfg.Store.GCInterval
		store, err := repository.OpenBadgerStore(bc)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return store, nil
	default:
		return repository.NewMemoryStore(repository.WithHistoryLimit(cfg.HistoryLimit)), nil
	}
}

// buildNotifier always logs level changes and also publishes them to NATS
// when a server is configured.
func buildNotifier(ctx context.Context, cfg *config.Config) (notify.Notifier, func(), error) {
	logNotifier := notify.NewLogNotifier(logger.Get())
	if cfg.NATS.URL == "" {
		return logNotifier, func() {}, nil
	}
	nc, err := notify.ConnectNATS(ctx, notify.NATSConfig{
		URL:     cfg.NATS.URL,
		Subject: cfg.NATS.Subject,
	})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = nc.Close(closeCtx)
	}
	return notify.NewMulti(logNotifier, nc), closeFn, nil
}

func newService(cfg *config.Config, store repository.Store, n notify.Notifier) (*service.Service, error) {
	riskModel, err := cfg.Model()
	if err != nil {
		return nil, err
	}
	return service.New(
		service.WithLogger(logger.Get()),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithHistoryLimit(cfg.HistoryLimit),
		service.WithMaxHistory(cfg.MaxHistoryLimit),
		service.WithRejectStale(cfg.RejectStale),
		service.WithModel(riskModel),
		service.WithStore(store),
		service.WithNotifier(n),
	), nil
}

func newHTTPServer(ctx context.Context, cfg *config.Config, svc *service.Service) *http.Server {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, cfg.MaxHistoryLimit).Register(ctx, mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func mqttConfig(cfg *config.Config) mqtt.Config {
	return mqtt.Config{
		Broker:   cfg.MQTT.Broker,
		Topic:    cfg.MQTT.Topic,
		ClientID: cfg.MQTT.ClientID,
		QoS:      byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0-2
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}
}

func newFeeder(cfg *config.Config, sink simulate.Sink) *simulate.Feeder {
	gens := make([]*simulate.Generator, 0, len(cfg.Simulator.Zones))
	for _, zone := range cfg.Simulator.Zones {
		gens = append(gens, simulate.NewGenerator(zone,
			simulate.WithSeed(cfg.Simulator.Seed),
			simulate.WithMode(simulate.Mode(cfg.Simulator.Mode)),
		))
	}
	return simulate.NewFeeder(gens, cfg.Simulator.Interval, sink)
}

// startSystemMetricsUpdater refreshes runtime metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(svc *service.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if zones, ok := stats["zonesTracked"].(int); ok {
		metrics.UpdateZonesTracked(zones)
	}
	if records, ok := stats["records"].(int); ok {
		metrics.UpdateStoreRecords(records)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
}
