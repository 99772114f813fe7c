// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config holding every default.
// - Load layers an optional YAML file and EWS_ environment variables on top.
// - Model() turns the model section into a validated risk.Config.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/okian/crowdews/internal/domain/risk"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Simulator modes.
const (
	SimRealtime = "realtime"
	SimFestival = "festival"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory reading queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of evaluation workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// HistoryLimit is the per-zone record count kept by the memory store.
	HistoryLimit int `koanf:"history_limit"`

	// MaxHistoryLimit caps GET /history?n.
	MaxHistoryLimit int `koanf:"max_history_limit"`

	// RejectStale drops readings that are not newer than the zone's last one.
	RejectStale bool `koanf:"reject_stale"`

	Store     StoreConfig     `koanf:"store"`
	MQTT      MQTTConfig      `koanf:"mqtt"`
	NATS      NATSConfig      `koanf:"nats"`
	Simulator SimulatorConfig `koanf:"simulator"`
	RiskModel ModelConfig     `koanf:"model"`
}

// StoreConfig selects and tunes the record store.
type StoreConfig struct {
	Backend    string        `koanf:"backend"`
	Path       string        `koanf:"path"`
	Retention  time.Duration `koanf:"retention"`
	SyncWrites bool          `koanf:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// MQTTConfig enables MQTT ingestion when Broker is set.
type MQTTConfig struct {
	Broker   string `koanf:"broker"`
	Topic    string `koanf:"topic"`
	ClientID string `koanf:"client_id"`
	QoS      int    `koanf:"qos"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// NATSConfig enables alert publishing when URL is set.
type NATSConfig struct {
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// SimulatorConfig drives the in-process reading generator.
type SimulatorConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Zones    []string      `koanf:"zones"`
	Interval time.Duration `koanf:"interval"`
	Mode     string        `koanf:"mode"`
	Seed     int64         `koanf:"seed"`
}

// ModelConfig overrides the risk model. Empty maps and lists keep the
// model defaults.
type ModelConfig struct {
	Weights        map[string]float64 `koanf:"weights"`
	Thresholds     ThresholdConfig    `koanf:"thresholds"`
	HysteresisUp   map[string]int     `koanf:"hysteresis_up"`
	HysteresisDown map[string]int     `koanf:"hysteresis_down"`
	Windows        []WindowConfig     `koanf:"windows"`
	AlertSource    string             `koanf:"alert_source"`
	// StepwiseDescent lowers an alert one level per committed de-escalation.
	StepwiseDescent bool `koanf:"stepwise_descent"`
}

// ThresholdConfig holds the level boundaries.
type ThresholdConfig struct {
	Yellow float64 `koanf:"yellow"`
	Orange float64 `koanf:"orange"`
	Red    float64 `koanf:"red"`
}

// WindowConfig is one elevated-risk hour range.
type WindowConfig struct {
	Name  string `koanf:"name"`
	Start int    `koanf:"start"`
	End   int    `koanf:"end"`
}

// New creates a Config holding the defaults.
func New() *Config {
	t := risk.DefaultThresholds()
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		QueueSize:       10_000,
		WorkerCount:     runtime.NumCPU(),
		DedupeSize:      50_000,
		HistoryLimit:    1000,
		MaxHistoryLimit: 10_000,
		RejectStale:     true,
		Store: StoreConfig{
			Backend:    BackendMemory,
			Path:       "data/ews",
			GCInterval: 10 * time.Minute,
		},
		MQTT: MQTTConfig{
			Topic:    "ews/readings/+",
			ClientID: "crowdews",
			QoS:      1,
		},
		NATS: NATSConfig{
			Subject: "ews.alerts",
		},
		Simulator: SimulatorConfig{
			Zones:    []string{"ghat-1"},
			Interval: 5 * time.Second,
			Mode:     SimRealtime,
			Seed:     42,
		},
		RiskModel: ModelConfig{
			Thresholds:      ThresholdConfig{Yellow: t.Yellow, Orange: t.Orange, Red: t.Red},
			AlertSource:     string(risk.AlertSourceComposite),
			StepwiseDescent: true,
		},
	}
}

// Validate checks the process settings and the risk model.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if !slices.Contains([]string{BackendMemory, BackendBadger}, c.Store.Backend) {
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}
	if c.Store.Backend == BackendBadger && c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required for the badger backend", ErrInvalidConfig)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2, got %d", ErrInvalidConfig, c.MQTT.QoS)
	}
	if c.Simulator.Enabled {
		if !slices.Contains([]string{SimRealtime, SimFestival}, c.Simulator.Mode) {
			return fmt.Errorf("%w: unknown simulator mode %q", ErrInvalidConfig, c.Simulator.Mode)
		}
		if c.Simulator.Interval <= 0 {
			return fmt.Errorf("%w: simulator.interval must be positive", ErrInvalidConfig)
		}
		if len(c.Simulator.Zones) == 0 {
			return fmt.Errorf("%w: simulator.zones must not be empty", ErrInvalidConfig)
		}
	}
	if _, err := c.Model(); err != nil {
		return fmt.Errorf("%w: model: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Model converts the model section into a validated risk.Config.
func (c *Config) Model() (risk.Config, error) {
	m := c.RiskModel
	opts := []risk.Option{
		risk.WithThresholds(risk.Thresholds{
			Yellow: m.Thresholds.Yellow,
			Orange: m.Thresholds.Orange,
			Red:    m.Thresholds.Red,
		}),
		risk.WithStepwiseDescent(m.StepwiseDescent),
	}
	if len(m.Weights) > 0 {
		opts = append(opts, risk.WithWeights(risk.WeightsFromMap(m.Weights)))
	}
	if len(m.HysteresisUp) > 0 {
		h, err := risk.ParseHysteresis(m.HysteresisUp)
		if err != nil {
			return risk.Config{}, fmt.Errorf("hysteresis_up: %w", err)
		}
		opts = append(opts, risk.WithUpHysteresis(h))
	}
	if len(m.HysteresisDown) > 0 {
		h, err := risk.ParseHysteresis(m.HysteresisDown)
		if err != nil {
			return risk.Config{}, fmt.Errorf("hysteresis_down: %w", err)
		}
		opts = append(opts, risk.WithDownHysteresis(h))
	}
	if len(m.Windows) > 0 {
		ws := make([]risk.Window, len(m.Windows))
		for i, w := range m.Windows {
			ws[i] = risk.Window{Name: w.Name, Start: w.Start, End: w.End}
		}
		opts = append(opts, risk.WithWindows(ws))
	}
	src, err := risk.ParseAlertSource(m.AlertSource)
	if err != nil {
		return risk.Config{}, err
	}
	opts = append(opts, risk.WithAlertSource(src))
	return risk.NewConfig(opts...)
}
