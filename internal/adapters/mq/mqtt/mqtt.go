// Package mqtt ingests readings published by field gateways over MQTT.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/crowdews/internal/adapters/ingest"
	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/pkg/logger"
	"github.com/okian/crowdews/pkg/metrics"
)

const disconnectQuiesceMs = 250

// Sink receives every valid reading.
type Sink func(ctx context.Context, r model.SignalReading) error

// Config configures the broker connection.
type Config struct {
	Broker         string
	Topic          string
	ClientID       string
	QoS            byte
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// Subscriber feeds readings from an MQTT topic into a Sink.
type Subscriber struct {
	cfg    Config
	sink   Sink
	client paho.Client
	logger logger.Logger
}

// NewSubscriber prepares a subscriber; Run connects it.
func NewSubscriber(cfg Config, sink Sink) *Subscriber {
	if cfg.ClientID == "" {
		cfg.ClientID = "crowdews"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Subscriber{
		cfg:    cfg,
		sink:   sink,
		logger: logger.Get().Named("mqtt"),
	}
}

// Run connects, subscribes and blocks until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetOnConnectHandler(func(c paho.Client) {
		// resubscribe after every (re)connect; clean sessions drop subscriptions
		s.subscribe(ctx, c)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.logger.Warn(ctx, "MQTT connection lost", logger.Error(err))
	})

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("connect to MQTT broker %s: timed out", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to MQTT broker %s: %w", s.cfg.Broker, err)
	}
	s.logger.Info(ctx, "MQTT subscriber connected",
		logger.String("broker", s.cfg.Broker),
		logger.String("topic", s.cfg.Topic),
	)

	<-ctx.Done()

	if t := s.client.Unsubscribe(s.cfg.Topic); t.WaitTimeout(time.Second) && t.Error() != nil {
		s.logger.Warn(context.Background(), "MQTT unsubscribe failed", logger.Error(t.Error()))
	}
	s.client.Disconnect(disconnectQuiesceMs)
	return nil
}

func (s *Subscriber) subscribe(ctx context.Context, c paho.Client) {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		if err := s.HandleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
			s.logger.Debug(ctx, "MQTT message dropped", logger.String("topic", msg.Topic()), logger.Error(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		s.logger.Error(ctx, "MQTT subscribe failed", logger.String("topic", s.cfg.Topic), logger.Error(token.Error()))
	}
}

// HandleMessage decodes one payload and hands it to the sink. A payload
// without a zone takes the last level of its topic, so gateways may publish
// on "<prefix>/<zone>".
func (s *Subscriber) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	var m ingest.ReadingMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		metrics.RecordMQTTMessage("malformed")
		return fmt.Errorf("%w: %w", ingest.ErrMalformed, err)
	}
	if m.Zone == "" {
		m.Zone = ZoneFromTopic(topic)
	}
	r, err := m.Reading()
	if err != nil {
		metrics.RecordMQTTMessage("invalid")
		return err
	}
	if err := s.sink(ctx, r); err != nil {
		metrics.RecordMQTTMessage("rejected")
		return err
	}
	metrics.RecordMQTTMessage("accepted")
	return nil
}

// ZoneFromTopic returns the last topic level unless it is a wildcard.
func ZoneFromTopic(topic string) string {
	i := strings.LastIndexByte(topic, '/')
	last := topic[i+1:]
	if last == "+" || last == "#" {
		return ""
	}
	return last
}

// IsConnected reports whether the client is currently connected.
func (s *Subscriber) IsConnected() bool {
	return s.client != nil && s.client.IsConnected()
}
