package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/pkg/logger"
)

// Publisher is the part of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	URL            string
	Subject        string
	Name           string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// NATSNotifier publishes level changes as JSON on "<subject>.<zone>".
type NATSNotifier struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	logger  logger.Logger
}

// NewNATSNotifier publishes through pub under subject.
func NewNATSNotifier(pub Publisher, subject string) *NATSNotifier {
	return &NATSNotifier{
		pub:     pub,
		subject: strings.TrimSuffix(subject, "."),
		logger:  logger.Get().Named("nats"),
	}
}

// ConnectNATS dials the server and returns a notifier that owns the
// connection.
func ConnectNATS(ctx context.Context, cfg NATSConfig) (*NATSNotifier, error) {
	if cfg.Name == "" {
		cfg.Name = "crowdews"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	n := NewNATSNotifier(conn, cfg.Subject)
	n.conn = conn
	n.logger.Info(ctx, "NATS connection established", logger.String("url", cfg.URL), logger.String("subject", n.subject))
	return n, nil
}

func (n *NATSNotifier) Name() string { return "nats" }

// SubjectFor returns the subject a zone's changes are published on.
func (n *NATSNotifier) SubjectFor(zone string) string {
	return n.subject + "." + zone
}

func (n *NATSNotifier) Notify(_ context.Context, rec model.Record) error { //nolint:gocritic // records are values
	payload, err := json.Marshal(NewEvent(&rec))
	if err != nil {
		return fmt.Errorf("encode alert event: %w", err)
	}
	if err := n.pub.Publish(n.SubjectFor(rec.Zone), payload); err != nil {
		return fmt.Errorf("publish alert event: %w", err)
	}
	return nil
}

// Close drains the owned connection, falling back to an immediate close.
func (n *NATSNotifier) Close(ctx context.Context) error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.logger.Warn(ctx, "failed to drain NATS connection, closing immediately", logger.Error(err))
		n.conn.Close()
	}
	return nil
}
