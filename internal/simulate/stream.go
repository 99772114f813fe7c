package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/crowdews/internal/adapters/ingest"
	"github.com/okian/crowdews/internal/domain/model"
)

// Outcome of one submitted reading.
type Outcome string

const (
	Accepted  Outcome = "accepted"
	Duplicate Outcome = "duplicate"
	Failed    Outcome = "failed"
)

// Stats counts streamed readings by outcome.
type Stats struct {
	Submitted int64
	Accepted  int64
	Duplicate int64
	Failed    int64
}

func (s *Stats) add(o Outcome) {
	atomic.AddInt64(&s.Submitted, 1)
	switch o {
	case Accepted:
		atomic.AddInt64(&s.Accepted, 1)
	case Duplicate:
		atomic.AddInt64(&s.Duplicate, 1)
	default:
		atomic.AddInt64(&s.Failed, 1)
	}
}

type ack struct {
	Status    string `json:"status"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// Client posts readings to a running service.
type Client struct {
	http *http.Client
	url  string
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{Timeout: timeout},
		url:  strings.TrimRight(baseURL, "/") + "/readings",
	}
}

// Post submits one reading.
func (c *Client) Post(ctx context.Context, r *model.SignalReading) (Outcome, error) {
	body, err := json.Marshal(ingest.FromReading(r))
	if err != nil {
		return Failed, fmt.Errorf("marshal reading: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Failed, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Failed, fmt.Errorf("post reading: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Failed, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		return Accepted, nil
	case http.StatusOK:
		var a ack
		if err := json.Unmarshal(data, &a); err == nil && !a.Duplicate {
			return Accepted, nil
		}
		return Duplicate, nil
	default:
		return Failed, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
}

// Sink adapts the client to a feeder sink.
func (c *Client) Sink(ctx context.Context, r model.SignalReading) error {
	_, err := c.Post(ctx, &r)
	return err
}

// Stream generates count ticks for every generator and posts them with the
// given concurrency. Readings of one zone are posted in order; zones run in
// parallel.
func Stream(ctx context.Context, c *Client, gens []*Generator, count, workers int) *Stats {
	stats := &Stats{}
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, gen := range gens {
		g.Go(func() error {
			for range count {
				if ctx.Err() != nil {
					return nil
				}
				r := gen.Next()
				o, _ := c.Post(ctx, &r)
				stats.add(o)
			}
			return nil
		})
	}
	_ = g.Wait()
	return stats
}
