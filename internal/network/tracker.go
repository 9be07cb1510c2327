package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultFlushInterval = time.Second
	defaultMaxBatch      = 100
	defaultMaxQueue      = 10000
)

// TrackerConfig configures a Tracker. Zero values use the defaults: 1s
// flush interval, batches of 100, queue capped at 10000 events.
type TrackerConfig struct {
	BaseURL       string
	SiteCode      string
	Timeout       time.Duration
	FlushInterval time.Duration
	MaxBatch      int
	MaxQueue      int
	// OnFlush, if set, observes every flush attempt with the number of
	// events sent and the outcome.
	OnFlush func(sent int, err error)
}

// Tracker accumulates tracking events and ships them in batches. Enqueue
// never blocks on the network; a background loop started with Run flushes
// on an interval and whenever a full batch accumulates. Failed batches are
// requeued, with the oldest events dropped once the queue cap is reached.
type Tracker struct {
	cfg        TrackerConfig
	httpClient *http.Client
	log        *slog.Logger

	mu    sync.Mutex
	queue []json.RawMessage

	kick chan struct{}
}

// NewTracker creates a Tracker. Like the fetcher, its transport is traced
// with otelhttp; spans are only exported when tracing is configured.
func NewTracker(cfg TrackerConfig, log *slog.Logger) *Tracker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultMaxBatch
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = defaultMaxQueue
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Tracker{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log:  log,
		kick: make(chan struct{}, 1),
	}
}

// Enqueue serializes an event onto the queue. When the queue exceeds the
// cap the oldest events are dropped.
func (t *Tracker) Enqueue(event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("splitz: marshal tracking event: %w", err)
	}

	t.mu.Lock()
	t.queue = append(t.queue, payload)
	if overflow := len(t.queue) - t.cfg.MaxQueue; overflow > 0 {
		t.queue = t.queue[overflow:]
		t.log.Warn("tracking queue full, dropping oldest events", slog.Int("dropped", overflow))
	}
	full := len(t.queue) >= t.cfg.MaxBatch
	t.mu.Unlock()

	if full {
		select {
		case t.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// QueueLen returns the number of queued events.
func (t *Tracker) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Run flushes on the configured interval and on full-batch signals until
// ctx is cancelled, then makes one final flush attempt.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), t.cfg.Timeout)
			if err := t.Flush(flushCtx); err != nil {
				t.log.Warn("final tracking flush failed", slog.String("error", err.Error()))
			}
			cancel()
			return
		case <-ticker.C:
		case <-t.kick:
		}

		if err := t.Flush(ctx); err != nil {
			t.log.Warn("tracking flush failed", slog.String("error", err.Error()))
		}
	}
}

// Flush sends all queued events in batches. On failure the unsent events
// are put back at the head of the queue and the error is returned.
func (t *Tracker) Flush(ctx context.Context) error {
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.mu.Unlock()
			return nil
		}
		n := len(t.queue)
		if n > t.cfg.MaxBatch {
			n = t.cfg.MaxBatch
		}
		batch := make([]json.RawMessage, n)
		copy(batch, t.queue[:n])
		t.queue = t.queue[n:]
		t.mu.Unlock()

		if err := t.send(ctx, batch); err != nil {
			t.requeue(batch)
			if t.cfg.OnFlush != nil {
				t.cfg.OnFlush(0, err)
			}
			return err
		}
		if t.cfg.OnFlush != nil {
			t.cfg.OnFlush(len(batch), nil)
		}
	}
}

func (t *Tracker) send(ctx context.Context, batch []json.RawMessage) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("splitz: marshal tracking batch: %w", err)
	}

	endpoint := t.cfg.BaseURL + "/v1/events?siteCode=" + url.QueryEscape(t.cfg.SiteCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("splitz: create tracking request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("splitz: send tracking batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return nil
}

func (t *Tracker) requeue(batch []json.RawMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(batch, t.queue...)
	if overflow := len(t.queue) - t.cfg.MaxQueue; overflow > 0 {
		t.queue = t.queue[:t.cfg.MaxQueue]
		t.log.Warn("tracking queue full after requeue, dropping newest events", slog.Int("dropped", overflow))
	}
}
