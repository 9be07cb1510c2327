// Package network talks to the remote configuration and event-ingestion
// endpoints. The Fetcher pulls configuration payloads with ETag-based
// conditional requests; the Tracker batches tracking events and ships them
// in the background. Both are fail-soft: network trouble is reported, never
// fatal.
package network

import (
	"context"
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
	defaultFetchTimeout = 10 * time.Second
	maxPayloadBytes     = 16 << 20
)

// APIError is returned when an endpoint responds with an HTTP error status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("splitz: HTTP %d: %s", e.StatusCode, e.Message)
}

// Fetcher retrieves configuration payloads for one site code.
type Fetcher struct {
	baseURL     string
	siteCode    string
	environment string
	httpClient  *http.Client
	log         *slog.Logger

	mu   sync.Mutex
	etag string
}

// NewFetcher creates a Fetcher. A zero timeout uses the 10s default. The
// underlying transport is traced with otelhttp; spans are only exported
// when tracing is configured.
func NewFetcher(baseURL, siteCode, environment string, timeout time.Duration, log *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{
		baseURL:     strings.TrimRight(baseURL, "/"),
		siteCode:    siteCode,
		environment: environment,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log,
	}
}

// Fetch retrieves the configuration payload. notModified is true when the
// server answered 304 for the cached ETag; payload is nil in that case.
func (f *Fetcher) Fetch(ctx context.Context) (payload []byte, notModified bool, err error) {
	endpoint := f.baseURL + "/v1/configurations/" + url.PathEscape(f.siteCode)
	if f.environment != "" {
		endpoint += "?environment=" + url.QueryEscape(f.environment)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("splitz: create configuration request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	f.mu.Lock()
	if f.etag != "" {
		req.Header.Set("If-None-Match", f.etag)
	}
	f.mu.Unlock()

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("splitz: fetch configuration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, true, nil
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, false, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	payload, err = io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, false, fmt.Errorf("splitz: read configuration body: %w", err)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		f.mu.Lock()
		f.etag = etag
		f.mu.Unlock()
	}

	f.log.Debug("configuration fetched",
		slog.String("site_code", f.siteCode),
		slog.Int("bytes", len(payload)))

	return payload, false, nil
}
