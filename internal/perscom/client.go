package perscom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/milsim-portal/internal/metrics"
)

const (
	defaultMaxRetries      = 2
	defaultRetryBackoff    = time.Second
	defaultTimeout         = 30 * time.Second
	defaultPageConcurrency = 8
	defaultMaxPages        = 500
	maxResponseBytes       = 16 << 20
)

// Config holds the connection settings for the PERSCOM API.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a single attempt. Zero means 30s.
	Timeout time.Duration
	// MaxRetries is the retry budget for 5xx and network faults. Zero means 2.
	MaxRetries int
	// RetryBackoff is the unit delay: attempt n of a 5xx waits n*RetryBackoff,
	// a network fault waits RetryBackoff. Zero means 1s.
	RetryBackoff time.Duration
	// PageConcurrency caps parallel page requests in FetchPaginated.
	PageConcurrency int
	// MaxPages bounds how many pages FetchPaginated walks, whatever
	// meta.last_page claims. Zero means 500.
	MaxPages int
	// CacheTTL is how long a fetched family stays valid. Zero means 5m.
	CacheTTL time.Duration
}

// RequestOptions describes one call to Fetch. Body is JSON encoded.
type RequestOptions struct {
	Method string
	Body   any
	Header http.Header
}

// Client talks to PERSCOM. It is safe for concurrent use; construct one per
// process and share it.
type Client struct {
	baseURL         string
	apiKey          string
	http            *http.Client
	cache           Cache
	clock           Clock
	logger          *zap.Logger
	maxRetries      int
	backoff         time.Duration
	pageConcurrency int
	maxPages        int
	ttl             time.Duration

	// inflight is the pending-request ledger: one entry per GET fingerprint
	// while its call is outstanding, dropped when the call settles.
	inflight singleflight.Group
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option customises a Client.
type Option func(*Client)

// WithClock replaces the wall clock used for cache validity.
func WithClock(clk Clock) Option { return func(c *Client) { c.clock = clk } }

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// New builds a Client. A nil cache gets a fresh MemoryCache, a nil logger a
// no-op one.
func New(cfg Config, cache Cache, logger *zap.Logger, opts ...Option) *Client {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:          cfg.APIKey,
		http:            &http.Client{Timeout: timeout},
		cache:           cache,
		clock:           systemClock{},
		logger:          logger.Named("perscom"),
		maxRetries:      orDefault(cfg.MaxRetries, defaultMaxRetries),
		backoff:         orDefaultDur(cfg.RetryBackoff, defaultRetryBackoff),
		pageConcurrency: orDefault(cfg.PageConcurrency, defaultPageConcurrency),
		maxPages:        orDefault(cfg.MaxPages, defaultMaxPages),
		ttl:             orDefaultDur(cfg.CacheTTL, DefaultCacheTTL),
		sleep:           sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch issues one request against endpoint (a path relative to the base
// URL, optionally with a query) and returns the raw JSON body, or nil for an
// empty response.
//
// Identical concurrent GETs share a single outbound call and its result; the
// returned slice is shared between them and must not be modified. A
// successful non-GET invalidates every cached family related to the
// endpoint's top-level segment.
func (c *Client) Fetch(ctx context.Context, endpoint string, opts RequestOptions) (json.RawMessage, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, fmt.Errorf("perscom: encode %s %s body: %w", method, endpoint, err)
	}

	if method == http.MethodGet {
		key := fingerprint(method, endpoint, body)
		v, err, shared := c.inflight.Do(key, func() (any, error) {
			// Detached from the first caller so its cancellation does not
			// fail everyone sharing the call; the http timeout still applies.
			return c.do(context.WithoutCancel(ctx), method, endpoint, body, opts.Header)
		})
		if shared {
			metrics.RecordCoalesced()
		}
		if err != nil {
			return nil, err
		}
		out, _ := v.(json.RawMessage)
		return out, nil
	}

	out, err := c.do(ctx, method, endpoint, body, opts.Header)
	if err != nil {
		return nil, err
	}
	c.invalidateFor(ctx, endpoint)
	return out, nil
}

// do runs the request with the retry policy: 5xx responses wait
// backoff*attempt, network faults wait a flat backoff, anything else fails
// immediately.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, header http.Header) (json.RawMessage, error) {
	for attempt := 1; ; attempt++ {
		out, err := c.send(ctx, method, endpoint, body, header)
		if err == nil {
			return out, nil
		}
		if attempt > c.maxRetries {
			return nil, err
		}

		var (
			wait   time.Duration
			reason string
			apiErr *APIError
		)
		switch {
		case errors.As(err, &apiErr) && apiErr.Retryable():
			wait, reason = c.backoff*time.Duration(attempt), "server"
		case isNetworkError(ctx, err):
			wait, reason = c.backoff, "network"
		default:
			return nil, err
		}

		metrics.RecordPerscomRetry(reason)
		c.logger.Warn("retrying perscom request",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (c *Client) send(ctx context.Context, method, endpoint string, body []byte, header http.Header) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("perscom: build request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perscom: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	metrics.RecordPerscomRequest(method, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("perscom: read %s %s: %w", method, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(method, endpoint, resp.StatusCode, data)
		c.logger.Debug("perscom error response",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("body", apiErr.Body),
		)
		return nil, apiErr
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

func (c *Client) invalidateFor(ctx context.Context, endpoint string) {
	seg := topLevelSegment(endpoint)
	if seg == "" {
		return
	}
	n, err := c.cache.InvalidateMatching(ctx, seg)
	if err != nil {
		c.logger.Warn("cache invalidation failed", zap.String("family", seg), zap.Error(err))
		return
	}
	if n > 0 {
		c.logger.Debug("cache invalidated", zap.String("family", seg), zap.Int("entries", n))
	}
}

// fingerprint identifies a request for coalescing: method, endpoint, body.
func fingerprint(method, endpoint string, body []byte) string {
	return method + ":" + endpoint + ":" + string(body)
}

// topLevelSegment returns "users" for "/users/5/award-records?x=1".
func topLevelSegment(endpoint string) string {
	if i := strings.IndexAny(endpoint, "?#"); i >= 0 {
		endpoint = endpoint[:i]
	}
	for _, part := range strings.Split(endpoint, "/") {
		if part != "" {
			return part
		}
	}
	return ""
}

func encodeBody(v any) ([]byte, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return json.Marshal(v)
	}
}

// isNetworkError reports transport-level faults (refused, reset, timeouts,
// truncated bodies) as opposed to the caller's own context ending.
func isNetworkError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDur(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
