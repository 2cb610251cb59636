package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"mercator-hq/backlog/pkg/config"
	"mercator-hq/backlog/pkg/delivery"
	"mercator-hq/backlog/pkg/telemetry/tracing"
)

// DuplicateParam is the query parameter carrying the duplicate count.
const DuplicateParam = "_mod_duplicate"

// unhealthyAfter is the number of consecutive failures that gets logged
// as the endpoint being unreachable.
const unhealthyAfter = 3

// Stats counts submissions.
type Stats struct {
	Total               int64
	Failed              int64
	Throttled           int64
	ConsecutiveFailures int
	LastError           error
	LastSuccess         time.Time
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// HTTPTransport submits records to an HTTP endpoint.
type HTTPTransport struct {
	endpoint *url.URL
	token    string
	client   *http.Client
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewHTTPTransport creates a transport for cfg.URL.
func NewHTTPTransport(cfg config.TransportConfig, opts ...Option) (*HTTPTransport, error) {
	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid submission url: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("invalid submission url %q: scheme must be http or https", cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTransportTimeout
	}

	t := &HTTPTransport{
		endpoint: endpoint,
		token:    cfg.Token,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 1,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "transport", "endpoint", endpoint.Host)

	return t, nil
}

// Deliver POSTs env.Payload and maps the response status.
func (t *HTTPTransport) Deliver(ctx context.Context, env delivery.Envelope) delivery.Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.submissionURL(env), bytes.NewReader(env.Payload))
	if err != nil {
		return t.done(delivery.Result{Status: delivery.StatusFailure, Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	tracing.Inject(ctx, req.Header)

	resp, err := t.client.Do(req)
	if err != nil {
		return t.done(delivery.Result{Status: delivery.StatusFailure, Err: err})
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	result := delivery.Result{StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Status = delivery.StatusSuccess
	case resp.StatusCode == http.StatusTooManyRequests:
		result.Status = delivery.StatusThrottled
		result.Err = fmt.Errorf("server throttled submission: %s", resp.Status)
	default:
		result.Status = delivery.StatusFailure
		result.Err = fmt.Errorf("submission rejected: %s", resp.Status)
	}
	return t.done(result)
}

// Stats returns a snapshot of the submission counters.
func (t *HTTPTransport) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *HTTPTransport) submissionURL(env delivery.Envelope) string {
	u := *t.endpoint
	if env.Duplicates > 1 {
		q := u.Query()
		q.Set(DuplicateParam, strconv.Itoa(env.Duplicates))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (t *HTTPTransport) done(result delivery.Result) delivery.Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Total++
	switch result.Status {
	case delivery.StatusSuccess:
		t.stats.ConsecutiveFailures = 0
		t.stats.LastError = nil
		t.stats.LastSuccess = time.Now()
	case delivery.StatusThrottled:
		t.stats.Throttled++
	default:
		t.stats.Failed++
		t.stats.ConsecutiveFailures++
		t.stats.LastError = result.Err
		if t.stats.ConsecutiveFailures == unhealthyAfter {
			t.logger.Warn("Submission endpoint unreachable",
				"consecutive_failures", t.stats.ConsecutiveFailures,
				"error", result.Err,
			)
		}
	}
	return result
}
