package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/stacklok/manifest-sync/internal/httpclient"
)

const (
	// DefaultMaxRetries bounds delivery attempts after the first one
	DefaultMaxRetries = 3

	// DefaultTimeout bounds a single delivery attempt
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 4096
)

// HTTPSink POSTs deltas as JSON to an endpoint.
type HTTPSink struct {
	endpoint        string
	client          *http.Client
	maxRetries      uint
	initialInterval time.Duration
}

var _ Sink = (*HTTPSink)(nil)

// HTTPOption configures an HTTPSink
type HTTPOption func(*HTTPSink)

// WithBearerToken authenticates every request with token
func WithBearerToken(token string) HTTPOption {
	return func(s *HTTPSink) {
		if token == "" {
			return
		}
		s.client.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   s.client.Transport,
		}
	}
}

// WithMaxRetries sets how many times a failed delivery is retried
func WithMaxRetries(n uint) HTTPOption {
	return func(s *HTTPSink) {
		s.maxRetries = n
	}
}

// WithTimeout sets the per-attempt timeout
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(s *HTTPSink) {
		if timeout > 0 {
			s.client.Timeout = timeout
		}
	}
}

// WithRetryInterval sets the initial retry interval
func WithRetryInterval(interval time.Duration) HTTPOption {
	return func(s *HTTPSink) {
		s.initialInterval = interval
	}
}

// NewHTTPSink creates a sink posting to endpoint
func NewHTTPSink(endpoint string, opts ...HTTPOption) *HTTPSink {
	s := &HTTPSink{
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxRetries:      DefaultMaxRetries,
		initialInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish posts delta, retrying transport failures, 429 and 5xx responses
func (s *HTTPSink) Publish(ctx context.Context, delta Delta) error {
	body, err := json.Marshal(delta)
	if err != nil {
		return &PublishError{Sink: s.Name(), Err: fmt.Errorf("failed to encode delta: %w", err)}
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.initialInterval

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := s.post(ctx, body)
		if err != nil {
			slog.DebugContext(ctx, "Delta delivery attempt failed",
				"endpoint", s.endpoint,
				"attempt", attempt,
				"error", err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(s.maxRetries+1),
	)
	if err != nil {
		return &PublishError{Sink: s.Name(), Err: err}
	}

	slog.InfoContext(ctx, "Delta published",
		"endpoint", s.endpoint,
		"added", len(delta.Added),
		"attempts", attempt)
	return nil
}

func (s *HTTPSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", httpclient.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	httpErr := httpclient.NewHTTPError(resp.StatusCode, s.endpoint, string(bytes.TrimSpace(msg)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return httpErr
	}
	return backoff.Permanent(httpErr)
}

// Name returns "http"
func (*HTTPSink) Name() string {
	return "http"
}
