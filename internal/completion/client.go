// Package completion talks to the Completion Service relay on behalf of a chat session.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yanivvds/portfolio-assistant/internal/cache"
	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/internal/parser"
	"github.com/yanivvds/portfolio-assistant/pkg/logger"
	"github.com/yanivvds/portfolio-assistant/pkg/metrics"
)

const (
	pathBlocking  = "/api/chat"
	pathStreaming = "/api/chat-stream"

	maxBodyBytes = 1 << 20
)

// Mode selects how a completion is delivered.
type Mode int

const (
	// Blocking waits for one JSON record.
	Blocking Mode = iota
	// Streaming yields content fragments followed by a terminal event.
	Streaming
)

func (m Mode) String() string {
	if m == Streaming {
		return "streaming"
	}
	return "blocking"
}

// EffectiveQuery returns the question as the model should see it.
func EffectiveQuery(text, project string) string {
	if project == "" {
		return text
	}
	return fmt.Sprintf("About the %s project: %s", project, text)
}

// Result is the outcome of Complete. Blocking calls fill Record; streaming
// calls fill Stream.
type Result struct {
	Record   model.Record
	Fallback bool
	Cached   bool
	Stream   *Stream
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds blocking requests. Streaming requests are only cancelled.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Client issues completion requests and resolves every failure to a fallback record.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	cache   *cache.Cache
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewClient creates a client for the relay at baseURL that reads and writes rc.
func NewClient(baseURL string, rc *cache.Cache, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		timeout: 60 * time.Second,
		cache:   rc,
		logger:  log,
		tracer:  otel.Tracer("portfolio-assistant/completion"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = cache.New()
	}
	return c
}

// Complete asks the relay about text in the given project context. It never
// returns a transport error: failures are reported through fallback records.
// The returned error is reserved for requests that cannot be built.
func (c *Client) Complete(ctx context.Context, text, project string, mode Mode) (*Result, error) {
	body, err := json.Marshal(newRequest(text, project))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if mode == Streaming {
		return &Result{Stream: c.stream(ctx, c.cache.KeyFor(text, project), body, project)}, nil
	}
	return c.blocking(ctx, text, project, body), nil
}

func newRequest(text, project string) model.CompletionRequest {
	req := model.CompletionRequest{Message: text}
	if project != "" {
		p := project
		req.ProjectContext = &p
	}
	return req
}

func (c *Client) blocking(ctx context.Context, text, project string, body []byte) *Result {
	key := c.cache.KeyFor(text, project)
	if rec, ok := c.cache.Get(key); ok {
		c.logger.Debug("response cache hit", zap.String("key", key))
		return &Result{Record: rec, Cached: true}
	}

	ctx, span := c.tracer.Start(ctx, "completion.blocking", trace.WithAttributes(
		attribute.String("project", project),
	))
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.post(ctx, pathBlocking, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		c.logger.Warn("completion request failed", zap.Error(err))
		metrics.RecordFallback("transport")
		return &Result{Record: parser.TransportFallback(), Fallback: true}
	}

	rec, ok := parser.Parse(string(raw))
	if !ok {
		span.SetStatus(codes.Error, "format")
		c.logger.Warn("completion response did not parse", zap.Int("bytes", len(raw)))
		metrics.RecordFallback("format")
		return &Result{Record: rec, Fallback: true}
	}

	c.cache.Put(key, rec)
	return &Result{Record: rec}
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	resp, err := c.do(ctx, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return raw, nil
}

// do sends body and returns the response only for 2xx statuses.
func (c *Client) do(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return resp, nil
}

// StatusError reports a non-2xx answer from the relay.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion service returned status %d", e.Code)
}
