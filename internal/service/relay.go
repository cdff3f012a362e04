// Package service provides business logic for the portfolio assistant.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/yanivvds/portfolio-assistant/internal/completion"
	"github.com/yanivvds/portfolio-assistant/internal/llm"
	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/internal/parser"
	"github.com/yanivvds/portfolio-assistant/pkg/logger"
	"github.com/yanivvds/portfolio-assistant/pkg/metrics"
)

// Wire error texts sent on the streaming endpoint.
const (
	ErrTextRequestFailed   = "API request failed"
	ErrTextStreamingFailed = "Streaming failed"
)

// ErrMessageRequired is returned for requests without a message.
var ErrMessageRequired = errors.New("Message is required")

// TurnPublisher receives a summary of every relayed turn.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, ev *model.TurnEvent) error
}

// RelayService answers completion requests with the model provider.
type RelayService struct {
	llmClient llm.Client
	model     string
	maxTokens int
	publisher TurnPublisher
	logger    *logger.Logger
	tracer    trace.Tracer
}

// NewRelayService creates a relay. publisher may be nil.
func NewRelayService(client llm.Client, modelName string, maxTokens int, publisher TurnPublisher, log *logger.Logger) *RelayService {
	return &RelayService{
		llmClient: client,
		model:     modelName,
		maxTokens: maxTokens,
		publisher: publisher,
		logger:    log,
		tracer:    otel.Tracer("portfolio-assistant/relay"),
	}
}

func (s *RelayService) request(req model.CompletionRequest) *llm.CompletionRequest {
	return &llm.CompletionRequest{
		Model:     s.model,
		System:    llm.SystemPrompt,
		MaxTokens: s.maxTokens,
		JSONMode:  true,
		Messages: []llm.ChatMessage{{
			Role:    "user",
			Content: completion.EffectiveQuery(req.Message, req.Project()),
		}},
	}
}

// Complete answers req with one record. When the provider fails the returned
// error is non-nil and the record is the relay's fallback answer.
func (s *RelayService) Complete(ctx context.Context, req model.CompletionRequest) (model.Record, error) {
	if req.Message == "" {
		return model.Record{}, ErrMessageRequired
	}

	ctx, span := s.tracer.Start(ctx, "relay.complete", trace.WithAttributes(
		attribute.String("project", req.Project()),
	))
	defer span.End()

	start := time.Now()
	resp, err := s.llmClient.Complete(ctx, s.request(req))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider")
		s.logger.Error("provider request failed", zap.Error(err), zap.String("provider", s.llmClient.Name()))
		metrics.RecordLLM(s.model, "blocking", "error", time.Since(start).Seconds(), 0, 0)
		metrics.RecordFallback("provider")
		s.publish(ctx, req, "blocking", "provider_error", nil, time.Since(start))
		return parser.RelayErrorFallback(), fmt.Errorf("failed to complete: %w", err)
	}
	metrics.RecordLLM(resp.Model, "blocking", "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	rec, ok := parser.ParseWith(resp.Content, parser.ChannelsAll)
	outcome := "answered"
	if !ok {
		s.logger.Warn("provider text is not a record", zap.Int("bytes", len(resp.Content)))
		metrics.RecordFallback("format")
		outcome = "format_fallback"
	}
	s.publish(ctx, req, "blocking", outcome, &rec, time.Since(start))
	return rec, nil
}

// Stream answers req incrementally. emit receives content events carrying the
// decoded answer text as it arrives, then one final or error event. The
// caller writes the closing [DONE] marker.
func (s *RelayService) Stream(ctx context.Context, req model.CompletionRequest, emit func(model.WireEvent) error) error {
	if req.Message == "" {
		return ErrMessageRequired
	}

	ctx, span := s.tracer.Start(ctx, "relay.stream", trace.WithAttributes(
		attribute.String("project", req.Project()),
	))
	defer span.End()

	start := time.Now()
	scanner := parser.NewResponseScanner()
	tokens := 0

	resp, err := s.llmClient.CompleteStream(ctx, s.request(req), func(token string, _ int) error {
		tokens++
		if text := scanner.Feed(token); text != "" {
			return emit(model.WireEvent{Content: text})
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider")
		s.logger.Error("provider stream failed", zap.Error(err), zap.Int("tokens", tokens))
		metrics.RecordLLM(s.model, "streaming", "error", time.Since(start).Seconds(), 0, tokens)
		s.publish(ctx, req, "streaming", "provider_error", nil, time.Since(start))

		text := ErrTextStreamingFailed
		if tokens == 0 {
			text = ErrTextRequestFailed
		}
		if emitErr := emit(model.WireEvent{Error: text}); emitErr != nil {
			return emitErr
		}
		return fmt.Errorf("failed to stream: %w", err)
	}
	metrics.RecordLLM(resp.Model, "streaming", "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	outcome := "answered"
	rec, ok := parser.Decode([]byte(resp.Content))
	if !ok {
		s.logger.Warn("provider stream is not a record", zap.Int("bytes", len(resp.Content)))
		metrics.RecordFallback("format")
		rec = parser.StreamFormatFallback(resp.Content)
		outcome = "format_fallback"
	}
	s.publish(ctx, req, "streaming", outcome, &rec, time.Since(start))
	return emit(model.WireEvent{Final: &rec})
}

func (s *RelayService) publish(ctx context.Context, req model.CompletionRequest, mode, outcome string, rec *model.Record, latency time.Duration) {
	if s.publisher == nil {
		return
	}

	ev := &model.TurnEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Query:          req.Message,
		ProjectContext: req.Project(),
		Mode:           mode,
		Outcome:        outcome,
		Model:          s.model,
		LatencyMs:      latency.Milliseconds(),
	}
	if rec != nil && rec.InteractiveElement != nil {
		ev.ElementType = string(rec.InteractiveElement.Type)
	}

	if err := s.publisher.PublishTurn(context.WithoutCancel(ctx), ev); err != nil {
		metrics.NATSPublishFailures.Inc()
		s.logger.Warn("failed to publish turn event", zap.Error(err))
	}
}
