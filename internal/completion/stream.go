package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/internal/parser"
	"github.com/yanivvds/portfolio-assistant/pkg/metrics"
)

// ErrRemote is wrapped by error events that the relay sent as `{error}` frames.
var ErrRemote = errors.New("completion service reported an error")

// Stream is an in-flight streaming completion. Events yields zero or more
// content events, then exactly one final or error event, then closes. If the
// stream is closed early the channel closes without a terminal event.
type Stream struct {
	events chan model.StreamEvent
	cancel context.CancelFunc
}

// Events returns the event channel.
func (s *Stream) Events() <-chan model.StreamEvent {
	return s.events
}

// Close aborts the underlying request. It is safe to call more than once.
func (s *Stream) Close() {
	s.cancel()
}

type wireFrame struct {
	Content string          `json:"content"`
	Final   json.RawMessage `json:"final"`
	Error   string          `json:"error"`
}

func (c *Client) stream(parent context.Context, key string, body []byte, project string) *Stream {
	ctx, cancel := context.WithCancel(parent)
	s := &Stream{
		events: make(chan model.StreamEvent, 16),
		cancel: cancel,
	}

	go func() {
		defer cancel()
		defer close(s.events)
		c.runStream(ctx, s.events, key, body, project)
	}()

	return s
}

func (c *Client) runStream(ctx context.Context, out chan<- model.StreamEvent, key string, body []byte, project string) {
	ctx, span := c.tracer.Start(ctx, "completion.streaming")
	defer span.End()

	emit := func(ev model.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		c.logger.Warn("streaming completion failed", zap.Error(err), zap.String("project", project))
		metrics.RecordFallback("transport")
		emit(model.ErrorEvent(err, parser.TransportFallback()))
	}

	resp, err := c.do(ctx, pathStreaming, body)
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()

	terminal := false
	chunks := 0
	err = Decode(ctx, resp.Body, func(f Frame) error {
		if f.Done {
			return nil
		}
		events, ok := c.decodeFrame(f.Data, key)
		if !ok {
			return nil
		}
		for _, ev := range events {
			if !emit(ev) {
				return ctx.Err()
			}
			if ev.Kind == model.EventContent {
				chunks++
			}
			if ev.Terminal() {
				terminal = true
				return errStop
			}
		}
		return nil
	})

	span.SetAttributes(attribute.Int("chunks", chunks))
	if terminal || ctx.Err() != nil {
		return
	}
	if err != nil {
		fail(err)
		return
	}

	c.logger.Warn("stream ended without a final record", zap.Int("chunks", chunks))
	metrics.RecordFallback("stream_incomplete")
	emit(model.ErrorEvent(errors.New("stream ended without a final record"), parser.StreamIncompleteFallback()))
}

// decodeFrame turns one data payload into events. Unparsable frames are
// logged, counted and skipped.
func (c *Client) decodeFrame(data []byte, key string) ([]model.StreamEvent, bool) {
	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		c.logger.Warn("skipping malformed stream frame", zap.Error(err), zap.Int("bytes", len(data)))
		metrics.SkippedFramesTotal.Inc()
		return nil, false
	}

	var events []model.StreamEvent
	if wf.Content != "" {
		events = append(events, model.ContentEvent(wf.Content))
	}

	switch {
	case len(wf.Final) > 0 && !bytes.Equal(bytes.TrimSpace(wf.Final), []byte("null")):
		rec, ok := parser.Decode(wf.Final)
		if !ok {
			metrics.RecordFallback("format")
			events = append(events, model.ErrorEvent(
				errors.New("final record did not parse"),
				parser.StreamIncompleteFallback(),
			))
			break
		}
		c.cache.Put(key, rec)
		events = append(events, model.FinalEvent(rec))
	case wf.Error != "":
		metrics.RecordFallback("remote")
		events = append(events, model.ErrorEvent(
			fmt.Errorf("%w: %s", ErrRemote, wf.Error),
			parser.TransportFallback(),
		))
	}

	return events, true
}
