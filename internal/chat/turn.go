package chat

import (
	"context"
	"sync"

	"github.com/yanivvds/portfolio-assistant/internal/completion"
	"github.com/yanivvds/portfolio-assistant/internal/model"
)

// Outcome describes how a turn ended.
type Outcome string

const (
	OutcomeAnswered  Outcome = "answered"
	OutcomeCached    Outcome = "cached"
	OutcomeFallback  Outcome = "fallback"
	OutcomeCancelled Outcome = "cancelled"
)

// Turn is one in-flight assistant answer. Message snapshots are published as
// the answer changes; subscribers always see the latest state.
type Turn struct {
	// MessageID is the id of the assistant message the turn resolves into.
	MessageID string
	Mode      completion.Mode

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	latest   model.ChatMessage
	version  int
	changed  chan struct{}
	finished bool
	outcome  Outcome
}

func newTurn(messageID string, mode completion.Mode, cancel context.CancelFunc) *Turn {
	return &Turn{
		MessageID: messageID,
		Mode:      mode,
		cancel:    cancel,
		done:      make(chan struct{}),
		changed:   make(chan struct{}),
	}
}

func (t *Turn) publish(msg model.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.latest = msg.Clone()
	t.version++
	close(t.changed)
	t.changed = make(chan struct{})
}

func (t *Turn) finish(outcome Outcome) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.outcome = outcome
	close(t.changed)
	t.mu.Unlock()
	close(t.done)
}

// Done is closed when the turn has resolved or been cancelled.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Outcome returns how the turn ended. It is empty while the turn runs.
func (t *Turn) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Latest returns the most recent message snapshot.
func (t *Turn) Latest() model.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest.Clone()
}

// Updates streams message snapshots until the turn finishes or ctx ends.
// Intermediate snapshots may be skipped when the reader is slow; the last
// snapshot before the channel closes is always the resolved message.
func (t *Turn) Updates(ctx context.Context) <-chan model.ChatMessage {
	out := make(chan model.ChatMessage)

	go func() {
		defer close(out)
		seen := 0
		for {
			t.mu.Lock()
			msg, version, finished, changed := t.latest, t.version, t.finished, t.changed
			t.mu.Unlock()

			if version != seen {
				seen = version
				select {
				case out <- msg.Clone():
				case <-ctx.Done():
					return
				}
				continue
			}
			if finished {
				return
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Wait blocks until the turn finishes and returns the resolved message.
func (t *Turn) Wait(ctx context.Context) (model.ChatMessage, error) {
	select {
	case <-t.done:
		return t.Latest(), nil
	case <-ctx.Done():
		return model.ChatMessage{}, ctx.Err()
	}
}

// Cancel aborts the turn.
func (t *Turn) Cancel() {
	t.cancel()
}
