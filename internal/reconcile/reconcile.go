// Package reconcile folds a completion event stream into the in-progress
// assistant message of a chat session.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/internal/store"
	"github.com/yanivvds/portfolio-assistant/pkg/logger"
)

// State is the lifecycle position of one streaming turn.
type State int

const (
	Awaiting State = iota
	Receiving
	Finalizing
	Done
)

func (s State) String() string {
	switch s {
	case Awaiting:
		return "awaiting"
	case Receiving:
		return "receiving"
	case Finalizing:
		return "finalizing"
	default:
		return "done"
	}
}

// Step applies ev to msg and returns the next state. It has no side effects
// beyond msg.
//
// The first content fragment replaces the loading caption and later fragments
// are appended in the order received. A final or error event replaces the
// response fields wholesale with its record.
func Step(state State, msg *model.ChatMessage, ev model.StreamEvent) State {
	if state == Done {
		return Done
	}

	switch ev.Kind {
	case model.EventContent:
		if state == Awaiting {
			msg.Content = ev.Content
		} else {
			msg.Content += ev.Content
		}
		msg.IsStreaming = true
		return Receiving
	case model.EventFinal, model.EventError:
		if ev.Record != nil {
			msg.ApplyRecord(*ev.Record)
		}
		msg.IsStreaming = false
		return Done
	}
	return state
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithCaptions rotates the placeholder through captions every interval while
// no content has arrived. The rotation runs once and stops on the last caption.
func WithCaptions(captions []string, interval time.Duration) Option {
	return func(r *Reconciler) {
		r.captions = captions
		r.interval = interval
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(r *Reconciler) { r.logger = log }
}

// Reconciler owns the placeholder message of one streaming turn.
type Reconciler struct {
	store     *store.Store
	messageID string
	state     State
	captions  []string
	caption   int
	interval  time.Duration
	last      model.EventKind
	logger    *logger.Logger
}

// New creates a reconciler for the placeholder messageID in st.
func New(st *store.Store, messageID string, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     st,
		messageID: messageID,
		logger:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state.
func (r *Reconciler) State() State {
	return r.state
}

// Resolution returns the kind of the terminal event that ended the turn, or
// an empty kind if the turn was cancelled or is still running.
func (r *Reconciler) Resolution() model.EventKind {
	if !r.last.IsTerminal() {
		return ""
	}
	return r.last
}

// Apply folds one event into the placeholder message.
func (r *Reconciler) Apply(ev model.StreamEvent) State {
	if r.state == Done {
		return Done
	}
	if ev.Terminal() {
		r.state = Finalizing
	}
	r.last = ev.Kind
	r.store.UpdateByID(r.messageID, func(m *model.ChatMessage) {
		r.state = Step(r.state, m, ev)
	})
	if ev.Kind == model.EventError {
		r.logger.Warn("turn resolved to fallback", zap.String("message_id", r.messageID), zap.Error(ev.Err))
	}
	return r.state
}

// Cancel stops the turn, keeping whatever content is already visible.
func (r *Reconciler) Cancel() {
	if r.state == Done {
		return
	}
	r.store.UpdateByID(r.messageID, func(m *model.ChatMessage) {
		m.IsStreaming = false
	})
	r.state = Done
}

// Run consumes events until a terminal event, the channel closing or ctx
// ending. A snapshot of the message is sent on updates after every change;
// updates may be nil.
func (r *Reconciler) Run(ctx context.Context, events <-chan model.StreamEvent, updates chan<- model.ChatMessage) State {
	var tick <-chan time.Time
	if len(r.captions) > 1 && r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	publish := func() {
		if updates == nil {
			return
		}
		msg, ok := r.store.Get(r.messageID)
		if !ok {
			return
		}
		select {
		case updates <- msg:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			r.Cancel()
			return r.state

		case ev, ok := <-events:
			if !ok {
				// Closed without a terminal event: the stream was aborted.
				r.Cancel()
				publish()
				return r.state
			}
			r.Apply(ev)
			publish()
			if r.state == Done {
				return r.state
			}

		case <-tick:
			if r.state != Awaiting || r.caption >= len(r.captions)-1 {
				tick = nil
				continue
			}
			r.caption++
			text := r.captions[r.caption]
			r.store.UpdateByID(r.messageID, func(m *model.ChatMessage) {
				m.Content = text
			})
			publish()
		}
	}
}
