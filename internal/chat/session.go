// Package chat implements the per-visitor chat session controller.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanivvds/portfolio-assistant/internal/completion"
	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/internal/parser"
	"github.com/yanivvds/portfolio-assistant/internal/reconcile"
	"github.com/yanivvds/portfolio-assistant/internal/render"
	"github.com/yanivvds/portfolio-assistant/internal/store"
	"github.com/yanivvds/portfolio-assistant/pkg/logger"
	"github.com/yanivvds/portfolio-assistant/pkg/metrics"
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrTurnInFlight    = errors.New("a turn is already in flight")
	ErrSessionClosed   = errors.New("session is closed")
	ErrMessageNotFound = errors.New("message not found")
	ErrNoSuchQuestion  = errors.New("question index out of range")
)

// Completer resolves a question into a completion result.
type Completer interface {
	Complete(ctx context.Context, text, project string, mode completion.Mode) (*completion.Result, error)
}

// Option configures a Session.
type Option func(*Session)

// WithCaptionInterval sets how often loading captions advance.
func WithCaptionInterval(d time.Duration) Option {
	return func(s *Session) { s.captionInterval = d }
}

// WithLogger sets the session logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Session) { s.logger = log }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is the state of one open chat widget. It lives from chat-open to
// chat-close; Close aborts whatever is in flight.
type Session struct {
	id     string
	client Completer
	store  *store.Store
	view   *render.ViewState

	captionInterval time.Duration
	logger          *logger.Logger
	now             func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	project         string
	questionCount   int
	showSuggestions bool
	turn            *Turn
	lastActive      time.Time
	closed          bool
	resetting       bool

	// beforeReset runs once the previous turn has stopped, while the
	// transcript is still intact.
	beforeReset func()
}

// NewSession opens a session. An empty or "general" project starts with the
// greeting; any other project starts with that project's introduction.
func NewSession(id string, client Completer, project string, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:              id,
		client:          client,
		store:           store.New(),
		view:            render.NewViewState(),
		captionInterval: 2500 * time.Millisecond,
		logger:          logger.NewNop(),
		now:             time.Now,
		ctx:             ctx,
		cancel:          cancel,
		showSuggestions: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithSession(id, project)
	s.lastActive = s.now()
	s.store.Reset(s.greeting())

	if project != "" && project != GeneralProject {
		s.OpenProject(project)
	}
	return s
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (s *Session) greeting() model.ChatMessage {
	return model.ChatMessage{
		ID:        newID(),
		Role:      model.RoleAssistant,
		Content:   Greeting,
		Timestamp: s.now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Messages returns a snapshot of the conversation.
func (s *Session) Messages() []model.ChatMessage { return s.store.All() }

// Message returns one message by id.
func (s *Session) Message(id string) (model.ChatMessage, bool) { return s.store.Get(id) }

// View returns the presentation state of the session.
func (s *Session) View() *render.ViewState { return s.view }

// Project returns the current project context, empty for general chat.
func (s *Session) Project() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// Typing reports whether an assistant turn is in flight.
func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn != nil
}

// Suggestions returns the suggested questions, or nil once the visitor has
// interacted.
func (s *Session) Suggestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.showSuggestions {
		return nil
	}
	return append([]string(nil), Suggestions...)
}

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Toggle flips the collapsed state of a message's element.
func (s *Session) Toggle(messageID string) (bool, error) {
	if _, ok := s.store.Get(messageID); !ok {
		return false, ErrMessageNotFound
	}
	s.touch()
	return s.view.Toggle(messageID), nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// OpenProject switches the session to project and appends its canned
// introduction. No completion request is made.
func (s *Session) OpenProject(project string) error {
	project = strings.TrimSpace(project)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.turn != nil || s.resetting {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	if project == GeneralProject {
		project = ""
	}
	s.project = project
	s.questionCount++
	s.showSuggestions = false
	s.lastActive = s.now()
	s.mu.Unlock()

	name := project
	if name == "" {
		name = GeneralProject
	}
	s.store.Append(model.ChatMessage{
		ID:        newID(),
		Role:      model.RoleUser,
		Content:   ProjectRequest(name),
		Timestamp: s.now(),
	})

	intro := model.ChatMessage{ID: newID(), Role: model.RoleAssistant, Timestamp: s.now()}
	intro.ApplyRecord(ProjectIntro(project))
	s.store.Append(intro)

	s.logger.Info("project chat opened", zap.String("project", name))
	return nil
}

// NewConversation drops the project context and restarts from the greeting.
// A turn in flight is cancelled first. No new turn can start until the
// greeting is back.
func (s *Session) NewConversation() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.resetting {
		s.mu.Unlock()
		return ErrTurnInFlight
	}
	s.resetting = true
	turn := s.turn
	s.mu.Unlock()

	if turn != nil {
		turn.Cancel()
		<-turn.Done()
	}
	if s.beforeReset != nil {
		s.beforeReset()
	}

	s.view.Reset()
	s.store.Reset(s.greeting())

	s.mu.Lock()
	s.project = ""
	s.showSuggestions = true
	s.lastActive = s.now()
	s.resetting = false
	s.mu.Unlock()
	return nil
}

// Send starts an assistant turn for text. It fails fast with ErrEmptyMessage
// or ErrTurnInFlight; every other failure resolves into a fallback answer on
// the returned turn.
func (s *Session) Send(ctx context.Context, text string, mode completion.Mode) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.turn != nil || s.resetting {
		s.mu.Unlock()
		return nil, ErrTurnInFlight
	}

	captions := Captions(s.questionCount)
	s.questionCount++
	s.showSuggestions = false
	s.lastActive = s.now()
	project := s.project

	turnCtx, cancel := context.WithCancel(s.ctx)
	turn := newTurn(newID(), mode, cancel)
	s.turn = turn
	s.wg.Add(1)
	s.mu.Unlock()

	s.store.Append(model.ChatMessage{
		ID:        newID(),
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: s.now(),
	})

	if mode == completion.Streaming {
		placeholder := model.ChatMessage{
			ID:          turn.MessageID,
			Role:        model.RoleAssistant,
			Content:     captions[0],
			Timestamp:   s.now(),
			IsStreaming: true,
		}
		if err := s.store.Append(placeholder); err != nil {
			s.endTurn(turn, OutcomeCancelled)
			return nil, err
		}
		turn.publish(placeholder)
		go s.runStreaming(turnCtx, turn, text, project, captions)
	} else {
		go s.runBlocking(turnCtx, turn, text, project)
	}

	return turn, nil
}

func (s *Session) runStreaming(ctx context.Context, turn *Turn, text, project string, captions []string) {
	start := s.now()
	res, err := s.client.Complete(ctx, text, project, completion.Streaming)
	if err != nil || res.Stream == nil {
		s.logger.Error("streaming completion could not start", zap.Error(err))
		s.store.UpdateByID(turn.MessageID, func(m *model.ChatMessage) {
			m.ApplyRecord(parser.TransportFallback())
		})
		s.publishMessage(turn)
		s.endTurn(turn, OutcomeFallback)
		return
	}
	defer res.Stream.Close()

	updates := make(chan model.ChatMessage)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for msg := range updates {
			turn.publish(msg)
		}
	}()

	rec := reconcile.New(s.store, turn.MessageID,
		reconcile.WithCaptions(captions, s.captionInterval),
		reconcile.WithLogger(s.logger),
	)
	rec.Run(ctx, res.Stream.Events(), updates)
	close(updates)
	<-forwarded
	s.publishMessage(turn)

	outcome := OutcomeCancelled
	switch rec.Resolution() {
	case model.EventFinal:
		outcome = OutcomeAnswered
	case model.EventError:
		outcome = OutcomeFallback
	}
	s.logger.Info("streaming turn finished",
		zap.String("message_id", turn.MessageID),
		zap.String("outcome", string(outcome)),
		zap.Duration("latency", s.now().Sub(start)),
	)
	s.endTurn(turn, outcome)
}

func (s *Session) runBlocking(ctx context.Context, turn *Turn, text, project string) {
	start := s.now()
	res, err := s.client.Complete(ctx, text, project, completion.Blocking)

	if ctx.Err() != nil {
		s.endTurn(turn, OutcomeCancelled)
		return
	}

	outcome := OutcomeAnswered
	record := parser.TransportFallback()
	switch {
	case err != nil:
		s.logger.Error("blocking completion failed", zap.Error(err))
		outcome = OutcomeFallback
	case res.Fallback:
		record = res.Record
		outcome = OutcomeFallback
	case res.Cached:
		record = res.Record
		outcome = OutcomeCached
	default:
		record = res.Record
	}

	msg := model.ChatMessage{ID: turn.MessageID, Role: model.RoleAssistant, Timestamp: s.now()}
	msg.ApplyRecord(record)
	s.store.Append(msg)
	turn.publish(msg)

	s.logger.Info("blocking turn finished",
		zap.String("message_id", turn.MessageID),
		zap.String("outcome", string(outcome)),
		zap.Duration("latency", s.now().Sub(start)),
	)
	s.endTurn(turn, outcome)
}

func (s *Session) publishMessage(turn *Turn) {
	if msg, ok := s.store.Get(turn.MessageID); ok {
		turn.publish(msg)
	}
}

func (s *Session) endTurn(turn *Turn, outcome Outcome) {
	s.mu.Lock()
	if s.turn == turn {
		s.turn = nil
	}
	s.lastActive = s.now()
	s.mu.Unlock()

	turn.cancel()
	turn.finish(outcome)
	metrics.TurnsTotal.WithLabelValues(turn.Mode.String(), string(outcome)).Inc()
	s.wg.Done()
}

// AskFollowUp sends the index-th follow-up question of message messageID.
func (s *Session) AskFollowUp(ctx context.Context, messageID string, index int) (*Turn, error) {
	msg, ok := s.store.Get(messageID)
	if !ok {
		return nil, ErrMessageNotFound
	}
	if index < 0 || index >= len(msg.FollowUpQuestions) {
		return nil, ErrNoSuchQuestion
	}
	return s.Send(ctx, msg.FollowUpQuestions[index], completion.Blocking)
}

// AskSuggestion sends the index-th suggested question.
func (s *Session) AskSuggestion(ctx context.Context, index int) (*Turn, error) {
	if index < 0 || index >= len(Suggestions) {
		return nil, ErrNoSuchQuestion
	}
	return s.Send(ctx, Suggestions[index], completion.Blocking)
}

// Close cancels any turn in flight and waits for it to stop.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Debug("session closed")
}
