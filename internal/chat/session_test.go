package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanivvds/portfolio-assistant/internal/cache"
	"github.com/yanivvds/portfolio-assistant/internal/completion"
	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/pkg/logger"
)

const answerJSON = `{"response":"React and TypeScript.","followUpQuestions":["Show architecture","Who built it?"],"interactiveElement":{"type":"tech_stack","content":"Stack","metadata":{"technologies":[{"name":"React"}]}}}`

type relay struct {
	blockingCalls  atomic.Int32
	streamingCalls atomic.Int32
	hold           chan struct{}
}

func (rl *relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/chat":
		rl.blockingCalls.Add(1)
		if rl.hold != nil {
			select {
			case <-rl.hold:
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(answerJSON))
	case "/api/chat-stream":
		rl.streamingCalls.Add(1)
		flusher := w.(http.Flusher)
		w.Write([]byte("data: {\"content\":\"React\"}\n\n"))
		flusher.Flush()
		if rl.hold != nil {
			select {
			case <-rl.hold:
			case <-r.Context().Done():
				return
			}
		}
		w.Write([]byte("data: {\"content\":\" rocks\"}\n\ndata: {\"final\":" + answerJSON + "}\n\ndata: [DONE]\n\n"))
	default:
		http.NotFound(w, r)
	}
}

func newTestSession(t *testing.T, rl *relay, project string) *Session {
	t.Helper()
	srv := httptest.NewServer(rl)
	t.Cleanup(srv.Close)

	client := completion.NewClient(srv.URL, cache.New(), logger.NewNop(), completion.WithHTTPClient(srv.Client()))
	s := NewSession("s1", client, project, WithCaptionInterval(time.Hour))
	t.Cleanup(s.Close)
	return s
}

func waitTurn(t *testing.T, turn *Turn) model.ChatMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := turn.Wait(ctx)
	require.NoError(t, err)
	return msg
}

func TestNewSession_Greeting(t *testing.T) {
	s := newTestSession(t, &relay{}, "")

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleAssistant, msgs[0].Role)
	assert.Equal(t, Greeting, msgs[0].Content)
	assert.Len(t, s.Suggestions(), 7)
	assert.False(t, s.Typing())
}

func TestNewSession_ProjectIntro(t *testing.T) {
	rl := &relay{}
	s := newTestSession(t, rl, "KPN Easy Mode")

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Tell me more about the KPN Easy Mode project", msgs[1].Content)
	assert.Contains(t, msgs[2].Content, "I can tell you about the KPN Easy Mode project.")
	assert.Contains(t, msgs[2].Content, "Some details are confidential")
	assert.Equal(t, ProjectFollowUps, msgs[2].FollowUpQuestions)
	assert.True(t, msgs[2].InteractiveElement.IsBlank())
	assert.Equal(t, "KPN Easy Mode", s.Project())
	assert.Nil(t, s.Suggestions())
	assert.Equal(t, int32(0), rl.blockingCalls.Load()+rl.streamingCalls.Load())
}

func TestProjectIntro_NotConfidential(t *testing.T) {
	rec := ProjectIntro("Portfolio Site")
	assert.NotContains(t, rec.Response, "confidential")
	assert.True(t, strings.HasSuffix(rec.Response, "• What challenges were overcome?"))
}

func TestSession_StreamingTurn(t *testing.T) {
	s := newTestSession(t, &relay{}, "")

	turn, err := s.Send(context.Background(), "  What stack?  ", completion.Streaming)
	require.NoError(t, err)

	var contents []string
	for msg := range turn.Updates(context.Background()) {
		contents = append(contents, msg.Content)
	}
	require.NotEmpty(t, contents)
	assert.Equal(t, "React and TypeScript.", contents[len(contents)-1])

	msg := waitTurn(t, turn)
	assert.False(t, msg.IsStreaming)
	assert.Equal(t, []string{"Show architecture", "Who built it?"}, msg.FollowUpQuestions)
	assert.Equal(t, OutcomeAnswered, turn.Outcome())

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "What stack?", msgs[1].Content)
	assert.Equal(t, turn.MessageID, msgs[2].ID)
	assert.False(t, s.Typing())
}

func TestSession_RejectsEmptyAndConcurrent(t *testing.T) {
	rl := &relay{hold: make(chan struct{})}
	s := newTestSession(t, rl, "")

	_, err := s.Send(context.Background(), "   ", completion.Blocking)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	turn, err := s.Send(context.Background(), "first", completion.Streaming)
	require.NoError(t, err)
	assert.True(t, s.Typing())

	_, err = s.Send(context.Background(), "second", completion.Blocking)
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(rl.hold)
	waitTurn(t, turn)

	_, err = s.Send(context.Background(), "third", completion.Blocking)
	assert.NoError(t, err)
}

func TestSession_BlockingCachedSecondTime(t *testing.T) {
	rl := &relay{}
	s := newTestSession(t, rl, "")

	first, err := s.Send(context.Background(), "What stack?", completion.Blocking)
	require.NoError(t, err)
	msg := waitTurn(t, first)
	assert.Equal(t, "React and TypeScript.", msg.Content)
	assert.Equal(t, OutcomeAnswered, first.Outcome())

	second, err := s.Send(context.Background(), "what STACK?", completion.Blocking)
	require.NoError(t, err)
	waitTurn(t, second)
	assert.Equal(t, OutcomeCached, second.Outcome())
	assert.Equal(t, int32(1), rl.blockingCalls.Load())
}

func TestSession_AskFollowUpAndSuggestion(t *testing.T) {
	rl := &relay{}
	s := newTestSession(t, rl, "Portfolio Site")
	intro := s.Messages()[2]

	turn, err := s.AskFollowUp(context.Background(), intro.ID, 0)
	require.NoError(t, err)
	waitTurn(t, turn)
	assert.Equal(t, completion.Blocking, turn.Mode)

	msgs := s.Messages()
	assert.Equal(t, ProjectFollowUps[0], msgs[3].Content)

	_, err = s.AskFollowUp(context.Background(), intro.ID, 9)
	assert.ErrorIs(t, err, ErrNoSuchQuestion)
	_, err = s.AskFollowUp(context.Background(), "missing", 0)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	turn, err = s.AskSuggestion(context.Background(), 6)
	require.NoError(t, err)
	waitTurn(t, turn)
	assert.Equal(t, "How can I contact Yaniv?", s.Messages()[5].Content)
	assert.Equal(t, int32(2), rl.blockingCalls.Load())
	assert.Equal(t, int32(0), rl.streamingCalls.Load())
}

func TestSession_TransportFailureFallback(t *testing.T) {
	client := completion.NewClient("http://127.0.0.1:1", cache.New(), logger.NewNop(), completion.WithTimeout(time.Second))
	s := NewSession("s1", client, "")
	defer s.Close()

	turn, err := s.Send(context.Background(), "hello", completion.Streaming)
	require.NoError(t, err)

	msg := waitTurn(t, turn)
	assert.False(t, msg.IsStreaming)
	require.NotNil(t, msg.InteractiveElement)
	assert.Equal(t, model.ElementContact, msg.InteractiveElement.Type)
	assert.Equal(t, OutcomeFallback, turn.Outcome())
}

func TestSession_StreamWithoutFinalIsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"content\":\"partial\"}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := completion.NewClient(srv.URL, cache.New(), logger.NewNop(), completion.WithHTTPClient(srv.Client()))
	s := NewSession("s1", client, "", WithCaptionInterval(time.Hour))
	defer s.Close()

	turn, err := s.Send(context.Background(), "hello", completion.Streaming)
	require.NoError(t, err)

	msg := waitTurn(t, turn)
	assert.False(t, msg.IsStreaming)
	require.NotNil(t, msg.InteractiveElement)
	assert.Equal(t, model.ElementContact, msg.InteractiveElement.Type)
	assert.Equal(t, OutcomeFallback, turn.Outcome())
}

func TestSession_CloseCancelsInFlight(t *testing.T) {
	rl := &relay{hold: make(chan struct{})}
	defer close(rl.hold)
	s := newTestSession(t, rl, "")

	turn, err := s.Send(context.Background(), "slow", completion.Streaming)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for msg := range turn.Updates(ctx) {
		if msg.Content == "React" {
			break
		}
	}

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return")
	}

	assert.Equal(t, OutcomeCancelled, turn.Outcome())
	msg, ok := s.Message(turn.MessageID)
	require.True(t, ok)
	assert.False(t, msg.IsStreaming)
	assert.Equal(t, "React", msg.Content)

	_, err = s.Send(context.Background(), "again", completion.Blocking)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_NewConversation(t *testing.T) {
	s := newTestSession(t, &relay{}, "KPN Easy Mode")
	intro := s.Messages()[2]
	_, err := s.Toggle(intro.ID)
	require.NoError(t, err)

	require.NoError(t, s.NewConversation())

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, Greeting, msgs[0].Content)
	assert.Empty(t, s.Project())
	assert.NotNil(t, s.Suggestions())
	assert.False(t, s.View().Collapsed(intro.ID))

	_, err = s.Toggle("missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestSession_NoTurnStartsDuringReset(t *testing.T) {
	rl := &relay{hold: make(chan struct{})}
	s := newTestSession(t, rl, "")

	turn, err := s.Send(context.Background(), "slow", completion.Streaming)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for msg := range turn.Updates(ctx) {
		if msg.Content == "React" {
			break
		}
	}

	var sendErr, openErr error
	s.beforeReset = func() {
		_, sendErr = s.Send(context.Background(), "sneaky", completion.Streaming)
		openErr = s.OpenProject("KPN Easy Mode")
	}
	require.NoError(t, s.NewConversation())
	close(rl.hold)

	assert.ErrorIs(t, sendErr, ErrTurnInFlight)
	assert.ErrorIs(t, openErr, ErrTurnInFlight)
	assert.Equal(t, OutcomeCancelled, turn.Outcome())

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, Greeting, msgs[0].Content)
	assert.False(t, s.Typing())

	s.beforeReset = nil
	next, err := s.Send(context.Background(), "hello again", completion.Blocking)
	require.NoError(t, err)
	assert.Equal(t, "React and TypeScript.", waitTurn(t, next).Content)
}

func TestCaptions_RotateBySet(t *testing.T) {
	assert.Equal(t, "Thinking about your question...", Captions(0)[0])
	assert.Equal(t, "Processing your inquiry...", Captions(1)[0])
	assert.Equal(t, Captions(0), Captions(4))
	for i := 0; i < 4; i++ {
		assert.Len(t, Captions(i), 5)
	}
}
