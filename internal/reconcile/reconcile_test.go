package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/internal/parser"
	"github.com/yanivvds/portfolio-assistant/internal/store"
)

func placeholder(t *testing.T, caption string) (*store.Store, string) {
	t.Helper()
	st := store.New(model.ChatMessage{ID: "u1", Role: model.RoleUser, Content: "What stack?"})
	require.NoError(t, st.Append(model.ChatMessage{ID: "a1", Role: model.RoleAssistant, Content: caption, IsStreaming: true}))
	return st, "a1"
}

func feed(events ...model.StreamEvent) <-chan model.StreamEvent {
	ch := make(chan model.StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestStep_ChunkOrder(t *testing.T) {
	msg := model.ChatMessage{Content: "Thinking...", IsStreaming: true}

	state := Awaiting
	for _, c := range []string{"He", "ll", "o"} {
		state = Step(state, &msg, model.ContentEvent(c))
	}

	assert.Equal(t, Receiving, state)
	assert.Equal(t, "Hello", msg.Content)
	assert.True(t, msg.IsStreaming)
}

func TestStep_DoneIgnoresEvents(t *testing.T) {
	msg := model.ChatMessage{Content: "final"}
	state := Step(Done, &msg, model.ContentEvent("late"))
	assert.Equal(t, Done, state)
	assert.Equal(t, "final", msg.Content)
}

func TestRun_HappyPath(t *testing.T) {
	st, id := placeholder(t, "Thinking...")
	rec := model.Record{
		Response:          "React and TypeScript.",
		FollowUpQuestions: []string{"Show architecture"},
		InteractiveElement: &model.InteractiveElement{
			Type:    model.ElementTechStack,
			Content: "Stack",
		},
	}

	updates := make(chan model.ChatMessage, 8)
	r := New(st, id)
	state := r.Run(context.Background(), feed(
		model.ContentEvent("Rea"),
		model.ContentEvent("ct"),
		model.FinalEvent(rec),
	), updates)
	close(updates)

	assert.Equal(t, Done, state)

	var seen []string
	for u := range updates {
		seen = append(seen, u.Content)
	}
	assert.Equal(t, []string{"Rea", "React", "React and TypeScript."}, seen)

	msg, ok := st.Get(id)
	require.True(t, ok)
	assert.False(t, msg.IsStreaming)
	assert.Equal(t, "React and TypeScript.", msg.Content)
	assert.Equal(t, []string{"Show architecture"}, msg.FollowUpQuestions)
	assert.Equal(t, model.ElementTechStack, msg.InteractiveElement.Type)
	assert.Equal(t, 0, st.StreamingCount())
}

func TestRun_ErrorAppliesFallback(t *testing.T) {
	st, id := placeholder(t, "Thinking...")

	r := New(st, id)
	state := r.Run(context.Background(), feed(
		model.ContentEvent("partial"),
		model.ErrorEvent(errors.New("boom"), parser.TransportFallback()),
	), nil)

	assert.Equal(t, Done, state)
	msg, _ := st.Get(id)
	assert.False(t, msg.IsStreaming)
	assert.Equal(t, parser.TransportFallback().Response, msg.Content)
	assert.Equal(t, model.ElementContact, msg.InteractiveElement.Type)
}

func TestRun_CancelKeepsContent(t *testing.T) {
	st, id := placeholder(t, "Thinking...")
	events := make(chan model.StreamEvent, 1)
	events <- model.ContentEvent("half an answer")

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan model.ChatMessage)
	done := make(chan State, 1)

	r := New(st, id)
	go func() { done <- r.Run(ctx, events, updates) }()

	first := <-updates
	assert.Equal(t, "half an answer", first.Content)
	cancel()

	select {
	case state := <-done:
		assert.Equal(t, Done, state)
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}

	msg, _ := st.Get(id)
	assert.False(t, msg.IsStreaming)
	assert.Equal(t, "half an answer", msg.Content)
	assert.Nil(t, msg.InteractiveElement)
}

func TestRun_ClosedWithoutTerminal(t *testing.T) {
	st, id := placeholder(t, "Thinking...")

	r := New(st, id)
	state := r.Run(context.Background(), feed(model.ContentEvent("x")), nil)

	assert.Equal(t, Done, state)
	msg, _ := st.Get(id)
	assert.False(t, msg.IsStreaming)
	assert.Equal(t, "x", msg.Content)
}

func TestRun_CaptionsRotateOnceWhileAwaiting(t *testing.T) {
	captions := []string{"one", "two", "three"}
	st, id := placeholder(t, captions[0])
	events := make(chan model.StreamEvent)
	updates := make(chan model.ChatMessage, 16)

	r := New(st, id, WithCaptions(captions, 10*time.Millisecond))
	done := make(chan State, 1)
	go func() { done <- r.Run(context.Background(), events, updates) }()

	assert.Equal(t, "two", (<-updates).Content)
	assert.Equal(t, "three", (<-updates).Content)

	// The rotation stops at the last caption.
	time.Sleep(50 * time.Millisecond)
	msg, _ := st.Get(id)
	assert.Equal(t, "three", msg.Content)

	events <- model.ContentEvent("Hi")
	assert.Equal(t, "Hi", (<-updates).Content)

	events <- model.FinalEvent(model.Record{Response: "Hi there"})
	assert.Equal(t, "Hi there", (<-updates).Content)
	assert.Equal(t, Done, <-done)
	assert.Empty(t, updates)
}

func TestReconciler_Resolution(t *testing.T) {
	st, id := placeholder(t, "Thinking...")
	r := New(st, id)
	assert.Equal(t, model.EventKind(""), r.Resolution())

	r.Apply(model.ContentEvent("a"))
	assert.Equal(t, model.EventKind(""), r.Resolution())

	r.Apply(model.ErrorEvent(errors.New("x"), parser.TransportFallback()))
	assert.Equal(t, model.EventError, r.Resolution())

	// Events after the terminal one are ignored.
	r.Apply(model.FinalEvent(model.Record{Response: "late"}))
	assert.Equal(t, model.EventError, r.Resolution())
	msg, _ := st.Get(id)
	assert.Equal(t, parser.TransportFallback().Response, msg.Content)
}
