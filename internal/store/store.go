// Package store holds the ordered message list of one chat session.
package store

import (
	"errors"
	"sync"

	"github.com/yanivvds/portfolio-assistant/internal/model"
)

// ErrStreamingInProgress is returned when a second streaming message is appended.
var ErrStreamingInProgress = errors.New("a streaming message already exists")

// Store is an append-mostly list of chat messages. All reads return copies.
type Store struct {
	mu       sync.RWMutex
	messages []model.ChatMessage
	index    map[string]int
}

// New creates a store seeded with msgs.
func New(msgs ...model.ChatMessage) *Store {
	s := &Store{}
	s.Reset(msgs...)
	return s
}

// Append adds msg at the end. Only one message may be streaming at a time.
func (s *Store) Append(msg model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.IsStreaming && s.streamingLocked() > 0 {
		return ErrStreamingInProgress
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg.Clone())
	return nil
}

// UpdateByID applies fn to the message with id and reports whether it existed.
// An unknown id is a no-op. The message id cannot be changed by fn.
func (s *Store) UpdateByID(id string, fn func(*model.ChatMessage)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false
	}
	fn(&s.messages[i])
	s.messages[i].ID = id
	return true
}

// Get returns a copy of the message with id.
func (s *Store) Get(id string) (model.ChatMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return model.ChatMessage{}, false
	}
	return s.messages[i].Clone(), true
}

// All returns a copy of every message in insertion order.
func (s *Store) All() []model.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ChatMessage, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Reset replaces the whole list.
func (s *Store) Reset(msgs ...model.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make([]model.ChatMessage, 0, len(msgs))
	s.index = make(map[string]int, len(msgs))
	for _, m := range msgs {
		s.index[m.ID] = len(s.messages)
		s.messages = append(s.messages, m.Clone())
	}
}

// StreamingCount returns how many messages are currently streaming.
func (s *Store) StreamingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamingLocked()
}

func (s *Store) streamingLocked() int {
	n := 0
	for _, m := range s.messages {
		if m.IsStreaming {
			n++
		}
	}
	return n
}
