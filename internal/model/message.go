// Package model defines data structures for the portfolio chat assistant.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry in a chat session's message store.
type ChatMessage struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	IsStreaming bool      `json:"isStreaming"`

	// Populated once an assistant turn resolves.
	FollowUpQuestions  []string            `json:"followUpQuestions,omitempty"`
	InteractiveElement *InteractiveElement `json:"interactiveElement,omitempty"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (m ChatMessage) Clone() ChatMessage {
	if m.FollowUpQuestions != nil {
		m.FollowUpQuestions = append([]string(nil), m.FollowUpQuestions...)
	}
	if m.InteractiveElement != nil {
		el := m.InteractiveElement.Clone()
		m.InteractiveElement = &el
	}
	return m
}

// ApplyRecord replaces the resolved fields of an assistant message with a record.
func (m *ChatMessage) ApplyRecord(r Record) {
	m.Content = r.Response
	m.FollowUpQuestions = append([]string(nil), r.FollowUpQuestions...)
	if r.InteractiveElement != nil {
		el := r.InteractiveElement.Clone()
		m.InteractiveElement = &el
	} else {
		m.InteractiveElement = nil
	}
	m.IsStreaming = false
}
