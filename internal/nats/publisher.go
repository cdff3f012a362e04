package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/yanivvds/portfolio-assistant/internal/model"
)

// DefaultSubject is where turn events are published when none is configured.
const DefaultSubject = "portfolio.chat.turns"

// Conn is the part of a NATS connection the publisher needs.
type Conn interface {
	PublishMsg(m *nats.Msg) error
}

// Publisher publishes turn events on a single subject.
type Publisher struct {
	conn    Conn
	subject string
}

// NewPublisher creates a publisher on subject.
func NewPublisher(conn Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject}
}

// Subject returns the publish subject.
func (p *Publisher) Subject() string {
	return p.subject
}

// PublishTurn publishes ev as JSON.
func (p *Publisher) PublishTurn(ctx context.Context, ev *model.TurnEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal turn event: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set(nats.MsgIdHdr, ev.ID)

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish turn event: %w", err)
	}
	return nil
}
