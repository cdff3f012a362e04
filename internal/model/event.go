package model

// EventKind discriminates stream events yielded by the completion client.
type EventKind string

const (
	EventContent EventKind = "content"
	EventFinal   EventKind = "final"
	EventError   EventKind = "error"
)

// IsTerminal reports whether events of this kind end a stream.
func (k EventKind) IsTerminal() bool {
	return k == EventFinal || k == EventError
}

// StreamEvent is one typed event of a streaming completion.
//
// Content events carry a raw text fragment. Final events carry the resolved
// record. Error events carry the fallback record to display and the cause.
type StreamEvent struct {
	Kind    EventKind
	Content string
	Record  *Record
	Err     error
}

// Terminal reports whether the event ends the logical stream.
func (e StreamEvent) Terminal() bool {
	return e.Kind.IsTerminal()
}

// ContentEvent builds a content event.
func ContentEvent(text string) StreamEvent {
	return StreamEvent{Kind: EventContent, Content: text}
}

// FinalEvent builds a final event.
func FinalEvent(r Record) StreamEvent {
	return StreamEvent{Kind: EventFinal, Record: &r}
}

// ErrorEvent builds an error event carrying its fallback record.
func ErrorEvent(err error, fallback Record) StreamEvent {
	return StreamEvent{Kind: EventError, Record: &fallback, Err: err}
}
