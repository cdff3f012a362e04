package model

// Record is the structured unit of a resolved assistant turn.
type Record struct {
	Response           string              `json:"response"`
	FollowUpQuestions  []string            `json:"followUpQuestions"`
	InteractiveElement *InteractiveElement `json:"interactiveElement"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{
		Response:          r.Response,
		FollowUpQuestions: append([]string{}, r.FollowUpQuestions...),
	}
	if r.InteractiveElement != nil {
		el := r.InteractiveElement.Clone()
		out.InteractiveElement = &el
	}
	return out
}

// CompletionRequest is the body accepted by both Completion Service endpoints.
type CompletionRequest struct {
	Message        string  `json:"message"`
	ProjectContext *string `json:"projectContext"`
}

// Project returns the project context or an empty string.
func (r CompletionRequest) Project() string {
	if r.ProjectContext == nil {
		return ""
	}
	return *r.ProjectContext
}

// WireEvent is the JSON payload of one `data:` frame on the streaming endpoint.
type WireEvent struct {
	Content string  `json:"content,omitempty"`
	Final   *Record `json:"final,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// TurnEvent summarises a relayed turn for analytics subscribers.
type TurnEvent struct {
	ID             string `json:"id"`
	Query          string `json:"query"`
	ProjectContext string `json:"project_context,omitempty"`
	Mode           string `json:"mode"`
	Outcome        string `json:"outcome"`
	ElementType    string `json:"element_type,omitempty"`
	Model          string `json:"model"`
	LatencyMs      int64  `json:"latency_ms"`
}
