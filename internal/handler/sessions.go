package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanivvds/portfolio-assistant/internal/chat"
	"github.com/yanivvds/portfolio-assistant/internal/completion"
	"github.com/yanivvds/portfolio-assistant/internal/middleware"
	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/internal/render"
	"github.com/yanivvds/portfolio-assistant/internal/service"
	"github.com/yanivvds/portfolio-assistant/internal/store"
	"github.com/yanivvds/portfolio-assistant/pkg/logger"
	"github.com/yanivvds/portfolio-assistant/pkg/metrics"
)

// SessionHandler serves the chat widget backend.
type SessionHandler struct {
	registry *service.Registry
	renderer *render.Renderer
	logger   *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(registry *service.Registry, renderer *render.Renderer, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		renderer: renderer,
		logger:   log,
	}
}

// CreateSessionRequest is the body of POST /chat/sessions.
type CreateSessionRequest struct {
	Project string `json:"project,omitempty"`
}

// SendMessageRequest is the body of POST /chat/sessions/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
	Stream  bool   `json:"stream"`
}

// FollowUpRequest is the body of POST /chat/sessions/{id}/followups.
type FollowUpRequest struct {
	MessageID string `json:"messageId"`
	Index     int    `json:"index"`
}

// SessionResponse is the visible state of a session.
type SessionResponse struct {
	ID          string              `json:"id"`
	Project     string              `json:"project,omitempty"`
	Typing      bool                `json:"typing"`
	Suggestions []string            `json:"suggestions,omitempty"`
	Messages    []model.ChatMessage `json:"messages"`
}

// ToggleResponse reports the collapsed state after a toggle.
type ToggleResponse struct {
	MessageID string `json:"messageId"`
	Collapsed bool   `json:"collapsed"`
}

// DoneEvent closes a streamed turn.
type DoneEvent struct {
	MessageID string       `json:"messageId"`
	Outcome   chat.Outcome `json:"outcome"`
}

func newSessionResponse(s *chat.Session) SessionResponse {
	return SessionResponse{
		ID:          s.ID(),
		Project:     s.Project(),
		Typing:      s.Typing(),
		Suggestions: s.Suggestions(),
		Messages:    s.Messages(),
	}
}

// Routes mounts the session endpoints on r.
func (h *SessionHandler) Routes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Post("/", h.Create)
	r.Route("/{id}", func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/reset", h.Reset)
		r.Post("/messages", h.SendMessage)
		r.Post("/followups", h.FollowUp)
		r.Post("/suggestions/{index}", h.Suggestion)
		r.Get("/messages/{messageID}/html", h.MessageHTML)
		r.Post("/messages/{messageID}/toggle", h.Toggle)
	})
}

// session resolves the {id} parameter, writing the error response itself.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	s, err := h.registry.Get(id)
	if err != nil {
		h.writeSessionError(w, err)
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, chat.ErrSessionClosed):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, chat.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, chat.ErrTurnInFlight), errors.Is(err, store.ErrStreamingInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrNoSuchQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("session request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Create handles POST /chat/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateProject(req.Project); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s := h.registry.Create(req.Project)
	writeJSON(w, http.StatusCreated, newSessionResponse(s))
}

// Get handles GET /chat/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// Delete handles DELETE /chat/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.registry.Close(s.ID()); err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /chat/sessions/{id}/reset
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.NewConversation(); err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s))
}

// SendMessage handles POST /chat/sessions/{id}/messages
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mode := completion.Blocking
	if req.Stream {
		mode = completion.Streaming
	}

	turn, err := s.Send(r.Context(), req.Content, mode)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}

	if req.Stream {
		h.streamTurn(w, r, turn)
		return
	}
	h.waitTurn(w, r, turn)
}

// FollowUp handles POST /chat/sessions/{id}/followups
func (h *SessionHandler) FollowUp(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req FollowUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageID(req.MessageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	turn, err := s.AskFollowUp(r.Context(), req.MessageID, req.Index)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.waitTurn(w, r, turn)
}

// Suggestion handles POST /chat/sessions/{id}/suggestions/{index}
func (h *SessionHandler) Suggestion(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid suggestion index")
		return
	}

	turn, err := s.AskSuggestion(r.Context(), index)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.waitTurn(w, r, turn)
}

// MessageHTML handles GET /chat/sessions/{id}/messages/{messageID}/html
func (h *SessionHandler) MessageHTML(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	msg, found := s.Message(chi.URLParam(r, "messageID"))
	if !found {
		h.writeSessionError(w, chat.ErrMessageNotFound)
		return
	}

	theme := render.ParseTheme(r.URL.Query().Get("theme"))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.renderer.Message(msg, s.View(), theme)))
}

// Toggle handles POST /chat/sessions/{id}/messages/{messageID}/toggle
func (h *SessionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	messageID := chi.URLParam(r, "messageID")
	collapsed, err := s.Toggle(messageID)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{MessageID: messageID, Collapsed: collapsed})
}

// waitTurn answers with the resolved assistant message. A client that goes
// away does not cancel the turn; the answer stays in the session.
func (h *SessionHandler) waitTurn(w http.ResponseWriter, r *http.Request, turn *chat.Turn) {
	msg, err := turn.Wait(r.Context())
	if err != nil {
		return
	}
	if turn.Outcome() == chat.OutcomeCancelled {
		writeError(w, http.StatusConflict, "turn was cancelled")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// streamTurn sends message snapshots as SSE `message` events and closes with
// a `done` event.
func (h *SessionHandler) streamTurn(w http.ResponseWriter, r *http.Request, turn *chat.Turn) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sseHeaders(w, "text/event-stream")
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	ctx := r.Context()
	for msg := range turn.Updates(ctx) {
		if err := sendSSEEvent(w, flusher, "message", msg); err != nil {
			h.logger.Debug("SSE write failed", zap.Error(err))
			return
		}
	}

	select {
	case <-turn.Done():
	case <-ctx.Done():
		h.logger.Info("SSE client disconnected", zap.String("message_id", turn.MessageID))
		return
	}

	sendSSEEvent(w, flusher, "done", &DoneEvent{
		MessageID: turn.MessageID,
		Outcome:   turn.Outcome(),
	})
}
