package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanivvds/portfolio-assistant/internal/middleware"
	"github.com/yanivvds/portfolio-assistant/internal/model"
	"github.com/yanivvds/portfolio-assistant/internal/service"
	"github.com/yanivvds/portfolio-assistant/pkg/logger"
	"github.com/yanivvds/portfolio-assistant/pkg/metrics"
)

var doneFrame = []byte("[DONE]")

// RelayHandler serves the Completion Service endpoints.
type RelayHandler struct {
	relay  *service.RelayService
	logger *logger.Logger
}

// NewRelayHandler creates a new relay handler.
func NewRelayHandler(relay *service.RelayService, log *logger.Logger) *RelayHandler {
	return &RelayHandler{relay: relay, logger: log}
}

// readRequest validates the method and body shared by both endpoints. It
// writes the error response itself and reports false when the request must
// not proceed.
func (h *RelayHandler) readRequest(w http.ResponseWriter, r *http.Request) (model.CompletionRequest, bool) {
	var req model.CompletionRequest

	switch r.Method {
	case http.MethodPost:
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return req, false
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return req, false
	}

	if err := decodeJSON(r, &req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, service.ErrMessageRequired.Error())
		return req, false
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if err := middleware.ValidateProject(req.Project()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

// Chat handles POST /api/chat
func (h *RelayHandler) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	rec, err := h.relay.Complete(r.Context(), req)
	if err != nil {
		h.logger.Error("chat relay failed",
			zap.Error(err),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
		)
		writeJSON(w, http.StatusInternalServerError, rec)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ChatStream handles POST /api/chat-stream
func (h *RelayHandler) ChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sseHeaders(w, "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	ctx := r.Context()
	err := h.relay.Stream(ctx, req, func(ev model.WireEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return sendDataFrame(w, flusher, payload)
	})

	switch {
	case err == nil:
	case errors.Is(err, ctx.Err()):
		h.logger.Info("stream client disconnected",
			zap.String("correlation_id", middleware.GetCorrelationID(ctx)),
		)
		return
	default:
		h.logger.Warn("chat stream ended with error",
			zap.Error(err),
			zap.String("correlation_id", middleware.GetCorrelationID(ctx)),
		)
	}

	sendDataFrame(w, flusher, doneFrame)
}

// Routes mounts the relay endpoints on r. Methods are checked by the
// handlers so that every verb gets the JSON error body.
func (h *RelayHandler) Routes(r chi.Router) {
	r.HandleFunc("/api/chat", h.Chat)
	r.HandleFunc("/api/chat-stream", h.ChatStream)
}
