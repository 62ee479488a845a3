package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/tripdesk/concierge/internal/channels"
	"github.com/tripdesk/concierge/internal/conversation"
	"github.com/tripdesk/concierge/internal/observability/metrics"
	"github.com/tripdesk/concierge/pkg/logging"
)

// endOfStreamSentinel terminates every event stream. It is sent literally,
// never percent-encoded, so clients can distinguish it from data fragments.
const endOfStreamSentinel = "end of stream"

// streamFailureMessage is sent as a final data fragment when the run behind a
// stream fails, so the client can tell a failure from an empty answer.
const streamFailureMessage = "Sorry, something went wrong on our side. Please try again shortly."

const maxWebhookBody = 1 << 20

// ConversationHandler exposes the conversation service over HTTP.
type ConversationHandler struct {
	service *conversation.Service
	logger  *logging.Logger
	metrics *metrics.ConversationMetrics
}

// NewConversationHandler creates the HTTP handler set.
func NewConversationHandler(service *conversation.Service, logger *logging.Logger, m *metrics.ConversationMetrics) *ConversationHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationHandler{service: service, logger: logger, metrics: m}
}

type chatRequest struct {
	Platform string `json:"platform"`
	Token    string `json:"token"`
	Message  string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

// Init handles POST /init.
func (h *ConversationHandler) Init(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}
	reply, err := h.service.Init(r.Context(), req.Platform, req.Token, req.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// Chat handles POST /chat.
func (h *ConversationHandler) Chat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}
	reply, err := h.service.Chat(r.Context(), req.Platform, req.Token, req.Message)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// Stage handles POST /chat_sse: it queues the message that a following GET
// /chat_sse_stream will answer.
func (h *ConversationHandler) Stage(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}
	if err := h.service.StageMessage(r.Context(), req.Platform, req.Token, req.Message); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "staged"})
}

// Stream handles GET /chat_sse_stream. Each event's data field carries one
// percent-encoded answer fragment; the final event carries the end-of-stream
// sentinel.
func (h *ConversationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	token := r.URL.Query().Get("token")

	fragments, errCh, err := h.service.ChatStream(r.Context(), platform, token)
	if err != nil {
		h.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, errors.New("handlers: response writer does not support streaming"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for frag := range fragments {
		if _, err := io.WriteString(w, "data: "+url.PathEscape(frag)+"\n\n"); err != nil {
			h.logger.Warn("stream client went away", "error", err)
			return
		}
		h.metrics.ObserveStreamFragment()
		flusher.Flush()
	}
	if err := <-errCh; err != nil {
		h.logger.Error("stream ended with error", "error", err)
		io.WriteString(w, "data: "+url.PathEscape(streamFailureMessage)+"\n\n")
		h.metrics.ObserveStreamFragment()
		flusher.Flush()
	}
	io.WriteString(w, "data: "+endOfStreamSentinel+"\n\n")
	flusher.Flush()
}

// Webhook handles POST /webhook for channel callbacks.
func (h *ConversationHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.Webhook(r.Context(), body, r.Header.Get("Content-Type")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Index handles GET /.
func (h *ConversationHandler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": "concierge", "status": "running"})
}

// HealthCheck handles GET /health.
func (h *ConversationHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *ConversationHandler) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON body"})
		return chatRequest{}, false
	}
	return req, true
}

func (h *ConversationHandler) writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	h.logger.Warn("request rejected", "status", status, "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusForError(err error) int {
	var verr *conversation.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, conversation.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, channels.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, channels.ErrUnsupportedChannel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
