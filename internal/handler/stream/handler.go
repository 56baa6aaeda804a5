package stream

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quhan/chatdeck/internal/session"
	"github.com/quhan/chatdeck/pkg/utils"
)

// Handler bridges the coordinator's event stream onto Server-Sent Events.
type Handler struct {
	coord *session.Coordinator
}

// New creates a new stream handler.
func New(coord *session.Coordinator) *Handler {
	return &Handler{coord: coord}
}

// RegisterRoutes registers the streaming routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{key}", h.handleStream)
	r.Post("/stream/{key}/stop", h.handleStop)
	r.Get("/stream/{key}/state", h.handleState)
}

// handleStream starts a send for the key and relays coordinator events as
// SSE frames until a terminal event arrives. A dropped connection stops the
// in-flight attempt so the key does not stay busy.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	message := r.URL.Query().Get("message")
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	// All SSE writes happen on this goroutine; the sink only forwards
	// events into the channel. done releases callbacks that outlive the
	// request.
	events := make(chan session.StreamEvent, 16)
	done := make(chan struct{})
	defer close(done)

	sink := func(ev session.StreamEvent) {
		select {
		case events <- ev:
		case <-done:
		}
	}

	ctx := r.Context()
	if _, err := h.coord.Send(ctx, key, message, sink); err != nil {
		utils.SendSSEChunk(w, flusher, session.StreamEvent{
			Type:            session.StreamEventError,
			ConversationKey: key,
			Error:           err.Error(),
			Retryable:       errors.Is(err, session.ErrAttemptInFlight),
		})
		return
	}

	for {
		select {
		case ev := <-events:
			utils.SendSSEChunk(w, flusher, ev)
			switch ev.Type {
			case session.StreamEventEnd, session.StreamEventStopped, session.StreamEventError:
				return
			}
		case <-ctx.Done():
			h.coord.Stop(key)
			return
		}
	}
}

// handleStop cancels the in-flight attempt for the key. Stopping an idle key
// is harmless, so the response is always accepted.
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	h.coord.Stop(key)
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleState reports the machine state and recorded citations for the key,
// for clients reconnecting after a dropped stream.
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	state := h.coord.StateOf(key)
	payload := map[string]any{
		"phase":     string(state.Phase),
		"messageId": state.MessageID,
		"content":   state.Content,
	}
	if state.Err != nil {
		payload["error"] = state.Err.Error()
		payload["retryable"] = state.Retryable
	}
	if citations, ok := h.coord.Citations(key); ok {
		payload["citations"] = citations
	}

	utils.RespondJSON(w, http.StatusOK, payload)
}
