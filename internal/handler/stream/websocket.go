package stream

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/quhan/chatdeck/internal/session"
)

// WebSocketHandler drives coordinator sends over a duplex connection, so one
// socket carries both the send/stop commands and the event stream.
type WebSocketHandler struct {
	coord    *session.Coordinator
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the websocket bridge.
func NewWebSocketHandler(coord *session.Coordinator) *WebSocketHandler {
	return &WebSocketHandler{
		coord: coord,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes registers the websocket route.
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{key}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// wsWriter serializes concurrent event writes onto one connection. The
// coordinator's callbacks arrive from its stream goroutine while the read
// loop may also write command acknowledgements.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) send(ev session.StreamEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteJSON(ev); err != nil {
		log.Printf("[stream] websocket write failed: %v", err)
	}
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[stream] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	writer := &wsWriter{conn: conn}
	sink := func(ev session.StreamEvent) {
		writer.send(ev)
	}

	// A dropped socket stops whatever is in flight so the key can accept
	// the next send after a reconnect.
	defer h.coord.Stop(key)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[stream] websocket read failed: %v", err)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			writer.send(session.StreamEvent{
				Type:            session.StreamEventError,
				ConversationKey: key,
				Error:           "invalid message payload",
			})
			continue
		}

		switch msg.Type {
		case "send":
			if msg.Content == "" {
				writer.send(session.StreamEvent{
					Type:            session.StreamEventError,
					ConversationKey: key,
					Error:           "content is required",
				})
				continue
			}
			if _, err := h.coord.Send(r.Context(), key, msg.Content, sink); err != nil {
				// A rejected persona already reached the sink as an
				// error event; only refusals without one need a frame.
				if !errors.Is(err, session.ErrUnknownPersona) {
					writer.send(session.StreamEvent{
						Type:            session.StreamEventError,
						ConversationKey: key,
						Error:           err.Error(),
					})
				}
			}
		case "stop":
			h.coord.Stop(key)
		default:
			writer.send(session.StreamEvent{
				Type:            session.StreamEventError,
				ConversationKey: key,
				Error:           "unknown message type",
			})
		}
	}
}
