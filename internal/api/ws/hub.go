package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/chorus/internal/broadcast"
)

const maxSessionIDLen = 64

// Hub serves WebSocket subscriptions to session channels. It works with
// any broadcast.Subscriber: Redis pub/sub across processes or the
// in-process broadcast.Hub.
type Hub struct {
	sub            broadcast.Subscriber
	originPatterns []string
}

// NewHub creates a new WebSocket hub. originPatterns is passed to
// websocket.Accept; nil allows same-origin requests only.
func NewHub(sub broadcast.Subscriber, originPatterns []string) *Hub {
	return &Hub{sub: sub, originPatterns: originPatterns}
}

type connectedFrame struct {
	Event     string `json:"event"`
	SessionID string `json:"session_id"`
}

// ServeChat handles WebSocket connections for a chat session.
// Subscribes to channel "chat_<sessionID>" and forwards every broadcast
// event verbatim. Frames sent by the client are echoed back.
func (h *Hub) ServeChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" || len(sessionID) > maxSessionIDLen {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	channel := broadcast.Channel(sessionID)
	logger := log.With().Str("session_id", sessionID).Str("channel", channel).Logger()

	messages, cleanup, err := h.sub.Subscribe(ctx, channel)
	if err != nil {
		logger.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	if err = wsjson.Write(ctx, conn, connectedFrame{Event: "connected", SessionID: sessionID}); err != nil {
		logger.Debug().Err(err).Msg("websocket write")
		return
	}

	echoes := make(chan json.RawMessage)
	go func() {
		defer cancel()
		for {
			var frame json.RawMessage
			if readErr := wsjson.Read(ctx, conn, &frame); readErr != nil {
				logger.Debug().Err(readErr).Msg("websocket read")
				return
			}
			select {
			case echoes <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case frame := <-echoes:
			if writeErr := wsjson.Write(ctx, conn, broadcast.Event{Event: "echo", Payload: frame}); writeErr != nil {
				logger.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				logger.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}
