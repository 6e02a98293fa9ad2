package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsError is sent on a frame that could not be processed; the connection
// stays open.
type wsError struct {
	Error string `json:"error"`
}

// handleWebSocket upgrades the connection and runs a message loop. Each text
// frame is a MessageRequest; the conversation id is assigned on the first
// frame and reused for the rest of the connection unless the client pins one.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageBytes)
	connID := uuid.New().String()
	s.log.Debug().Str("connId", connID).Str("remote", r.RemoteAddr).Msg("websocket connected")

	// Conversation id carried across frames on this connection.
	conversationID := ""

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", connID).Msg("websocket closed")
			} else {
				s.log.Warn().Err(err).Str("connId", connID).Msg("websocket read error")
			}
			return
		}

		var req MessageRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			if werr := conn.WriteJSON(wsError{Error: "invalid message frame"}); werr != nil {
				return
			}
			continue
		}

		if req.ConversationID == "" {
			if conversationID == "" {
				conversationID = uuid.New().String()
			}
			req.ConversationID = conversationID
		} else {
			conversationID = req.ConversationID
		}

		resp, _ := s.processTurn(r.Context(), req)
		if err := conn.WriteJSON(resp); err != nil {
			s.log.Warn().Err(err).Str("connId", connID).Msg("websocket write error")
			return
		}
	}
}
