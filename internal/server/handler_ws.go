package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Clients only send control frames.
	maxMessageSize = 512
)

// wsMessage is one text frame. Type is "status" for the first frame and
// "sample" for the rest.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// handleWebSocket streams monitor samples as JSON text frames until the
// client disconnects.
// GET /api/v1/ws
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	samples, cancel := s.monitor.Subscribe()
	defer cancel()
	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	closed := make(chan struct{})
	go s.readPump(conn, closed)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := s.writeJSON(conn, wsMessage{Type: "status", Data: s.host.Status()}); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			s.logger.Debug("websocket client disconnected", "remote", r.RemoteAddr)
			return
		case sample, ok := <-samples:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
				return
			}
			if err := s.writeJSON(conn, wsMessage{Type: "sample", Data: sample}); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and closes done when the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
