package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alfredjeanlab/beadgraph/internal/viewer"
	"github.com/alfredjeanlab/beadgraph/internal/viewport"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsMessage is sent for every input event received on the socket.
type wsMessage struct {
	Result *viewport.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// handleSessionWS handles GET /v1/sessions/{id}/ws. Each text frame is one
// input event; each reply is the resulting viewport or an error. Closing
// the socket does not close the session.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied.
		slog.Warn("websocket upgrade failed", "session", sess.ID(), "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go wsPing(conn, done)

	for {
		var ev viewport.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "session", sess.ID(), "err", err)
			}
			return
		}
		var msg wsMessage
		res, err := applyInput(sess, ev)
		if err != nil {
			msg.Error = err.Error()
		} else {
			msg.Result = &res
		}
		if err := writeWS(conn, msg); err != nil {
			return
		}
		if errors.Is(err, viewer.ErrSessionNotFound) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session closed"),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}

func writeWS(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}

// wsPing keeps the connection alive until done is closed.
func wsPing(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
