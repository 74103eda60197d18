package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chorus/collab"
	"chorus/streamers"
)

const (
	writeWait = 10 * time.Second
	readWait  = 60 * time.Second
)

// resultFrame is the last frame of a websocket session
type resultFrame struct {
	Type    string          `json:"type"`
	Status  int             `json:"status"`
	Session *collab.Session `json:"session"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

// handleWebSocket runs one session per connection: the client sends {query},
// the server streams every session event and finishes with a result frame.
// Closing the connection cancels the session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	conn := &wsConn{ws: ws}

	_ = ws.SetReadDeadline(time.Now().Add(readWait))
	var req collaborateRequest
	if err := ws.ReadJSON(&req); err != nil {
		_ = conn.writeJSON(errorFrame{Type: "error", Error: "expected {\"query\": ...}"})
		return
	}
	_ = ws.SetReadDeadline(time.Time{})

	ctx, cancel := s.requestContext(r)
	defer cancel()

	// Any further read error means the client went away
	go func() {
		for {
			if _, _, err := ws.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	handler := streamers.NewEventHandler(func(e streamers.Event) {
		if err := conn.writeJSON(e); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
		}
	})

	session, err := s.controller.Run(ctx, req.Query, collab.WithHandler(handler))
	status := http.StatusOK
	if err != nil {
		status = collab.HTTPStatus(collab.KindOf(err))
	}
	if err := conn.writeJSON(resultFrame{Type: "result", Status: status, Session: session}); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return
	}

	conn.mu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	conn.mu.Unlock()
}

