package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// liveSession re-scores the form on every message the browser sends. Replies
// go through send so only writePump touches the connection for writing.
type liveSession struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	sessionID string
	logger    *zap.Logger
}

// handleLive upgrades to a websocket and answers each features message with a
// prediction or an error frame. The session ends when the client goes away.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &liveSession{
		conn:      conn,
		send:      make(chan []byte, 16),
		done:      make(chan struct{}),
		sessionID: uuid.NewString(),
		logger:    h.logger,
	}
	s.logger.Debug("live session opened", zap.String("session", s.sessionID))

	go s.writePump()
	s.readPump(h, r)
}

// writePump owns all writes: replies, pings and the final close frame.
func (s *liveSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		close(s.done)
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("websocket write failed", zap.String("session", s.sessionID), zap.Error(err))
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump scores each incoming message until the client disconnects.
func (s *liveSession) readPump(h *Handler, r *http.Request) {
	defer func() {
		close(s.send)
		s.logger.Debug("live session closed", zap.String("session", s.sessionID))
	}()

	s.conn.SetReadLimit(h.maxBody)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", zap.String("session", s.sessionID), zap.Error(err))
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var body any
		var req assessRequest
		if err := decodeRequest(bytes.NewReader(payload), &req); err != nil {
			body = errorResponse{Error: "invalid message: " + err.Error()}
		} else {
			_, body = h.evaluate(h.table(r, req.Lang), req)
		}

		reply, err := json.Marshal(body)
		if err != nil {
			s.logger.Error("encode live reply", zap.Error(err))
			return
		}
		select {
		case s.send <- reply:
		case <-s.done:
			return
		}
	}
}
