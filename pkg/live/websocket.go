package live

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// The wire protocol is JSON text messages in both directions. Heartbeats
// are application-level ping/pong messages rather than WebSocket control
// frames because browser JavaScript cannot observe control frames.
//
// Client to server:
//
//	{"type":"action","token":"a3","seq":7}
//	{"type":"ping"} {"type":"pong"} {"type":"close"}
//
// Server to client:
//
//	{"type":"frame","html":"...","seq":12}
//	{"type":"error","code":"action_not_found","message":"..."}
//	{"type":"ping"} {"type":"pong"}
const (
	msgAction = "action"
	msgFrame  = "frame"
	msgError  = "error"
	msgPing   = "ping"
	msgPong   = "pong"
	msgClose  = "close"
)

// clientMessage is a decoded message from the browser client.
type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	Seq   uint64 `json:"seq,omitempty"`
}

// serverMessage is a message sent to the browser client.
type serverMessage struct {
	Type    string `json:"type"`
	HTML    string `json:"html,omitempty"`
	Seq     uint64 `json:"seq,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ReadLoop continuously reads messages from the WebSocket connection,
// decodes them, and queues actions for the event loop. It blocks until
// the connection closes or a read fails.
func (s *Session) ReadLoop() {
	defer s.Close()

	s.conn.SetReadLimit(s.config.MaxMessageSize)

	for {
		s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
				s.metrics.wsError("read")
			}
			return
		}
		s.bytesRecv.Add(uint64(len(msg)))

		var cm clientMessage
		if err := json.Unmarshal(msg, &cm); err != nil {
			s.logger.Error("message decode error", "error", err)
			s.metrics.wsError("decode")
			s.sendError("invalid_message", "Invalid message format")
			continue
		}

		switch cm.Type {
		case msgAction:
			if err := s.QueueEvent(Event{Token: cm.Token, Seq: cm.Seq}); err != nil {
				if err == ErrSessionClosed {
					return
				}
				s.metrics.wsError("queue_full")
				s.sendError("rate_limited", "Event queue full")
			}

		case msgPing:
			s.sendPong()

		case msgPong:
			s.logger.Debug("received pong")

		case msgClose:
			s.logger.Info("client closing")
			return

		default:
			s.logger.Warn("unknown message type", "type", cm.Type)
		}
	}
}

// WriteLoop sends periodic heartbeat pings until the session closes.
func (s *Session) WriteLoop() {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.sendPing(); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}

// sendFrame ships a rendered frame to the client. A write failure tears
// the session down; the client reconnects with a fresh session.
func (s *Session) sendFrame(html string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() || s.conn == nil {
		return
	}

	seq := s.sendSeq.Add(1)
	data, err := json.Marshal(serverMessage{Type: msgFrame, HTML: html, Seq: seq})
	if err != nil {
		s.logger.Error("frame encode error", "error", err)
		return
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("frame write error", "error", err, "seq", seq)
		s.metrics.wsError("write")
		s.closeInternal()
		return
	}

	s.frameCount.Add(1)
	s.bytesSent.Add(uint64(len(data)))
	s.metrics.frameSent(len(data))
	s.logger.Debug("sent frame", "seq", seq, "bytes", len(data))
}

// sendError reports a recoverable problem to the client without
// closing the session.
func (s *Session) sendError(code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() || s.conn == nil {
		return
	}

	data, err := json.Marshal(serverMessage{Type: msgError, Code: code, Message: message})
	if err != nil {
		return
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("error write failed", "error", err)
	}
}

// sendPing sends a heartbeat ping to the client.
func (s *Session) sendPing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.conn == nil {
		return nil
	}

	data, _ := json.Marshal(serverMessage{Type: msgPing})
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("ping error", "error", err)
		s.metrics.wsError("write")
		return err
	}
	return nil
}

// sendPong answers a client ping.
func (s *Session) sendPong() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() || s.conn == nil {
		return
	}

	data, _ := json.Marshal(serverMessage{Type: msgPong})
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("pong error", "error", err)
	}
}
