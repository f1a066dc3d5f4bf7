package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"agent_office/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("websocket upgrade failed remote=%s: %v", r.RemoteAddr, err)
		return
	}
	id := uuid.NewString()
	queue, err := s.office.Subscribe(id)
	if err != nil {
		s.logger.Printf("subscribe failed id=%s: %v", id, err)
		_ = conn.Close()
		return
	}
	s.logger.Printf("subscriber connected id=%s remote=%s", id, r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(conn, queue)
	}()
	s.readPump(conn, id)

	s.office.Unsubscribe(id)
	<-done
	s.logger.Printf("subscriber disconnected id=%s", id)
}

// readPump applies inbound control messages until the connection fails.
// A malformed message is logged and the connection stays open.
func (s *Server) readPump(conn *websocket.Conn, id string) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Printf("websocket read failed id=%s: %v", id, err)
			}
			return
		}
		if err := s.office.HandleClientMessage(data); err != nil {
			s.logger.Printf("client message rejected id=%s: %v", id, err)
		}
	}
}

// writePump is the only writer on conn. It exits when the queue is closed,
// a write fails or the server is closing subscribers.
func (s *Server) writePump(conn *websocket.Conn, queue <-chan domain.Envelope) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case env, ok := <-queue:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.quit:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}
