package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Server upgrades supervisor connections and streams hub events to
// them. Subscribers are read-only; inbound frames other than control
// messages are ignored.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer creates a new event stream server.
func NewServer(h *Hub) *Server {
	return &Server{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Internal listener only, no origin restriction
				return true
			},
		},
	}
}

// HandleEvents handles GET /internal/events. An optional session_id
// query parameter narrows the stream to a single session.
func (s *Server) HandleEvents(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("ERROR: failed to upgrade event stream: %v", err)
		return err
	}

	sub := s.hub.NewSubscriber(ws, c.QueryParam("session_id"))
	s.hub.Register(sub)

	go s.writePump(sub)
	go s.readPump(sub)

	return nil
}

// readPump drains inbound frames so control messages are processed.
func (s *Server) readPump(sub *Subscriber) {
	defer func() {
		s.hub.Unregister(sub)
		sub.Close()
	}()

	sub.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	sub.Conn.SetPongHandler(func(string) error {
		sub.Conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		if _, _, err := sub.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: event stream read error: %v", err)
			}
			break
		}
	}
}

// writePump forwards hub events and keeps the connection alive with
// pings.
func (s *Server) writePump(sub *Subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sub.Close()
	}()

	for {
		select {
		case message, ok := <-sub.Send:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Hub closed the channel
				sub.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			sub.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
