// Package ws streams attendance lifecycle events to supervisor clients.
package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// Subscriber is a single supervisor websocket connection. A subscriber
// with an empty SessionID receives events for every session.
type Subscriber struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	mu        sync.Mutex
}

// WriteMessage writes a frame to the underlying connection. Serialized
// because gorilla connections allow only one concurrent writer.
func (s *Subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteMessage(messageType, data)
}

// Close closes the underlying connection.
func (s *Subscriber) Close() error {
	return s.Conn.Close()
}

// Hub fans attendance events out to supervisor subscribers. It
// implements service.EventPublisher.
type Hub struct {
	subscribers map[string]*Subscriber

	register   chan *Subscriber
	unregister chan *Subscriber
	events     chan domain.Event

	mu sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		events:      make(chan domain.Event, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub.ID] = sub
			h.mu.Unlock()
			log.Printf("INFO: supervisor subscriber registered: %s (session filter: %q)", sub.ID, sub.SessionID)

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[sub.ID]; ok {
				delete(h.subscribers, sub.ID)
				close(sub.Send)
			}
			h.mu.Unlock()
			log.Printf("INFO: supervisor subscriber unregistered: %s", sub.ID)

		case event := <-h.events:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("ERROR: failed to marshal event %s: %v", event.EventID, err)
				continue
			}
			h.mu.RLock()
			for _, sub := range h.subscribers {
				if sub.SessionID != "" && sub.SessionID != event.SessionID {
					continue
				}
				select {
				case sub.Send <- data:
				default:
					// Buffer full, drop the subscriber.
					log.Printf("WARN: subscriber %s buffer full, closing", sub.ID)
					go h.Unregister(sub)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish queues an event for broadcast. Never blocks the caller; if
// the hub itself is saturated the event is dropped (the stream is
// advisory, the store remains the source of truth).
func (h *Hub) Publish(event domain.Event) {
	select {
	case h.events <- event:
	default:
		log.Printf("WARN: event stream saturated, dropping %s", event.EventID)
	}
}

// NewSubscriber creates a subscriber for the given connection. An empty
// sessionID subscribes to all sessions.
func (h *Hub) NewSubscriber(ws *websocket.Conn, sessionID string) *Subscriber {
	return &Subscriber{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Conn:      ws,
		Send:      make(chan []byte, 256),
	}
}

// Register registers a subscriber with the hub.
func (h *Hub) Register(sub *Subscriber) {
	h.register <- sub
}

// Unregister removes a subscriber from the hub.
func (h *Hub) Unregister(sub *Subscriber) {
	h.unregister <- sub
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
