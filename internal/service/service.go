// Package service implements the attendance session obligation engine.
package service

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/config"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/store"
)

// EventPublisher receives domain lifecycle events for the supervisor
// stream. Publishing must not block the caller.
type EventPublisher interface {
	Publish(event domain.Event)
}

// Service holds the server-side attendance logic.
type Service struct {
	store     store.Store
	config    *config.Config
	publisher EventPublisher
}

// New creates a new service. The publisher may be nil.
func New(store store.Store, cfg *config.Config, publisher EventPublisher) *Service {
	return &Service{
		store:     store,
		config:    cfg,
		publisher: publisher,
	}
}

func newID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}

// publishEvent emits a supervisor stream event. Failures to marshal are
// logged, never surfaced: the stream is advisory.
func (s *Service) publishEvent(sessionID string, eventType domain.EventType, payload interface{}) {
	if s.publisher == nil {
		return
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: failed to marshal %s payload: %v", eventType, err)
		return
	}

	s.publisher.Publish(domain.Event{
		EventID:   newID("evt"),
		SessionID: sessionID,
		Ts:        time.Now().UnixMilli(),
		Type:      eventType,
		Payload:   payloadBytes,
	})
}

// ceilMinutes converts an elapsed interval into whole minutes, rounding
// partial minutes up. 4m20s records as 5.
func ceilMinutes(start, end time.Time) int {
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	minutes := int(elapsed / time.Minute)
	if elapsed%time.Minute != 0 {
		minutes++
	}
	return minutes
}
