package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// StartSession begins a work session for the worker, or returns the
// worker's existing active session. The presence plan is ensured either
// way, so a client restart cannot leave a shift without prompts.
func (s *Service) StartSession(ctx context.Context, workerID string, now time.Time) (*domain.Session, bool, error) {
	if workerID == "" {
		return nil, false, domain.NewError(domain.CodeValidation, "worker_id is required")
	}

	existing, err := s.store.GetActiveSessionForWorker(ctx, workerID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up active session: %w", err)
	}
	if existing != nil {
		if _, err := s.EnsurePresencePlan(ctx, existing.SessionID, existing.StartedAt); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	session := &domain.Session{
		SessionID:  newID("ses"),
		WorkerID:   workerID,
		Status:     domain.SessionStatusActive,
		StartedAt:  now,
		LastSeenAt: &now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, false, fmt.Errorf("failed to create session: %w", err)
	}

	if _, err := s.EnsurePresencePlan(ctx, session.SessionID, session.StartedAt); err != nil {
		return nil, false, err
	}

	s.publishEvent(session.SessionID, domain.EventTypeSessionStarted, domain.SessionEventPayload{
		WorkerID:  workerID,
		StartedAt: now,
	})
	return session, true, nil
}

// EndSession closes an active session. Ending an already-ended session
// is reported as a conflict so the offline queue drops the duplicate
// instead of retrying it.
func (s *Service) EndSession(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, domain.NewError(domain.CodeNotFound, "session %s not found", sessionID)
	}

	ended, err := s.store.EndSession(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	if !ended {
		return nil, domain.NewError(domain.CodeConflict, "session %s already ended", sessionID)
	}

	session.Status = domain.SessionStatusEnded
	session.EndedAt = &now

	s.publishEvent(sessionID, domain.EventTypeSessionEnded, domain.SessionEventPayload{
		WorkerID:  session.WorkerID,
		StartedAt: session.StartedAt,
		EndedAt:   &now,
	})
	return session, nil
}

// GetSession retrieves a session by ID.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, domain.NewError(domain.CodeNotFound, "session %s not found", sessionID)
	}
	return session, nil
}

// ListSessions lists recent sessions for the supervisor API.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	return s.store.ListSessions(ctx, limit)
}

// activeSession loads a session and fails unless it is still active.
func (s *Service) activeSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, domain.NewError(domain.CodeNotFound, "session %s not found", sessionID)
	}
	if !session.Active() {
		return nil, domain.NewError(domain.CodeConflict, "session %s is ended", sessionID)
	}
	return session, nil
}
