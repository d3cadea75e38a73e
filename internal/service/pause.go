package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// PauseResult is the outcome of a pause start/end operation, shaped for
// the client-side reconciler.
type PauseResult struct {
	Action domain.PauseAction `json:"action"`
	Pause  domain.Pause       `json:"pause"`
}

// StartPause opens a pause of the given kind. At most one pause per kind
// may be open per session; a duplicate start (the queue delivers
// at-least-once) returns the already-open pause instead of failing.
func (s *Service) StartPause(ctx context.Context, sessionID string, kind domain.PauseKind, now time.Time) (*PauseResult, error) {
	if !kind.Valid() {
		return nil, domain.NewError(domain.CodeValidation, "unknown pause kind %q", kind)
	}
	if _, err := s.activeSession(ctx, sessionID); err != nil {
		return nil, err
	}

	open, err := s.store.GetOpenPause(ctx, sessionID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to check open pause: %w", err)
	}
	if open != nil {
		return &PauseResult{Action: domain.PauseActionStarted, Pause: *open}, nil
	}

	seq, err := s.store.NextPauseSequence(ctx, sessionID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to compute pause sequence: %w", err)
	}

	pause := &domain.Pause{
		PauseID:   newID("pse"),
		SessionID: sessionID,
		Kind:      kind,
		Sequence:  seq,
		StartedAt: now,
	}
	if err := s.store.CreatePause(ctx, pause); err != nil {
		return nil, fmt.Errorf("failed to create pause: %w", err)
	}

	s.publishEvent(sessionID, domain.EventTypePauseStarted, domain.PauseEventPayload{
		Kind:      kind,
		Sequence:  seq,
		StartedAt: now,
	})
	return &PauseResult{Action: domain.PauseActionStarted, Pause: *pause}, nil
}

// EndPause closes the open pause of the given kind and computes its
// duration in whole minutes, partial minutes rounding up. A duplicate
// end returns the already-ended pause so at-least-once delivery is safe.
func (s *Service) EndPause(ctx context.Context, sessionID string, kind domain.PauseKind, now time.Time) (*PauseResult, error) {
	if !kind.Valid() {
		return nil, domain.NewError(domain.CodeValidation, "unknown pause kind %q", kind)
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	open, err := s.store.GetOpenPause(ctx, sessionID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to check open pause: %w", err)
	}
	if open == nil {
		last, err := s.store.GetLastEndedPause(ctx, sessionID, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to check ended pauses: %w", err)
		}
		if last != nil {
			return &PauseResult{Action: domain.PauseActionEnded, Pause: *last}, nil
		}
		return nil, domain.NewError(domain.CodeConflict, "no open %s pause for session %s", kind, sessionID)
	}

	minutes := ceilMinutes(open.StartedAt, now)
	ok, err := s.store.EndPause(ctx, open.PauseID, now, minutes)
	if err != nil {
		return nil, fmt.Errorf("failed to end pause: %w", err)
	}
	if !ok {
		// Raced with a duplicate delivery that already closed it.
		last, err := s.store.GetLastEndedPause(ctx, sessionID, kind)
		if err != nil || last == nil {
			return nil, domain.NewError(domain.CodeConflict, "pause %s already ended", open.PauseID)
		}
		return &PauseResult{Action: domain.PauseActionEnded, Pause: *last}, nil
	}

	open.EndedAt = &now
	open.DurationMinutes = &minutes

	s.publishEvent(sessionID, domain.EventTypePauseEnded, domain.PauseEventPayload{
		Kind:            kind,
		Sequence:        open.Sequence,
		StartedAt:       open.StartedAt,
		EndedAt:         &now,
		DurationMinutes: &minutes,
	})
	return &PauseResult{Action: domain.PauseActionEnded, Pause: *open}, nil
}

// PauseSnapshot returns the authoritative pause state of a session: the
// open pause (if any) plus every closed pause, sorted by start time.
func (s *Service) PauseSnapshot(ctx context.Context, sessionID string) (*domain.PauseSnapshot, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	pauses, err := s.store.ListPauses(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pauses: %w", err)
	}

	snapshot := &domain.PauseSnapshot{History: []domain.Pause{}}
	for i := range pauses {
		p := pauses[i]
		if p.Open() && snapshot.Current == nil {
			snapshot.Current = &p
			continue
		}
		snapshot.History = append(snapshot.History, p)
	}
	return snapshot, nil
}
