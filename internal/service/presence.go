package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// EnsurePresencePlan idempotently ensures the shift has its sequence of
// scheduled prompts: one every PromptInterval from shift start, capped
// at MaxPromptsPerShift. Re-invocation returns the existing plan without
// creating duplicate slots.
func (s *Service) EnsurePresencePlan(ctx context.Context, sessionID string, shiftStart time.Time) ([]domain.PresencePrompt, error) {
	if _, err := s.activeSession(ctx, sessionID); err != nil {
		return nil, err
	}

	existing, err := s.store.ListPrompts(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	prompts := make([]domain.PresencePrompt, 0, s.config.MaxPromptsPerShift)
	for i := 1; i <= s.config.MaxPromptsPerShift; i++ {
		prompts = append(prompts, domain.PresencePrompt{
			PromptID:    newID("prm"),
			SessionID:   sessionID,
			Status:      domain.PromptStatusScheduled,
			ScheduledAt: shiftStart.Add(time.Duration(i) * s.config.PromptInterval),
		})
	}
	if err := s.store.CreatePrompts(ctx, prompts); err != nil {
		return nil, fmt.Errorf("failed to create presence plan: %w", err)
	}
	return prompts, nil
}

// GetDuePrompt returns the earliest schedulable prompt whose slot has
// arrived, or nil. Does not mutate state.
func (s *Service) GetDuePrompt(ctx context.Context, sessionID string, now time.Time) (*domain.PresencePrompt, error) {
	prompt, err := s.store.GetDuePrompt(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get due prompt: %w", err)
	}
	return prompt, nil
}

// TriggerPrompt transitions a schedulable prompt to TRIGGERED, opening
// its confirmation window. At most one prompt per session may be in the
// triggered state; triggering while another is triggered is a caller
// error, not silently corrected here.
func (s *Service) TriggerPrompt(ctx context.Context, promptID string, now time.Time) (*domain.PresencePrompt, error) {
	prompt, err := s.store.GetPrompt(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	if prompt == nil {
		return nil, domain.NewError(domain.CodeNotFound, "prompt %s not found", promptID)
	}

	triggered, err := s.store.GetTriggeredPrompt(ctx, prompt.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check triggered prompt: %w", err)
	}
	if triggered != nil {
		return nil, domain.NewError(domain.CodeConflict, "session %s already has triggered prompt %s", prompt.SessionID, triggered.PromptID)
	}

	expiresAt := now.Add(s.config.ConfirmWindow)
	ok, err := s.store.MarkPromptTriggered(ctx, promptID, now, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to trigger prompt: %w", err)
	}
	if !ok {
		return nil, domain.NewError(domain.CodeConflict, "prompt %s is not schedulable", promptID)
	}

	prompt.Status = domain.PromptStatusTriggered
	prompt.TriggeredAt = &now
	prompt.ExpiresAt = &expiresAt

	s.publishEvent(prompt.SessionID, domain.EventTypePromptTriggered, domain.PromptEventPayload{
		PromptID:    promptID,
		ScheduledAt: prompt.ScheduledAt,
		ExpiresAt:   &expiresAt,
	})
	return prompt, nil
}

// DelayPrompt pushes a schedulable prompt's slot forward by the given
// number of minutes. Used instead of triggering while the worker is on a
// pause, so a due prompt does not interrupt a break or lunch.
func (s *Service) DelayPrompt(ctx context.Context, promptID string, minutes int) (*domain.PresencePrompt, error) {
	if minutes <= 0 {
		return nil, domain.NewError(domain.CodeValidation, "delay minutes must be positive")
	}

	prompt, err := s.store.GetPrompt(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	if prompt == nil {
		return nil, domain.NewError(domain.CodeNotFound, "prompt %s not found", promptID)
	}

	pushed := prompt.ScheduledAt.Add(time.Duration(minutes) * time.Minute)
	ok, err := s.store.MarkPromptDelayed(ctx, promptID, pushed)
	if err != nil {
		return nil, fmt.Errorf("failed to delay prompt: %w", err)
	}
	if !ok {
		return nil, domain.NewError(domain.CodeConflict, "prompt %s is not schedulable", promptID)
	}

	prompt.Status = domain.PromptStatusDelayed
	prompt.ScheduledAt = pushed

	s.publishEvent(prompt.SessionID, domain.EventTypePromptDelayed, domain.PromptEventPayload{
		PromptID:    promptID,
		ScheduledAt: pushed,
	})
	return prompt, nil
}

// ExpirePrompts marks triggered prompts whose confirmation window has
// passed as missed. Invoked inline on every heartbeat, and by a
// background sweep to cover sessions whose agent went silent. Returns
// the number of prompts expired.
func (s *Service) ExpirePrompts(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.store.ListExpiredPrompts(ctx, now, 100)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired prompts: %w", err)
	}

	count := 0
	for _, p := range expired {
		ok, err := s.store.MarkPromptMissed(ctx, p.PromptID)
		if err != nil {
			log.Printf("WARN: failed to mark prompt %s missed: %v", p.PromptID, err)
			continue
		}
		if !ok {
			continue
		}
		count++

		if err := s.store.IncrementMissedCount(ctx, p.SessionID); err != nil {
			log.Printf("WARN: failed to bump missed count for session %s: %v", p.SessionID, err)
		}

		s.publishEvent(p.SessionID, domain.EventTypePromptMissed, domain.PromptEventPayload{
			PromptID:    p.PromptID,
			ScheduledAt: p.ScheduledAt,
			ExpiresAt:   p.ExpiresAt,
		})
	}
	return count, nil
}

// ConfirmPrompt transitions a triggered prompt to CONFIRMED. Idempotent:
// the confirmation may arrive more than once via the offline queue, so
// confirming an already-confirmed or already-missed prompt still reports
// success without rewriting the terminal state.
func (s *Service) ConfirmPrompt(ctx context.Context, promptID string, now time.Time) (*domain.PresencePrompt, error) {
	prompt, err := s.store.GetPrompt(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	if prompt == nil {
		return nil, domain.NewError(domain.CodeNotFound, "prompt %s not found", promptID)
	}

	if prompt.Status.Terminal() {
		return prompt, nil
	}
	if prompt.Status != domain.PromptStatusTriggered {
		return nil, domain.NewError(domain.CodeConflict, "prompt %s has not been triggered", promptID)
	}

	ok, err := s.store.MarkPromptConfirmed(ctx, promptID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm prompt: %w", err)
	}
	if !ok {
		// Lost a race with expiry; the prompt is terminal either way.
		return s.store.GetPrompt(ctx, promptID)
	}

	prompt.Status = domain.PromptStatusConfirmed
	prompt.RespondedAt = &now

	s.publishEvent(prompt.SessionID, domain.EventTypePromptConfirmed, domain.PromptEventPayload{
		PromptID:    promptID,
		ScheduledAt: prompt.ScheduledAt,
		ExpiresAt:   prompt.ExpiresAt,
		RespondedAt: &now,
	})
	return prompt, nil
}

// ListPrompts returns the session's full prompt audit trail.
func (s *Service) ListPrompts(ctx context.Context, sessionID string) ([]domain.PresencePrompt, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListPrompts(ctx, sessionID)
}

// Heartbeat records a liveness report and advances the presence
// scheduler: expired prompts are swept, then at most one due prompt is
// triggered and returned. While a pause is open, a due prompt is pushed
// forward instead of triggered. The activity string is recorded on the
// session as-is; an empty one leaves the previous value.
func (s *Service) Heartbeat(ctx context.Context, sessionID, activity string, now time.Time) (*domain.PresencePrompt, error) {
	if _, err := s.activeSession(ctx, sessionID); err != nil {
		return nil, err
	}

	if err := s.store.TouchSession(ctx, sessionID, activity, now); err != nil {
		log.Printf("WARN: failed to touch session %s: %v", sessionID, err)
	}

	if _, err := s.ExpirePrompts(ctx, now); err != nil {
		return nil, err
	}

	openPause, err := s.store.GetAnyOpenPause(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check open pause: %w", err)
	}

	if openPause != nil {
		due, err := s.store.GetDuePrompt(ctx, sessionID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to get due prompt: %w", err)
		}
		if due != nil {
			if _, err := s.DelayPrompt(ctx, due.PromptID, s.config.PauseDelayMinutes); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	// A prompt already awaiting confirmation is re-surfaced rather than
	// triggering the next slot alongside it.
	triggered, err := s.store.GetTriggeredPrompt(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check triggered prompt: %w", err)
	}
	if triggered != nil {
		return triggered, nil
	}

	due, err := s.store.GetDuePrompt(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get due prompt: %w", err)
	}
	if due == nil {
		return nil, nil
	}
	return s.TriggerPrompt(ctx, due.PromptID, now)
}
