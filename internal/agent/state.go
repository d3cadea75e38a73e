package agent

import (
	"sync"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/pause"
)

// State is the agent's view of the current session: the session row,
// the reconciled pause state and the prompt awaiting a response. All
// access goes through the mutex; callers get copies, never interior
// pointers.
type State struct {
	mu      sync.Mutex
	session *domain.Session
	pauses  pause.State
	prompt  *domain.PresencePrompt
}

// NewState returns an empty state.
func NewState() *State {
	return &State{pauses: pause.NewState()}
}

// SetSession records the active session.
func (s *State) SetSession(session *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session == nil {
		s.session = nil
		return
	}
	copied := *session
	s.session = &copied
}

// Session returns a copy of the active session, or nil.
func (s *State) Session() *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	copied := *s.session
	return &copied
}

// SessionID returns the active session id, or "".
func (s *State) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.SessionID
}

// ClearSession drops the session and its derived state after an end.
func (s *State) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	s.prompt = nil
	s.pauses = pause.NewState()
}

// ApplyPause folds one pause event into the reconciled state. Used both
// optimistically on enqueue and authoritatively on server responses;
// the (kind, sequence) key makes the second application a no-op.
func (s *State) ApplyPause(event pause.Event, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses = pause.Apply(s.pauses, event, now)
}

// ReconcilePause folds an authoritative server record into the pause
// state. Unlike ApplyPause it also evicts an optimistic entry of the
// same kind that guessed the wrong sequence.
func (s *State) ReconcilePause(event pause.Event, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses = pause.Supersede(s.pauses, event, now)
}

// ResetPauses replaces the pause state from an authoritative snapshot.
func (s *State) ResetPauses(snapshot *domain.PauseSnapshot, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses = pause.Build(snapshot, now)
}

// Pauses renders the current pause state as a snapshot.
func (s *State) Pauses() domain.PauseSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses.Snapshot()
}

// Paused reports whether a pause is currently open.
func (s *State) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses.Paused()
}

// NextPauseSequence returns the sequence the next pause of the kind
// should carry, one past the highest seen locally.
func (s *State) NextPauseSequence(kind domain.PauseKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	max := 0
	snap := s.pauses.Snapshot()
	for _, p := range snap.History {
		if p.Kind == kind && p.Sequence > max {
			max = p.Sequence
		}
	}
	if snap.Current != nil && snap.Current.Kind == kind && snap.Current.Sequence > max {
		max = snap.Current.Sequence
	}
	return max + 1
}

// SetPrompt records the prompt currently awaiting a response.
func (s *State) SetPrompt(prompt *domain.PresencePrompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prompt == nil {
		s.prompt = nil
		return
	}
	copied := *prompt
	s.prompt = &copied
}

// Prompt returns a copy of the pending prompt, or nil.
func (s *State) Prompt() *domain.PresencePrompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prompt == nil {
		return nil
	}
	copied := *s.prompt
	return &copied
}
