// Package domain defines the core domain models for the attendance engine.
package domain

// SessionStatus represents the status of a work session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "ACTIVE"
	SessionStatusEnded  SessionStatus = "ENDED"
)

// PromptStatus represents the status of a presence prompt.
//
// SCHEDULED and DELAYED are both schedulable: a delayed prompt keeps its
// place in the plan and comes due again at its pushed-forward time.
// CONFIRMED and MISSED are terminal.
type PromptStatus string

const (
	PromptStatusScheduled PromptStatus = "SCHEDULED"
	PromptStatusTriggered PromptStatus = "TRIGGERED"
	PromptStatusConfirmed PromptStatus = "CONFIRMED"
	PromptStatusMissed    PromptStatus = "MISSED"
	PromptStatusDelayed   PromptStatus = "DELAYED"
)

// Schedulable reports whether a prompt in this status can still be
// triggered when its scheduled time arrives.
func (s PromptStatus) Schedulable() bool {
	return s == PromptStatusScheduled || s == PromptStatusDelayed
}

// Terminal reports whether the prompt lifecycle is complete.
func (s PromptStatus) Terminal() bool {
	return s == PromptStatusConfirmed || s == PromptStatusMissed
}

// PauseKind represents the kind of a pause.
type PauseKind string

const (
	PauseKindBreak PauseKind = "break"
	PauseKindLunch PauseKind = "lunch"
)

// Valid reports whether the kind is one of the known pause kinds.
func (k PauseKind) Valid() bool {
	return k == PauseKindBreak || k == PauseKindLunch
}

// PauseAction distinguishes start and end records on the wire.
type PauseAction string

const (
	PauseActionStarted PauseAction = "started"
	PauseActionEnded   PauseAction = "ended"
)

// EventType represents the type of a supervisor stream event.
type EventType string

const (
	EventTypeSessionStarted  EventType = "session_started"
	EventTypeSessionEnded    EventType = "session_ended"
	EventTypePromptTriggered EventType = "prompt_triggered"
	EventTypePromptConfirmed EventType = "prompt_confirmed"
	EventTypePromptMissed    EventType = "prompt_missed"
	EventTypePromptDelayed   EventType = "prompt_delayed"
	EventTypePauseStarted    EventType = "pause_started"
	EventTypePauseEnded      EventType = "pause_ended"
)
