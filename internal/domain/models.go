package domain

import (
	"encoding/json"
	"time"
)

// Session represents a single work session for a worker.
// Terminal once ended; prompts and pauses belong to it.
type Session struct {
	SessionID    string        `json:"session_id"`
	WorkerID     string        `json:"worker_id"`
	Status       SessionStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	LastSeenAt   *time.Time    `json:"last_seen_at,omitempty"`
	LastActivity string        `json:"last_activity,omitempty"`
	MissedCount  int           `json:"missed_count"`
}

// Active reports whether the session can still accept events.
func (s *Session) Active() bool {
	return s.Status == SessionStatusActive
}

// PresencePrompt represents one scheduled "are you still present" check.
// Prompts are created in a batch when the shift begins and are never
// deleted; they serve as the audit trail of the presence plan.
type PresencePrompt struct {
	PromptID    string       `json:"prompt_id"`
	SessionID   string       `json:"session_id"`
	Status      PromptStatus `json:"status"`
	ScheduledAt time.Time    `json:"scheduled_at"`
	TriggeredAt *time.Time   `json:"triggered_at,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	RespondedAt *time.Time   `json:"responded_at,omitempty"`
}

// Pause represents a break or lunch interval within a session.
// Sequence numbers increase monotonically per kind within the session.
// DurationMinutes is filled only on end.
type Pause struct {
	PauseID         string     `json:"pause_id,omitempty"`
	SessionID       string     `json:"session_id,omitempty"`
	Kind            PauseKind  `json:"kind"`
	Sequence        int        `json:"sequence"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
}

// Open reports whether the pause has not ended yet.
func (p *Pause) Open() bool {
	return p.EndedAt == nil
}

// Key identifies a pause within its session for reconciliation.
// Out-of-order or duplicate delivery is resolved by this key, not by
// timestamps.
type PauseKey struct {
	Kind     PauseKind
	Sequence int
}

// Key returns the reconciliation key of the pause.
func (p *Pause) Key() PauseKey {
	return PauseKey{Kind: p.Kind, Sequence: p.Sequence}
}

// Credential is one issued access/refresh token pair. Replaced wholesale
// on every refresh; the refresh token is single-use.
type Credential struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
	Scope                 string    `json:"scope"`
	WorkerID              string    `json:"worker_id,omitempty"`
	DeviceID              string    `json:"device_id,omitempty"`
}

// AccessValidFor reports whether the access token is still valid with at
// least the given safety margin remaining.
func (c *Credential) AccessValidFor(margin time.Duration, now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return now.Add(margin).Before(c.AccessTokenExpiresAt)
}

// QueuedAction is one pending network operation in the offline queue.
// Attempts starts at zero and is bumped on every retryable failure.
type QueuedAction struct {
	ActionID      string          `json:"action_id"`
	Method        string          `json:"method"`
	Path          string          `json:"path"`
	Body          json.RawMessage `json:"body,omitempty"`
	RequiresAuth  bool            `json:"requires_auth"`
	Description   string          `json:"description,omitempty"`
	TokenOverride string          `json:"token_override,omitempty"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
}

// Event is one entry on the supervisor stream.
type Event struct {
	EventID   string          `json:"event_id"`
	SessionID string          `json:"session_id"`
	Ts        int64           `json:"ts"` // Unix milliseconds
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// PauseSnapshot is the authoritative server view of a session's pauses.
type PauseSnapshot struct {
	Current *Pause  `json:"current"`
	History []Pause `json:"history"`
}
