package domain

import "time"

// PromptEventPayload is the payload for prompt lifecycle events.
type PromptEventPayload struct {
	PromptID    string     `json:"prompt_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// PauseEventPayload is the payload for pause lifecycle events.
type PauseEventPayload struct {
	Kind            PauseKind  `json:"kind"`
	Sequence        int        `json:"sequence"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
}

// SessionEventPayload is the payload for session lifecycle events.
type SessionEventPayload struct {
	WorkerID  string     `json:"worker_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
