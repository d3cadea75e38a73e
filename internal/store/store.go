// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetActiveSessionForWorker(ctx context.Context, workerID string) (*domain.Session, error)
	ListSessions(ctx context.Context, limit int) ([]domain.Session, error)
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error)
	TouchSession(ctx context.Context, sessionID, activity string, seenAt time.Time) error
	IncrementMissedCount(ctx context.Context, sessionID string) error

	// Presence prompt operations
	CreatePrompts(ctx context.Context, prompts []domain.PresencePrompt) error
	GetPrompt(ctx context.Context, promptID string) (*domain.PresencePrompt, error)
	ListPrompts(ctx context.Context, sessionID string) ([]domain.PresencePrompt, error)
	GetDuePrompt(ctx context.Context, sessionID string, now time.Time) (*domain.PresencePrompt, error)
	GetTriggeredPrompt(ctx context.Context, sessionID string) (*domain.PresencePrompt, error)
	MarkPromptTriggered(ctx context.Context, promptID string, triggeredAt, expiresAt time.Time) (bool, error)
	MarkPromptDelayed(ctx context.Context, promptID string, scheduledAt time.Time) (bool, error)
	MarkPromptConfirmed(ctx context.Context, promptID string, respondedAt time.Time) (bool, error)
	ListExpiredPrompts(ctx context.Context, now time.Time, limit int) ([]domain.PresencePrompt, error)
	MarkPromptMissed(ctx context.Context, promptID string) (bool, error)

	// Pause operations
	CreatePause(ctx context.Context, pause *domain.Pause) error
	GetOpenPause(ctx context.Context, sessionID string, kind domain.PauseKind) (*domain.Pause, error)
	GetAnyOpenPause(ctx context.Context, sessionID string) (*domain.Pause, error)
	GetLastEndedPause(ctx context.Context, sessionID string, kind domain.PauseKind) (*domain.Pause, error)
	NextPauseSequence(ctx context.Context, sessionID string, kind domain.PauseKind) (int, error)
	EndPause(ctx context.Context, pauseID string, endedAt time.Time, durationMinutes int) (bool, error)
	ListPauses(ctx context.Context, sessionID string) ([]domain.Pause, error)

	// Credential operations
	CreateCredential(ctx context.Context, cred *domain.Credential) error
	GetCredentialByAccessToken(ctx context.Context, accessToken string) (*domain.Credential, error)
	GetCredentialByRefreshToken(ctx context.Context, refreshToken string) (*domain.Credential, error)
	RotateCredential(ctx context.Context, refreshToken string, next *domain.Credential) (bool, error)
	DeleteCredentialsForWorker(ctx context.Context, workerID string) error

	// Lifecycle
	Close() error
}
