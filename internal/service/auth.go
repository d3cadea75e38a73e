package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// ScopeAttendance covers the worker agent's session, pause, presence
// and heartbeat operations.
const ScopeAttendance = "attendance"

func newToken(prefix string) string {
	// Two v4 UUIDs give 256 bits of randomness per token.
	return prefix + "_" + strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}

// IssueCredential issues a fresh access/refresh token pair for a worker
// device.
func (s *Service) IssueCredential(ctx context.Context, workerID, deviceID string, now time.Time) (*domain.Credential, error) {
	if workerID == "" {
		return nil, domain.NewError(domain.CodeValidation, "worker_id is required")
	}

	cred := &domain.Credential{
		AccessToken:           newToken("at"),
		AccessTokenExpiresAt:  now.Add(s.config.AccessTokenTTL),
		RefreshToken:          newToken("rt"),
		RefreshTokenExpiresAt: now.Add(s.config.RefreshTokenTTL),
		Scope:                 ScopeAttendance,
		WorkerID:              workerID,
		DeviceID:              deviceID,
	}
	if err := s.store.CreateCredential(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	return cred, nil
}

// RefreshCredential exchanges a refresh token for a new credential pair.
// Refresh tokens are single-use and rotate on every refresh: an unknown,
// already-rotated, or expired token is an auth error, never retried.
func (s *Service) RefreshCredential(ctx context.Context, refreshToken string, now time.Time) (*domain.Credential, error) {
	if refreshToken == "" {
		return nil, domain.NewError(domain.CodeValidation, "refresh_token is required")
	}

	current, err := s.store.GetCredentialByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if current == nil {
		return nil, domain.NewError(domain.CodeAuth, "refresh token is unknown or already rotated")
	}
	if !now.Before(current.RefreshTokenExpiresAt) {
		return nil, domain.NewError(domain.CodeAuth, "refresh token expired")
	}

	next := &domain.Credential{
		AccessToken:           newToken("at"),
		AccessTokenExpiresAt:  now.Add(s.config.AccessTokenTTL),
		RefreshToken:          newToken("rt"),
		RefreshTokenExpiresAt: now.Add(s.config.RefreshTokenTTL),
		Scope:                 current.Scope,
		WorkerID:              current.WorkerID,
		DeviceID:              current.DeviceID,
	}
	rotated, err := s.store.RotateCredential(ctx, refreshToken, next)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate credential: %w", err)
	}
	if !rotated {
		// A concurrent refresh won the rotation.
		return nil, domain.NewError(domain.CodeAuth, "refresh token is unknown or already rotated")
	}
	return next, nil
}

// Authenticate resolves a bearer access token to its credential, failing
// on unknown or expired tokens.
func (s *Service) Authenticate(ctx context.Context, accessToken string, now time.Time) (*domain.Credential, error) {
	if accessToken == "" {
		return nil, domain.NewError(domain.CodeAuth, "missing access token")
	}

	cred, err := s.store.GetCredentialByAccessToken(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to look up access token: %w", err)
	}
	if cred == nil {
		return nil, domain.NewError(domain.CodeAuth, "invalid access token")
	}
	if !now.Before(cred.AccessTokenExpiresAt) {
		return nil, domain.NewError(domain.CodeAuth, "access token expired")
	}
	return cred, nil
}
