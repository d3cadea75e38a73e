// Package api provides an HTTP client for the attendance external API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// Client is an HTTP client for the attendance service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new attendance client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Error is a non-2xx response from the service.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("attendance service returned %d (%s): %s", e.Status, e.Code, e.Message)
}

// errorResponse is the service's error body shape.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Classify maps a client error into the domain error taxonomy. Transport
// failures are network errors; HTTP statuses map onto the same codes the
// server uses.
func Classify(err error) domain.ErrorCode {
	if err == nil {
		return ""
	}
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		// No HTTP response at all: DNS, refused, timeout.
		return domain.CodeNetwork
	}

	switch {
	case apiErr.Status == http.StatusBadRequest:
		return domain.CodeValidation
	case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
		return domain.CodeAuth
	case apiErr.Status == http.StatusNotFound:
		return domain.CodeNotFound
	case apiErr.Status == http.StatusConflict:
		return domain.CodeConflict
	case apiErr.Status == http.StatusTooManyRequests || apiErr.Status == http.StatusServiceUnavailable:
		return domain.CodeOverload
	case apiErr.Status >= 500:
		return domain.CodeNetwork
	default:
		return domain.CodeInternal
	}
}

// Do performs one request against the service. A non-2xx status is
// returned as *Error; the decoded body is returned raw so callers with
// different response shapes share one transport path.
func (c *Client) Do(ctx context.Context, method, path string, body json.RawMessage, token string) (json.RawMessage, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach attendance service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode, Message: string(respBody)}
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			apiErr.Message = errResp.Error
			apiErr.Code = errResp.Code
		}
		return nil, apiErr
	}

	return respBody, nil
}

// TokenResponse is the token issue/refresh response.
type TokenResponse struct {
	AccessToken           string `json:"access_token"`
	AccessTokenExpiresAt  int64  `json:"access_token_expires_at"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at"`
	Scope                 string `json:"scope"`
}

// Credential converts the wire response into a credential.
func (r *TokenResponse) Credential() *domain.Credential {
	return &domain.Credential{
		AccessToken:           r.AccessToken,
		AccessTokenExpiresAt:  time.UnixMilli(r.AccessTokenExpiresAt),
		RefreshToken:          r.RefreshToken,
		RefreshTokenExpiresAt: time.UnixMilli(r.RefreshTokenExpiresAt),
		Scope:                 r.Scope,
	}
}

// IssueToken calls POST /v1/auth/token.
func (c *Client) IssueToken(ctx context.Context, workerID, deviceID string) (*domain.Credential, error) {
	body, err := json.Marshal(map[string]string{"worker_id": workerID, "device_id": deviceID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	respBody, err := c.Do(ctx, http.MethodPost, "/v1/auth/token", body, "")
	if err != nil {
		return nil, err
	}

	var resp TokenResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return resp.Credential(), nil
}

// Refresh calls POST /v1/auth/refresh.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*domain.Credential, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	respBody, err := c.Do(ctx, http.MethodPost, "/v1/auth/refresh", body, "")
	if err != nil {
		return nil, err
	}

	var resp TokenResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	return resp.Credential(), nil
}

// StartSessionResponse is the session start response.
type StartSessionResponse struct {
	Session domain.Session `json:"session"`
	Created bool           `json:"created"`
}

// StartSession calls POST /v1/sessions/start.
func (c *Client) StartSession(ctx context.Context, token string) (*StartSessionResponse, error) {
	respBody, err := c.Do(ctx, http.MethodPost, "/v1/sessions/start", json.RawMessage(`{}`), token)
	if err != nil {
		return nil, err
	}

	var resp StartSessionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	return &resp, nil
}

// HeartbeatResponse is the heartbeat response.
type HeartbeatResponse struct {
	Status         string                 `json:"status"`
	PresencePrompt *domain.PresencePrompt `json:"presence_prompt"`
}

// Heartbeat calls POST /heartbeat.
func (c *Client) Heartbeat(ctx context.Context, token, sessionID, activity string) (*HeartbeatResponse, error) {
	body, err := json.Marshal(map[string]string{"session_id": sessionID, "activity": activity})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	respBody, err := c.Do(ctx, http.MethodPost, "/heartbeat", body, token)
	if err != nil {
		return nil, err
	}

	var resp HeartbeatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode heartbeat response: %w", err)
	}
	return &resp, nil
}

// GetPauses calls GET /v1/sessions/:session_id/pauses.
func (c *Client) GetPauses(ctx context.Context, token, sessionID string) (*domain.PauseSnapshot, error) {
	respBody, err := c.Do(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/pauses", nil, token)
	if err != nil {
		return nil, err
	}

	var snapshot domain.PauseSnapshot
	if err := json.Unmarshal(respBody, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode pause snapshot: %w", err)
	}
	return &snapshot, nil
}
