package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// TokenRequest is the request to issue a token pair.
type TokenRequest struct {
	WorkerID string `json:"worker_id"`
	DeviceID string `json:"device_id,omitempty"`
}

// RefreshRequest is the request to rotate a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken           string `json:"access_token"`
	AccessTokenExpiresAt  int64  `json:"access_token_expires_at"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at"`
	Scope                 string `json:"scope"`
}

func newTokenResponse(cred *domain.Credential) tokenResponse {
	return tokenResponse{
		AccessToken:           cred.AccessToken,
		AccessTokenExpiresAt:  cred.AccessTokenExpiresAt.UnixMilli(),
		RefreshToken:          cred.RefreshToken,
		RefreshTokenExpiresAt: cred.RefreshTokenExpiresAt.UnixMilli(),
		Scope:                 cred.Scope,
	}
}

// IssueToken issues a new access/refresh token pair.
// POST /v1/auth/token
func (h *Handler) IssueToken(c echo.Context) error {
	ctx := c.Request().Context()

	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	cred, err := h.service.IssueCredential(ctx, req.WorkerID, req.DeviceID, time.Now().UTC())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, newTokenResponse(cred))
}

// RefreshToken rotates a refresh token for a new pair.
// POST /v1/auth/refresh
func (h *Handler) RefreshToken(c echo.Context) error {
	ctx := c.Request().Context()

	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	cred, err := h.service.RefreshCredential(ctx, req.RefreshToken, time.Now().UTC())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, newTokenResponse(cred))
}
