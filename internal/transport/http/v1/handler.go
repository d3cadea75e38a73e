// Package v1 provides the external HTTP API for workers.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/policy"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	policy  *policy.Engine
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, policyEngine *policy.Engine) *Handler {
	return &Handler{
		service: service,
		policy:  policyEngine,
	}
}

// RegisterRoutes registers external routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Token API (unauthenticated)
	e.POST("/v1/auth/token", h.IssueToken)
	e.POST("/v1/auth/refresh", h.RefreshToken)

	// Session API
	auth := h.RequireAuth
	e.POST("/v1/sessions/start", h.StartSession, auth)
	e.POST("/v1/sessions/:session_id/end", h.EndSession, auth)
	e.GET("/v1/sessions/:session_id/pauses", h.GetPauses, auth)

	// Presence API
	e.POST("/heartbeat", h.Heartbeat, auth)
	e.POST("/presence/respond", h.RespondPresence, auth)

	// Pause API
	e.POST("/pauses/:kind/start", h.StartPause, auth)
	e.POST("/pauses/:kind/end", h.EndPause, auth)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
