// Package internalapi provides the supervisor-facing HTTP API.
package internalapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/service"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/transport/ws"
)

// Handler handles internal HTTP requests from supervisor tooling.
type Handler struct {
	service *service.Service
	stream  *ws.Server
}

// NewHandler creates a new internal handler.
func NewHandler(service *service.Service, stream *ws.Server) *Handler {
	return &Handler{
		service: service,
		stream:  stream,
	}
}

// RegisterRoutes registers internal routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/internal/sessions", h.ListSessions)
	e.GET("/internal/sessions/:session_id", h.GetSession)
	e.GET("/internal/sessions/:session_id/prompts", h.ListPrompts)
	e.GET("/internal/sessions/:session_id/pauses", h.GetPauses)
	e.GET("/internal/events", h.stream.HandleEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

// ListSessions lists recent sessions, newest first.
// GET /internal/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = parsed
	}

	sessions, err := h.service.ListSessions(ctx, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// GetSession returns one session.
// GET /internal/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()

	session, err := h.service.GetSession(ctx, c.Param("session_id"))
	if err != nil {
		if domain.CodeOf(err) == domain.CodeNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, session)
}

// ListPrompts returns a session's full presence plan, the audit trail of
// scheduled, confirmed and missed checks.
// GET /internal/sessions/:session_id/prompts
func (h *Handler) ListPrompts(c echo.Context) error {
	ctx := c.Request().Context()

	prompts, err := h.service.ListPrompts(ctx, c.Param("session_id"))
	if err != nil {
		if domain.CodeOf(err) == domain.CodeNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"prompts": prompts,
	})
}

// GetPauses returns a session's pause snapshot.
// GET /internal/sessions/:session_id/pauses
func (h *Handler) GetPauses(c echo.Context) error {
	ctx := c.Request().Context()

	snapshot, err := h.service.PauseSnapshot(ctx, c.Param("session_id"))
	if err != nil {
		if domain.CodeOf(err) == domain.CodeNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, snapshot)
}
