package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// StartSession starts (or resumes) the worker's work session.
// POST /v1/sessions/start
func (h *Handler) StartSession(c echo.Context) error {
	ctx := c.Request().Context()

	session, created, err := h.service.StartSession(ctx, workerID(c), time.Now().UTC())
	if err != nil {
		return writeError(c, err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]interface{}{
		"session": session,
		"created": created,
	})
}

// EndSession ends a work session. Ending an already ended session is a
// conflict.
// POST /v1/sessions/:session_id/end
func (h *Handler) EndSession(c echo.Context) error {
	ctx := c.Request().Context()

	session, err := h.service.EndSession(ctx, c.Param("session_id"), time.Now().UTC())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session": session,
	})
}

// GetPauses returns the authoritative pause snapshot for a session.
// GET /v1/sessions/:session_id/pauses
func (h *Handler) GetPauses(c echo.Context) error {
	ctx := c.Request().Context()

	snapshot, err := h.service.PauseSnapshot(ctx, c.Param("session_id"))
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, snapshot)
}
