package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HeartbeatRequest is a liveness report for an active session. Activity
// is a free-form label (e.g. "typing", "idle") recorded for supervisors.
type HeartbeatRequest struct {
	SessionID string `json:"session_id"`
	Activity  string `json:"activity"`
}

// Heartbeat records liveness for the session and returns a presence
// prompt when one is due or still awaiting a response.
// POST /heartbeat
func (h *Handler) Heartbeat(c echo.Context) error {
	ctx := c.Request().Context()

	var req HeartbeatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}

	prompt, err := h.service.Heartbeat(ctx, req.SessionID, req.Activity, time.Now().UTC())
	if err != nil {
		return writeError(c, err)
	}

	resp := map[string]interface{}{
		"status":          "ok",
		"presence_prompt": nil,
	}
	if prompt != nil {
		resp["presence_prompt"] = prompt
	}
	return c.JSON(http.StatusOK, resp)
}

// RespondRequest confirms presence for a triggered prompt.
type RespondRequest struct {
	PromptID string `json:"prompt_id"`
}

// RespondPresence confirms a triggered presence prompt. Confirming a
// prompt that already reached a terminal state is a no-op, so retries
// are safe.
// POST /presence/respond
func (h *Handler) RespondPresence(c echo.Context) error {
	ctx := c.Request().Context()

	var req RespondRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.PromptID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "prompt_id is required"})
	}

	prompt, err := h.service.ConfirmPrompt(ctx, req.PromptID, time.Now().UTC())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"prompt": prompt,
	})
}
