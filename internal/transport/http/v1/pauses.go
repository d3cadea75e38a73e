package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/service"
)

// PauseRequest identifies the session a pause event belongs to.
type PauseRequest struct {
	SessionID string `json:"session_id"`
}

type pauseOp func(ctx context.Context, sessionID string, kind domain.PauseKind, now time.Time) (*service.PauseResult, error)

// StartPause opens a pause of the given kind. Starting a kind that is
// already open returns the open pause unchanged, so retries are safe.
// POST /pauses/:kind/start
func (h *Handler) StartPause(c echo.Context) error {
	return h.handlePause(c, h.service.StartPause)
}

// EndPause closes the open pause of the given kind. Ending a kind whose
// last pause is already closed returns that pause unchanged.
// POST /pauses/:kind/end
func (h *Handler) EndPause(c echo.Context) error {
	return h.handlePause(c, h.service.EndPause)
}

func (h *Handler) handlePause(c echo.Context, op pauseOp) error {
	ctx := c.Request().Context()

	var req PauseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}

	result, err := op(ctx, req.SessionID, domain.PauseKind(c.Param("kind")), time.Now().UTC())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"action": result.Action,
		"pause":  result.Pause,
	})
}
