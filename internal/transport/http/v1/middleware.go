package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/policy"
)

// Context keys set by RequireAuth for downstream handlers.
const (
	contextKeyWorkerID = "worker_id"
	contextKeyScope    = "scope"
)

// RequireAuth authenticates the bearer token and authorizes the request
// against the policy engine. The resolved worker id and scope are
// stashed on the echo context.
func (h *Handler) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		token := bearerToken(c.Request().Header.Get("Authorization"))
		cred, err := h.service.Authenticate(ctx, token, time.Now().UTC())
		if err != nil {
			return writeError(c, err)
		}

		decision, err := h.policy.Evaluate(ctx, policy.Input{
			Method:   c.Request().Method,
			Path:     c.Path(),
			Scope:    cred.Scope,
			WorkerID: cred.WorkerID,
		})
		if err != nil {
			return writeError(c, err)
		}
		if decision != "allow" {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "scope does not permit this operation",
				"code":  string(domain.CodeAuth),
			})
		}

		c.Set(contextKeyWorkerID, cred.WorkerID)
		c.Set(contextKeyScope, cred.Scope)
		return next(c)
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

func workerID(c echo.Context) string {
	id, _ := c.Get(contextKeyWorkerID).(string)
	return id
}
