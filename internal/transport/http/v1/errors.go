package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// writeError maps a service error to an HTTP response. Unknown errors
// become 500 without leaking internals.
func writeError(c echo.Context, err error) error {
	code := domain.CodeOf(err)
	status := http.StatusInternalServerError

	switch code {
	case domain.CodeValidation:
		status = http.StatusBadRequest
	case domain.CodeAuth:
		status = http.StatusUnauthorized
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeConflict:
		status = http.StatusConflict
	case domain.CodeOverload:
		status = http.StatusServiceUnavailable
		c.Response().Header().Set("Retry-After", "30")
	}

	message := "internal error"
	if status != http.StatusInternalServerError {
		message = err.Error()
	}

	return c.JSON(status, map[string]string{
		"error": message,
		"code":  string(code),
	})
}
