// Package http provides the HTTP server implementation for the
// attendance service.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/policy"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/service"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/transport/http/internalapi"
	v1 "github.com/vt-ctyhp/attendance-system-sub002/internal/transport/http/v1"
	"github.com/vt-ctyhp/attendance-system-sub002/internal/transport/ws"
)

// NewExternalServer creates and configures the worker-facing HTTP
// server. This server handles tokens, sessions, heartbeats, presence
// responses and pauses.
func NewExternalServer(svc *service.Service, policyEngine *policy.Engine) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, policyEngine)

	// Register Routes
	v1Handler.RegisterRoutes(e)

	return e
}

// NewInternalServer creates and configures the supervisor-facing HTTP
// server. This server handles session inspection and the live event
// stream.
func NewInternalServer(svc *service.Service, stream *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Handlers
	internalHandler := internalapi.NewHandler(svc, stream)

	// Register Routes
	internalHandler.RegisterRoutes(e)

	return e
}
