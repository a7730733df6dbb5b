// Package server exposes the session store, event broker and run
// coordinator over HTTP. It is a thin layer: validation, status mapping and
// SSE framing live here, everything else is delegated.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/cudemo/agentd/pkg/broker"
	"github.com/cudemo/agentd/pkg/config"
	"github.com/cudemo/agentd/pkg/runner"
	"github.com/cudemo/agentd/pkg/session"
)

// Server wires the HTTP routes to the core components. All dependencies are
// injected; tests construct isolated instances.
type Server struct {
	echo        *echo.Echo
	store       session.Store
	broker      *broker.Broker
	runner      *runner.Runner
	runDefaults config.RunDefaults
}

// New creates a server around the given components. Empty fields of a run
// request are filled from defaults before validation.
func New(store session.Store, b *broker.Broker, r *runner.Runner, defaults config.RunDefaults) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:        e,
		store:       store,
		broker:      b,
		runner:      r,
		runDefaults: defaults,
	}

	e.GET("/health", s.health)
	e.POST("/api/sessions", s.createSession)
	e.GET("/api/sessions/:id", s.getSession)
	e.GET("/api/sessions/:id/messages", s.listMessages)
	e.POST("/api/sessions/:id/messages", s.addMessage)
	e.GET("/api/sessions/:id/events", s.streamEvents)
	e.POST("/api/sessions/:id/run", s.startRun)

	return s
}

// Handler returns the underlying HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	slog.Info("starting server", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
