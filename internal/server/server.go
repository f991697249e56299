// Package server exposes the HTTP side of repopulse: health and metrics,
// subscriber status, the GitHub OAuth callback and the webhook receiver.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/spiffcs/repopulse/internal/log"
	"github.com/spiffcs/repopulse/internal/subscription"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the server. OAuth and Webhook are optional;
// their routes are not registered when nil.
type Deps struct {
	Store         Pinger
	Subscriptions *subscription.Service
	OAuth         OAuthExchanger
	Webhook       *Webhook
}

// Server is the HTTP server.
type Server struct {
	echo *echo.Echo
	addr string
	deps Deps
}

// New creates a server listening on addr.
func New(addr string, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: log.NewID}))
	e.Use(requestContext)

	s := &Server{echo: e, addr: addr, deps: deps}
	s.registerRoutes()
	return s
}

// requestContext copies the request id into the request context so that
// handler logs carry it.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Response().Header().Get(echo.HeaderXRequestID)
		if id == "" {
			id = log.NewID()
		}
		req := c.Request()
		c.SetRequest(req.WithContext(log.WithRequestID(req.Context(), id)))
		return next(c)
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info("starting server", "addr", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}
