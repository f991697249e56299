package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.GET("/status/:chatID", s.handleStatus)

	if s.deps.OAuth != nil {
		s.echo.GET("/github/callback", s.handleOAuthCallback)
	}
	if s.deps.Webhook != nil {
		s.echo.POST("/github/webhook", s.deps.Webhook.Handle)
	}
}
