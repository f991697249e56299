package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/spiffcs/repopulse/internal/log"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := s.deps.Store.Ping(ctx); err != nil {
		log.WarnContext(ctx, "health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "store unreachable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	chatID, err := strconv.ParseInt(c.Param("chatID"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid chat id"})
	}

	st, err := s.deps.Subscriptions.Status(c.Request().Context(), chatID)
	if err != nil {
		log.ErrorContext(c.Request().Context(), "failed to load status", "chat_id", chatID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
	return c.JSON(http.StatusOK, st)
}
