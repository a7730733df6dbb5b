package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cudemo/agentd/pkg/api"
	"github.com/cudemo/agentd/pkg/runner"
	"github.com/cudemo/agentd/pkg/session"
)

func (s *Server) startRun(c echo.Context) error {
	var req api.StartRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// Fields the caller left empty fall back to the configured defaults.
	if req.Model == "" {
		req.Model = s.runDefaults.Model
	}
	if req.Provider == "" {
		req.Provider = s.runDefaults.Provider
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = s.runDefaults.MaxTokens
	}

	if req.Model == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "model is required")
	}

	cfg := runner.RunConfig{
		Model:              req.Model,
		Provider:           req.Provider,
		SystemPromptSuffix: req.SystemPromptSuffix,
		MaxTokens:          req.MaxTokens,
		ToolVersion:        req.ToolVersion,

		ThinkingBudget:        req.ThinkingBudget,
		TokenEfficientTools:   req.TokenEfficientTools,
		OnlyNMostRecentImages: req.OnlyNMostRecentImages,
	}

	started, err := s.runner.Start(c.Request().Context(), c.Param("id"), cfg)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start run")
	}

	return c.JSON(http.StatusOK, api.StartRunResponse{Started: started})
}

// streamEvents serves a session's live notifications as server-sent events.
// The subscription is registered before the first byte is written, so the
// client sees every payload published after the request reached us.
func (s *Server) streamEvents(c echo.Context) error {
	sessionID := c.Param("id")

	if _, err := s.store.GetSession(c.Request().Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get session")
	}

	sub := s.broker.Subscribe(sessionID)
	defer sub.Close()

	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set(echo.HeaderCacheControl, "no-cache")
	response.Header().Set(echo.HeaderConnection, "keep-alive")
	response.WriteHeader(http.StatusOK)
	response.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(response, "data: %s\n\n", payload); err != nil {
				return nil
			}
			response.Flush()
		}
	}
}
