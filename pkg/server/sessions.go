package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cudemo/agentd/pkg/api"
	"github.com/cudemo/agentd/pkg/session"
)

func (s *Server) createSession(c echo.Context) error {
	sess, err := s.store.CreateSession(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create session")
	}

	return c.JSON(http.StatusCreated, api.SessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
	})
}

func (s *Server) getSession(c echo.Context) error {
	sess, err := s.store.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get session")
	}

	return c.JSON(http.StatusOK, api.SessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
	})
}

func (s *Server) listMessages(c echo.Context) error {
	sessionID := c.Param("id")

	if _, err := s.store.GetSession(c.Request().Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get session")
	}

	messages, err := s.store.ListMessages(c.Request().Context(), sessionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}

	response := make([]api.MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, api.MessageResponse{
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
			Sequence:  msg.Sequence,
		})
	}

	return c.JSON(http.StatusOK, response)
}

func (s *Server) addMessage(c echo.Context) error {
	var req api.AddMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	switch session.Role(req.Role) {
	case session.RoleUser, session.RoleAssistant, session.RoleTool:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "role must be user, assistant or tool")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	msg, err := s.store.AddMessage(c.Request().Context(), c.Param("id"), session.Role(req.Role), req.Content)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to add message")
	}

	return c.JSON(http.StatusCreated, api.MessageResponse{
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		Sequence:  msg.Sequence,
	})
}
