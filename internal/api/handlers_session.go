// handlers_session.go - Session lifecycle handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/profile-desk/backend/internal/models"
	"github.com/profile-desk/backend/internal/session"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions *session.Manager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *session.Manager) SessionHandler {
	return &SessionHandlerImpl{sessions: sessions}
}

// HandleCreateSession issues a new client token and starts its listener
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	s, err := h.sessions.Create(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s.Store.Snapshot())
}

// HandleGetSession returns the full session snapshot
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	snap, err := h.sessions.Snapshot(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// HandleDeleteSession tears the session down
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleKeepAlive keeps an idle session from being cleaned up
func (h *SessionHandlerImpl) HandleKeepAlive(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.TouchSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type setViewRequest struct {
	View models.View `json:"view"`
}

// HandleSetView switches between the upload and results tabs
func (h *SessionHandlerImpl) HandleSetView(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}

	var req setViewRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := s.Store.SetView(req.View); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]models.View{"view": s.Store.View()})
}

// HandleDismissNotification removes one notification
func (h *SessionHandlerImpl) HandleDismissNotification(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	if err := s.Store.DismissNotification(c.Param("notificationId")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.Store.Notifications())
}
