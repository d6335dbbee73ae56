// handlers_results.go - Result table handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/profile-desk/backend/internal/export"
	"github.com/profile-desk/backend/internal/session"
)

// ResultHandlerImpl implements the ResultHandler interface
type ResultHandlerImpl struct {
	sessions *session.Manager
}

// NewResultHandler creates a new result handler
func NewResultHandler(sessions *session.Manager) ResultHandler {
	return &ResultHandlerImpl{sessions: sessions}
}

// HandleListResults lists results, optionally filtered by ?q=
func (h *ResultHandlerImpl) HandleListResults(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	results, err := s.Results(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return NewInternalError("search failed", err)
	}
	return c.JSON(http.StatusOK, results)
}

// HandleResultSummary returns result counts per industry
func (h *ResultHandlerImpl) HandleResultSummary(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	counts, err := s.IndustrySummary(c.Request().Context())
	if err != nil {
		return NewInternalError("summary failed", err)
	}
	return c.JSON(http.StatusOK, counts)
}

// HandleToggleResult flips the selection of one result
func (h *ResultHandlerImpl) HandleToggleResult(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	selected, err := s.Store.ToggleSelect(c.Param("resultId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"selected": selected,
		"ids":      s.Store.SelectedIDs(),
	})
}

// HandleSelectAll selects every result, or clears the selection when all
// are already selected
func (h *ResultHandlerImpl) HandleSelectAll(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	s.Store.SelectAll()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"ids": s.Store.SelectedIDs(),
	})
}

// HandleDeleteSelected removes the selected results
func (h *ResultHandlerImpl) HandleDeleteSelected(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	removed := s.DeleteSelected(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"deleted": removed,
	})
}

// HandleExport downloads the selected results
func (h *ResultHandlerImpl) HandleExport(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return err
	}
	doc, err := export.Encode(s.Store.Selected(), format)
	if err != nil {
		return NewInternalError("export failed", err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+doc.FileName+`"`)
	return c.Blob(http.StatusOK, doc.ContentType, doc.Data)
}
