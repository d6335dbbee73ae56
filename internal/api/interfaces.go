// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import "github.com/labstack/echo/v4"

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionHandler handles session lifecycle and view state
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleKeepAlive(c echo.Context) error
	HandleSetView(c echo.Context) error
	HandleDismissNotification(c echo.Context) error
}

// FileHandler handles file selection and extraction submission
type FileHandler interface {
	HandleAddFiles(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleExtractFile(c echo.Context) error
	HandleExtractAll(c echo.Context) error
}

// ResultHandler handles the result table operations
type ResultHandler interface {
	HandleListResults(c echo.Context) error
	HandleResultSummary(c echo.Context) error
	HandleToggleResult(c echo.Context) error
	HandleSelectAll(c echo.Context) error
	HandleDeleteSelected(c echo.Context) error
	HandleExport(c echo.Context) error
}

// FeedHandler streams session snapshots over WebSocket
type FeedHandler interface {
	HandleFeed(c echo.Context) error
}
