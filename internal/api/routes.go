// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/profile-desk/backend/internal/inspect"
	"github.com/profile-desk/backend/internal/session"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions *session.Manager
	Policy   inspect.Policy
	Version  string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Session SessionHandler
	Files   FileHandler
	Results ResultHandler
	Feed    FeedHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version, deps.Sessions.Count),
		Session: NewSessionHandler(deps.Sessions),
		Files:   NewFileHandler(deps.Sessions, deps.Policy),
		Results: NewResultHandler(deps.Sessions),
		Feed:    NewFeedHandler(deps.Sessions),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api")
	api.GET("/health", handlers.Health.HandleHealth)

	// Session routes
	api.POST("/sessions", handlers.Session.HandleCreateSession)
	sess := api.Group("/sessions/:id")
	sess.GET("", handlers.Session.HandleGetSession)
	sess.DELETE("", handlers.Session.HandleDeleteSession)
	sess.POST("/keepalive", handlers.Session.HandleKeepAlive)
	sess.PUT("/view", handlers.Session.HandleSetView)
	sess.DELETE("/notifications/:notificationId", handlers.Session.HandleDismissNotification)
	sess.GET("/feed", handlers.Feed.HandleFeed)

	// File routes
	sess.POST("/files", handlers.Files.HandleAddFiles)
	sess.GET("/files", handlers.Files.HandleListFiles)
	sess.POST("/files/:fileId/extract", handlers.Files.HandleExtractFile)
	sess.POST("/extract", handlers.Files.HandleExtractAll)

	// Result routes
	sess.GET("/results", handlers.Results.HandleListResults)
	sess.GET("/results/summary", handlers.Results.HandleResultSummary)
	sess.GET("/results/export", handlers.Results.HandleExport)
	sess.POST("/results/select-all", handlers.Results.HandleSelectAll)
	sess.DELETE("/results/selected", handlers.Results.HandleDeleteSelected)
	sess.POST("/results/:resultId/toggle", handlers.Results.HandleToggleResult)
}

// MiddlewareConfig selects the optional middleware.
type MiddlewareConfig struct {
	EnableCORS     bool
	AllowOrigins   []string
	BodyLimit      string
	RequestLogging bool
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig) {
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.Recover())

	if cfg.RequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogURI:      true,
			LogStatus:   true,
			LogMethod:   true,
			LogLatency:  true,
			LogError:    true,
			HandleError: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				fields := []zap.Field{
					zap.String("method", v.Method),
					zap.String("uri", v.URI),
					zap.Int("status", v.Status),
					zap.Duration("latency", v.Latency),
				}
				if v.Error != nil {
					fields = append(fields, zap.Error(v.Error))
				}
				zap.L().Info("request", fields...)
				return nil
			},
		}))
	}

	if cfg.EnableCORS {
		origins := cfg.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
		}))
	}

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
}
