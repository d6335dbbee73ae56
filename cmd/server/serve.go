package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/profile-desk/backend/internal/api"
	"github.com/profile-desk/backend/internal/web"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser client and its API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		embeddedMode := web.HasEmbeddedFiles()

		e := echo.New()
		e.HideBanner = true
		e.HidePort = true

		api.SetupMiddleware(e, api.MiddlewareConfig{
			EnableCORS:     cfg.Server.EnableCORS,
			AllowOrigins:   splitOrigins(cfg.Server.AllowOrigins),
			BodyLimit:      cfg.Server.BodyLimit,
			RequestLogging: cfg.Log.RequestLogging,
		})
		api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
			Sessions: a.sessions,
			Policy:   cfg.UploadPolicy(),
			Version:  Version,
		}))

		if embeddedMode {
			if err := web.RegisterStaticRoutes(e); err != nil {
				zap.L().Warn("failed to register static routes", zap.Error(err))
				embeddedMode = false
			}
		}

		go cleanupLoop(ctx, a)

		s := &http.Server{
			Addr:         cfg.GetServerAddr(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}

		printBanner(embeddedMode)

		errCh := make(chan error, 1)
		go func() {
			errCh <- e.StartServer(s)
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "override server.port")
	rootCmd.AddCommand(serveCmd)

	// serve is the default command
	rootCmd.RunE = serveCmd.RunE
}

// cleanupLoop expires idle sessions and forgets finished upload jobs.
func cleanupLoop(ctx context.Context, a *app) {
	ticker := time.NewTicker(cfg.Session.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.sessions.CleanupOldSessions(cfg.Session.Timeout); n > 0 {
				zap.L().Info("expired idle sessions", zap.Int("count", n))
			}
			a.uploads.CleanupOldJobs(cfg.Session.Timeout)
		}
	}
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func printBanner(embedded bool) {
	mode := "API only"
	if embedded {
		mode = "Embedded client"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Company Profile Extractor                       ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", cfg.File)
	fmt.Printf("║  Listen:    http://%-39s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Backend:   %-46s║\n", cfg.Backend.APIBaseURL)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
