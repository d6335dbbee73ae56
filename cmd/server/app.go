package main

import (
	"github.com/rotisserie/eris"

	"github.com/profile-desk/backend/internal/backend"
	"github.com/profile-desk/backend/internal/config"
	"github.com/profile-desk/backend/internal/session"
	"github.com/profile-desk/backend/internal/storage"
	"github.com/profile-desk/backend/internal/store"
	"github.com/profile-desk/backend/internal/upload"
)

// app bundles the components shared by every command.
type app struct {
	files    *storage.LocalStore
	uploads  *upload.Manager
	sessions *session.Manager
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	files, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		return nil, eris.Wrap(err, "init storage")
	}

	client := backend.NewClient(cfg.Backend.APIBaseURL, backend.WithTimeout(cfg.Backend.UploadTimeout))
	uploads := upload.NewManager(files, client, upload.Options{
		MaxConcurrent: cfg.Backend.MaxConcurrentUploads,
		Timeout:       cfg.Backend.UploadTimeout,
	})

	sessions := session.NewManager(files, uploads, session.Options{
		WSBaseURL:      cfg.Backend.WSBaseURL,
		Policy:         cfg.ReconnectPolicy(),
		MaxMessageSize: cfg.MaxMessageSize(),
		Store: store.Options{
			NotificationLimit: cfg.Session.NotificationLimit,
			PendingPerJob:     cfg.Session.PendingPerJob,
			PendingTTL:        cfg.Session.PendingTTL,
		},
		MaxSessions:     cfg.Session.MaxSessions,
		KeepAliveWindow: cfg.Session.KeepAliveWindow,
	})

	return &app{files: files, uploads: uploads, sessions: sessions}, nil
}

// Close tears down every session, then aborts uploads still in flight.
func (a *app) Close() {
	a.sessions.CloseAll()
	a.uploads.Shutdown()
}
