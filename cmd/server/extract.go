package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/profile-desk/backend/internal/export"
	"github.com/profile-desk/backend/internal/inspect"
	"github.com/profile-desk/backend/internal/models"
	"github.com/profile-desk/backend/internal/session"
)

var (
	extractOutput  string
	extractFormat  string
	extractTimeout time.Duration
)

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf|dir>...",
	Short: "Extract profiles from PDFs without the browser client",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(extractFormat)
		if err != nil {
			return err
		}

		paths, err := collectPDFs(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return eris.New("no PDF files found")
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), extractTimeout)
		defer cancel()

		s, err := a.sessions.Create(ctx)
		if err != nil {
			return err
		}
		if err := waitConnected(ctx, s); err != nil {
			return err
		}

		staged, err := stageFiles(ctx, s, cfg.UploadPolicy(), paths)
		if err != nil {
			return err
		}
		jobs := s.SubmitAll()
		zap.L().Info("submitted files", zap.Int("staged", staged), zap.Int("submitted", len(jobs)))

		if err := waitTerminal(ctx, s); err != nil {
			zap.L().Warn("exporting partial results", zap.Error(err))
		}

		failed := 0
		for _, rec := range s.Store.Files() {
			if rec.Status == models.FileStatusError {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %s\n", rec.Name, rec.Progress)
			}
		}

		s.Store.SelectAll()
		doc, err := export.Encode(s.Store.Selected(), format)
		if err != nil {
			return err
		}

		out := extractOutput
		if out == "" {
			out = doc.FileName
		}
		if out == "-" {
			_, err = cmd.OutOrStdout().Write(doc.Data)
		} else {
			err = os.WriteFile(out, doc.Data, 0644)
		}
		if err != nil {
			return eris.Wrap(err, "write export")
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "%d extracted, %d failed\n", len(s.Store.Results()), failed)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "output file, - for stdout (default company_profiles.<format>)")
	extractCmd.Flags().StringVarP(&extractFormat, "format", "f", "json", "export format: json, msgpack or xlsx")
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 10*time.Minute, "give up waiting for results after this long")
	rootCmd.AddCommand(extractCmd)
}

// collectPDFs expands directories to the PDFs directly inside them.
func collectPDFs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "stat %s", arg)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "read dir %s", arg)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				paths = append(paths, filepath.Join(arg, e.Name()))
			}
		}
	}
	return paths, nil
}

// stageFiles saves the files in parallel, then registers them in argument
// order. Files the policy rejects are skipped with a warning.
func stageFiles(ctx context.Context, s *session.Session, policy inspect.Policy, paths []string) (int, error) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)

	staged := make([]*session.StagedFile, len(paths))
	for i, p := range paths {
		g.Go(func() error {
			info, err := os.Stat(p)
			if err != nil {
				return eris.Wrapf(err, "stat %s", p)
			}
			name := filepath.Base(p)
			if err := policy.Check(name, info.Size()); err != nil {
				zap.L().Warn("skipping file", zap.String("file", p), zap.Error(err))
				return nil
			}

			f, err := os.Open(p)
			if err != nil {
				return eris.Wrapf(err, "open %s", p)
			}
			defer f.Close()

			sf, err := s.Stage(name, "application/pdf", f)
			if err != nil {
				return eris.Wrapf(err, "stage %s", p)
			}
			staged[i] = &sf
			return nil
		})
	}
	// Register even on failure so closing the session removes what was saved.
	err := g.Wait()
	n := 0
	for _, sf := range staged {
		if sf != nil {
			s.Register(*sf)
			n++
		}
	}
	return n, err
}

func waitConnected(ctx context.Context, s *session.Session) error {
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	for s.Store.Connection() != models.ConnectionConnected {
		select {
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), "push channel did not connect")
		case <-updates:
		}
	}
	return nil
}

// waitTerminal blocks until every submitted file completed or failed.
func waitTerminal(ctx context.Context, s *session.Session) error {
	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	for {
		pending := 0
		for _, rec := range s.Store.Files() {
			if rec.Status != models.FileStatusUploaded && !rec.Status.IsTerminal() {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return eris.Wrapf(ctx.Err(), "%d files still processing", pending)
		case _, ok := <-updates:
			if !ok {
				return eris.New("session closed")
			}
		}
	}
}
