package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profile-desk/backend/internal/backend"
	"github.com/profile-desk/backend/internal/inspect"
	"github.com/profile-desk/backend/internal/listener"
	"github.com/profile-desk/backend/internal/session"
	"github.com/profile-desk/backend/internal/testutil"
	"github.com/profile-desk/backend/internal/upload"
)

func TestCollectPDFs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.PDF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.pdf"), 0755))

	single := filepath.Join(dir, "notes.txt")
	paths, err := collectPDFs([]string{dir, single})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "b.PDF"),
		single,
	}, paths)

	_, err = collectPDFs([]string{filepath.Join(dir, "missing.pdf")})
	assert.Error(t, err)
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a", "http://b"}, splitOrigins(" http://a, ,http://b "))
	assert.Nil(t, splitOrigins(""))
}

func TestStageFiles_KeepsArgumentOrder(t *testing.T) {
	fake := testutil.NewFakeBackend()
	files := testutil.NewMockStorage()
	uploads := upload.NewManager(files, backend.NewClient(fake.APIBase()), upload.Options{})
	sessions := session.NewManager(files, uploads, session.Options{
		WSBaseURL: fake.WSBase(),
		Policy:    listener.FixedPolicy(10 * time.Millisecond),
	})
	t.Cleanup(func() {
		sessions.CloseAll()
		uploads.Shutdown()
		fake.Close()
	})

	s, err := sessions.Create(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	names := []string{"zeta.pdf", "alpha.pdf", "notes.txt", "mid.pdf", "beta.pdf", "omega.pdf"}
	var paths []string
	for _, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4 "+name), 0644))
		paths = append(paths, p)
	}

	n, err := stageFiles(context.Background(), s, inspect.ParsePolicy(".pdf", 0), paths)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	var got []string
	for _, rec := range s.Store.Files() {
		got = append(got, rec.Name)
	}
	assert.Equal(t, []string{"zeta.pdf", "alpha.pdf", "mid.pdf", "beta.pdf", "omega.pdf"}, got)
}
