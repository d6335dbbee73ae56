package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profile-desk/backend/internal/backend"
	"github.com/profile-desk/backend/internal/inspect"
	"github.com/profile-desk/backend/internal/listener"
	"github.com/profile-desk/backend/internal/models"
	"github.com/profile-desk/backend/internal/session"
	"github.com/profile-desk/backend/internal/testutil"
	"github.com/profile-desk/backend/internal/upload"
)

type testServer struct {
	e        *echo.Echo
	fake     *testutil.FakeBackend
	files    *testutil.MockStorage
	sessions *session.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	fake := testutil.NewFakeBackend()
	files := testutil.NewMockStorage()
	uploads := upload.NewManager(files, backend.NewClient(fake.APIBase()), upload.Options{})
	sessions := session.NewManager(files, uploads, session.Options{
		WSBaseURL:   fake.WSBase(),
		Policy:      listener.FixedPolicy(10 * time.Millisecond),
		MaxSessions: 2,
	})

	e := echo.New()
	SetupMiddleware(e, MiddlewareConfig{})
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Sessions: sessions,
		Policy:   inspect.ParsePolicy(".pdf", 1024),
		Version:  "test",
	}))

	t.Cleanup(func() {
		sessions.CloseAll()
		uploads.Shutdown()
		fake.Close()
	})
	return &testServer{e: e, fake: fake, files: files, sessions: sessions}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/sessions", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var snap models.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.ClientID)
	require.True(t, ts.fake.WaitConnected(snap.ClientID, 2*time.Second))
	return snap.ClientID
}

type formFile struct {
	name string
	data string
}

func multipartBody(t *testing.T, files ...formFile) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("files", f.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.data))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, float64(0), body["sessions"])
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodGet, "/api/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/keepalive", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
}

func TestCreateSession_Limit(t *testing.T) {
	ts := newTestServer(t)
	ts.createSession(t)
	ts.createSession(t)

	// Both sessions are inside the keep-alive window, so nothing is evicted.
	rec := ts.do(t, http.MethodPost, "/api/sessions", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, rec).Code)
}

func TestHandleSetView(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPut, "/api/sessions/"+id+"/view",
		[]byte(`{"view":"results"}`), echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"view":"results"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPut, "/api/sessions/"+id+"/view",
		[]byte(`{"view":"settings"}`), echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestHandleAddFiles(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	body, ct := multipartBody(t,
		formFile{"acme.pdf", "%PDF-1.4"},
		formFile{"notes.docx", "not a pdf"},
	)
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/files", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp addFilesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "acme.pdf", resp.Files[0].Name)
	assert.Equal(t, models.FileStatusUploaded, resp.Files[0].Status)
	require.Len(t, resp.Rejected, 1)
	assert.Equal(t, "notes.docx", resp.Rejected[0].Name)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+id+"/files", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var files []models.FileRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	assert.Len(t, files, 1)
}

func TestHandleAddFiles_AllRejected(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	body, ct := multipartBody(t, formFile{"huge.pdf", strings.Repeat("x", 2048)})
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/files", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	assert.Contains(t, apiErr.Details, "huge.pdf")
}

func TestHandleAddFiles_StagingFailureKeepsOthers(t *testing.T) {
	ts := newTestServer(t)
	ts.files.SaveErr = func(name string) error {
		if name == "broken.pdf" {
			return errors.New("disk full")
		}
		return nil
	}
	id := ts.createSession(t)

	body, ct := multipartBody(t, formFile{"acme.pdf", "%PDF-1.4"}, formFile{"broken.pdf", "%PDF-1.4"})
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/files", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp addFilesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "acme.pdf", resp.Files[0].Name)
	require.Len(t, resp.Rejected, 1)
	assert.Equal(t, "broken.pdf", resp.Rejected[0].Name)

	// nothing staged at all is a server error
	body, ct = multipartBody(t, formFile{"broken.pdf", "%PDF-1.4"})
	rec = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/files", body, ct)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleAddFiles_NotMultipart(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/files", []byte(`{}`), echo.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractionFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.fake.AutoComplete = true
	id := ts.createSession(t)

	body, ct := multipartBody(t, formFile{"acme.pdf", "%PDF-1.4"}, formFile{"globex.pdf", "%PDF-1.5"})
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/files", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)
	var added addFilesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))
	require.Len(t, added.Files, 2)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/files/"+added.Files[0].ID+"/extract", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Already submitted.
	rec = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/files/"+added.Files[0].ID+"/extract", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/extract", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var all struct {
		Submitted []upload.Job `json:"submitted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all.Submitted, 1)
	assert.Equal(t, "globex.pdf", all.Submitted[0].FileName)

	var results []models.ExtractionResult
	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/results", nil, "")
		if rec.Code != http.StatusOK {
			return false
		}
		results = nil
		return json.Unmarshal(rec.Body.Bytes(), &results) == nil && len(results) == 2
	}, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/results?q=globex", nil, "")
		var found []models.ExtractionResult
		return json.Unmarshal(rec.Body.Bytes(), &found) == nil && len(found) == 1
	}, time.Second, 20*time.Millisecond)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+id+"/results/summary", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/results/"+results[0].ID+"/toggle", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var toggled struct {
		Selected bool     `json:"selected"`
		IDs      []string `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &toggled))
	assert.True(t, toggled.Selected)
	assert.Equal(t, []string{results[0].ID}, toggled.IDs)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+id+"/results/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "company_profiles.json")
	var exported []models.ExtractionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exported))
	require.Len(t, exported, 1)
	assert.Equal(t, results[0].ID, exported[0].ID)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+id+"/results/export?format=csv", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/results/select-all", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var selected struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &selected))
	assert.Len(t, selected.IDs, 2)

	rec = ts.do(t, http.MethodDelete, "/api/sessions/"+id+"/results/selected", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted struct {
		Deleted []string `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deleted))
	assert.Len(t, deleted.Deleted, 2)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+id+"/results", nil, "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestToggleResult_NotFound(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/results/missing/toggle", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtractFile_BackendFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.fake.FailUploads(http.StatusInternalServerError)
	id := ts.createSession(t)

	body, ct := multipartBody(t, formFile{"acme.pdf", "%PDF-1.4"})
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/files", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code)
	var added addFilesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/files/"+added.Files[0].ID+"/extract", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/files", nil, "")
		var files []models.FileRecord
		return json.Unmarshal(rec.Body.Bytes(), &files) == nil &&
			len(files) == 1 && files[0].Status == models.FileStatusError
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDismissNotification_NotFound(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodDelete, "/api/sessions/"+id+"/notifications/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
