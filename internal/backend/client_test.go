package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profile-desk/backend/internal/models"
)

func TestExtract_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/extract/client-42", r.URL.Path)

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "profile.pdf", header.Filename)
		assert.Equal(t, "%PDF-1.7", string(data))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.UploadResponse{
			JobID:    "job-1",
			ClientID: "client-42",
			Status:   models.FileStatusQueued,
			Message:  "Job queued",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL + "/")
	got, err := client.Extract(context.Background(), "client-42", "profile.pdf", strings.NewReader("%PDF-1.7"))

	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "client-42", got.ClientID)
	assert.Equal(t, models.FileStatusQueued, got.Status)
	assert.Equal(t, "Job queued", got.Message)
}

func TestExtract_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"detail":"agent unavailable"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Extract(context.Background(), "c", "a.pdf", strings.NewReader("x"))

	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "agent unavailable")
}

func TestExtract_MissingJobID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Extract(context.Background(), "c", "a.pdf", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestExtract_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Extract(context.Background(), "c", "a.pdf", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestExtract_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL, WithTimeout(time.Second)).Extract(context.Background(), "c", "a.pdf", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestExtract_ContextCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL).Extract(ctx, "c", "a.pdf", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestStatusError_TruncatesBody(t *testing.T) {
	err := &StatusError{Code: 500, Body: strings.Repeat("x", 500)}
	assert.Less(t, len(err.Error()), 260)

	empty := &StatusError{Code: 404}
	assert.Equal(t, "extraction service returned 404", empty.Error())
}

func TestNewClient_TimeoutAppliesAfterHTTPClient(t *testing.T) {
	t.Parallel()

	custom := &http.Client{Timeout: time.Hour}
	c := NewClient("http://backend", WithTimeout(5*time.Second), WithHTTPClient(custom)).(*httpClient)

	assert.Equal(t, 5*time.Second, c.http.Timeout)
	assert.Equal(t, time.Hour, custom.Timeout, "caller's client must not be modified")
}

func TestNewClient_NilHTTPClientIgnored(t *testing.T) {
	t.Parallel()

	var c *httpClient
	require.NotPanics(t, func() {
		c = NewClient("http://backend", WithHTTPClient(nil), WithTimeout(time.Second)).(*httpClient)
	})
	require.NotNil(t, c.http)
	assert.Equal(t, time.Second, c.http.Timeout)
}
