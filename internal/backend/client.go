// Package backend provides a client for the remote extraction service's
// upload endpoint.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/profile-desk/backend/internal/models"
)

// Client submits files to the extraction service.
type Client interface {
	// Extract uploads one file for the given client token and returns the
	// job descriptor. Exactly one request is made; callers decide on retries.
	Extract(ctx context.Context, clientID, fileName string, body io.Reader) (*models.UploadResponse, error)
}

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("extraction service returned %d", e.Code)
	}
	return fmt.Sprintf("extraction service returned %d: %s", e.Code, body)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client. A nil client is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout overrides the per-request timeout. It applies after all other
// options and never modifies a client passed to WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.timeout = d
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 2 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c
}

func (c *httpClient) Extract(ctx context.Context, clientID, fileName string, body io.Reader) (*models.UploadResponse, error) {
	reqURL := fmt.Sprintf("%s/extract/%s", c.baseURL, url.PathEscape(clientID))

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, body); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, pr)
	if err != nil {
		pr.Close()
		return nil, eris.Wrap(err, "backend: create request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		pr.Close()
		return nil, eris.Wrap(err, "backend: upload")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "backend: read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var out models.UploadResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, eris.Wrap(err, "backend: unmarshal response")
	}
	if out.JobID == "" {
		return nil, eris.New("backend: response has no job_id")
	}

	return &out, nil
}
