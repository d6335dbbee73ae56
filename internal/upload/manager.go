// Package upload runs extraction submissions in the background. Each
// submission sends one staged file to the extraction service and folds the
// outcome back into the session state.
package upload

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/profile-desk/backend/internal/backend"
	"github.com/profile-desk/backend/internal/models"
	"github.com/profile-desk/backend/internal/storage"
)

// Status represents the state of one submission.
type Status string

const (
	StatusWaiting Status = "waiting" // for a free upload slot
	StatusSending Status = "sending"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

const (
	DefaultMaxConcurrent = 4
	DefaultTimeout       = 2 * time.Minute
)

// Job tracks one submission.
type Job struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"clientId"`
	RecordID    string     `json:"recordId"`
	FileName    string     `json:"fileName"`
	Status      Status     `json:"status"`
	JobID       string     `json:"jobId,omitempty"` // assigned by the extraction service
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Target is the session state a submission reports back to.
type Target interface {
	ClientID() string
	MarkSubmitted(id string) (models.FileRecord, error)
	ResolveUpload(id string, resp models.UploadResponse) (models.FileRecord, error)
	FailUpload(id string, message string) (models.FileRecord, error)
}

// Options tunes a Manager.
type Options struct {
	MaxConcurrent int
	Timeout       time.Duration
}

// Manager handles background submissions.
type Manager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	files  storage.Store
	client backend.Client

	sem     *semaphore.Weighted
	timeout time.Duration
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a submission manager.
func NewManager(files storage.Store, client backend.Client, opts Options) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		jobs:    make(map[string]*Job),
		files:   files,
		client:  client,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		timeout: opts.Timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit marks the record as submitted and starts its upload. Records that
// already left the "uploaded" state are refused so each one is sent at most
// once.
func (m *Manager) Submit(t Target, recordID string) (Job, error) {
	rec, err := t.MarkSubmitted(recordID)
	if err != nil {
		return Job{}, err
	}

	job := &Job{
		ID:        uuid.New().String(),
		ClientID:  t.ClientID(),
		RecordID:  rec.ID,
		FileName:  rec.Name,
		Status:    StatusWaiting,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.process(t, job, rec)

	return *job, nil
}

// SubmitAll submits every record still in the "uploaded" state.
func (m *Manager) SubmitAll(t Target, records []models.FileRecord) []Job {
	var jobs []Job
	for _, rec := range records {
		if rec.Status != models.FileStatusUploaded {
			continue
		}
		job, err := m.Submit(t, rec.ID)
		if err != nil {
			zap.L().Debug("skipping record", zap.String("record_id", rec.ID), zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// GetJob retrieves a job by ID.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Wait blocks until every started submission has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown aborts in-flight submissions and waits for them to finish.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) process(t Target, job *Job, rec models.FileRecord) {
	defer m.wg.Done()

	logger := zap.L().With(
		zap.String("upload_id", job.ID[:8]),
		zap.String("client_id", job.ClientID),
		zap.String("file", job.FileName),
	)

	if err := m.sem.Acquire(m.ctx, 1); err != nil {
		m.fail(t, job, logger, eris.Wrap(err, "upload canceled"))
		return
	}
	defer m.sem.Release(1)

	m.setStatus(job, StatusSending)
	logger.Info("submitting file")

	body, err := m.files.Open(rec.FileID)
	if err != nil {
		m.fail(t, job, logger, err)
		return
	}
	defer body.Close()

	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	resp, err := m.client.Extract(ctx, job.ClientID, rec.Name, body)
	if err != nil {
		m.fail(t, job, logger, err)
		return
	}

	if _, err := t.ResolveUpload(rec.ID, *resp); err != nil {
		m.fail(t, job, logger, err)
		return
	}

	m.mu.Lock()
	job.Status = StatusDone
	job.JobID = resp.JobID
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()

	logger.Info("file queued", zap.String("job_id", resp.JobID))
}

func (m *Manager) setStatus(job *Job, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = status
}

// fail records the error on the job and on the file record.
func (m *Manager) fail(t Target, job *Job, logger *zap.Logger, err error) {
	msg := err.Error()

	m.mu.Lock()
	job.Status = StatusError
	job.Error = msg
	now := time.Now()
	job.CompletedAt = &now
	m.mu.Unlock()

	logger.Warn("submission failed", zap.Error(err))
	if _, ferr := t.FailUpload(job.RecordID, msg); ferr != nil {
		logger.Warn("could not record failure", zap.Error(ferr))
	}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range m.jobs {
		if job.Status == StatusDone || job.Status == StatusError {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
			}
		}
	}
}
