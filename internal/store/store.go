// Package store holds the in-memory state of one client session: the selected
// file records, the accumulated extraction results, the selection set and the
// notification queue. All mutations go through a single mutex so continuations
// from uploads and push events observe a consistent state.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/profile-desk/backend/internal/derive"
	"github.com/profile-desk/backend/internal/models"
)

var (
	ErrFileNotFound         = eris.New("file record not found")
	ErrResultNotFound       = eris.New("result not found")
	ErrNotificationNotFound = eris.New("notification not found")
	ErrNotSubmittable       = eris.New("file is not awaiting extraction")
	ErrJobAlreadyAssigned   = eris.New("file already has a job id")
	ErrInvalidView          = eris.New("unknown view")
)

const (
	DefaultNotificationLimit = 5
	DefaultPendingPerJob     = 32
	DefaultPendingJobs       = 256
	DefaultPendingTTL        = 5 * time.Minute
)

// Options tunes a Store. Zero values fall back to the defaults above.
type Options struct {
	NotificationLimit int
	PendingPerJob     int
	PendingJobs       int
	PendingTTL        time.Duration

	// OnChange is called after every mutation, outside the lock.
	OnChange func(version uint64)

	// Now allows tests to pin the clock.
	Now func() time.Time
}

// EventOutcome reports what ApplyEvent did with a status event.
type EventOutcome struct {
	Matched  bool
	Parked   bool
	Notified bool
	Result   *models.ExtractionResult
}

// Store is the state of one session.
type Store struct {
	mu sync.Mutex

	clientID   string
	files      []*models.FileRecord
	byID       map[string]*models.FileRecord
	byJob      map[string]*models.FileRecord
	results    []models.ExtractionResult
	selection  map[string]struct{}
	notes      *notificationQueue
	pending    *pendingTable
	view       models.View
	connection models.ConnectionState
	version    uint64

	onChange func(uint64)
	now      func() time.Time
}

// New creates an empty store for the given client token.
func New(clientID string, opts Options) *Store {
	if opts.NotificationLimit <= 0 {
		opts.NotificationLimit = DefaultNotificationLimit
	}
	if opts.PendingPerJob <= 0 {
		opts.PendingPerJob = DefaultPendingPerJob
	}
	if opts.PendingJobs <= 0 {
		opts.PendingJobs = DefaultPendingJobs
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = DefaultPendingTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store{
		clientID:   clientID,
		byID:       make(map[string]*models.FileRecord),
		byJob:      make(map[string]*models.FileRecord),
		selection:  make(map[string]struct{}),
		notes:      newNotificationQueue(opts.NotificationLimit),
		pending:    newPendingTable(opts.PendingPerJob, opts.PendingJobs, opts.PendingTTL),
		view:       models.ViewUpload,
		connection: models.ConnectionConnecting,
		onChange:   opts.OnChange,
		now:        func() time.Time { return opts.Now().UTC().Round(0) },
	}
}

// ClientID returns the session token the store belongs to.
func (s *Store) ClientID() string {
	return s.clientID
}

// mutate runs fn under the lock and publishes the change afterwards.
func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	if changed {
		s.version++
	}
	version := s.version
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(version)
	}
}

// AddFile registers a newly selected file with status "uploaded". The second
// return value reports whether a file with the same checksum was already
// selected in this session.
func (s *Store) AddFile(rec models.FileRecord) (models.FileRecord, bool) {
	var (
		out       models.FileRecord
		duplicate bool
	)
	s.mutate(func() bool {
		now := s.now()
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		rec.Status = models.FileStatusUploaded
		rec.JobID = ""
		rec.Progress = ""
		rec.CreatedAt = now
		rec.UpdatedAt = now

		if rec.Checksum != "" {
			for _, existing := range s.files {
				if existing.Checksum == rec.Checksum {
					duplicate = true
					break
				}
			}
		}

		stored := rec
		s.files = append(s.files, &stored)
		s.byID[stored.ID] = &stored
		if duplicate {
			s.notes.push(fmt.Sprintf("%s was already selected in this session", rec.Name), now)
		}
		out = stored
		return true
	})
	return out, duplicate
}

// File returns a copy of the record with the given id.
func (s *Store) File(id string) (models.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return models.FileRecord{}, eris.Wrapf(ErrFileNotFound, "file %s", id)
	}
	return *rec, nil
}

// Files returns copies of all records in selection order.
func (s *Store) Files() []models.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filesLocked()
}

func (s *Store) filesLocked() []models.FileRecord {
	out := make([]models.FileRecord, 0, len(s.files))
	for _, rec := range s.files {
		out = append(out, *rec)
	}
	return out
}

// MarkSubmitted moves an "uploaded" record to "submitted". Records in any
// other status cannot be submitted again.
func (s *Store) MarkSubmitted(id string) (models.FileRecord, error) {
	var (
		out models.FileRecord
		err error
	)
	s.mutate(func() bool {
		rec, ok := s.byID[id]
		if !ok {
			err = eris.Wrapf(ErrFileNotFound, "file %s", id)
			return false
		}
		if rec.Status != models.FileStatusUploaded {
			err = eris.Wrapf(ErrNotSubmittable, "file %s is %s", id, rec.Status)
			return false
		}
		rec.Status = models.FileStatusSubmitted
		rec.UpdatedAt = s.now()
		out = *rec
		return true
	})
	return out, err
}

// ResolveUpload records the job descriptor returned for a submitted file. The
// record becomes "queued" with the server message, then any status events
// that arrived for the job before this call are replayed in arrival order.
func (s *Store) ResolveUpload(id string, resp models.UploadResponse) (models.FileRecord, error) {
	var (
		out models.FileRecord
		err error
	)
	s.mutate(func() bool {
		rec, ok := s.byID[id]
		if !ok {
			err = eris.Wrapf(ErrFileNotFound, "file %s", id)
			return false
		}
		if rec.JobID != "" && rec.JobID != resp.JobID {
			err = eris.Wrapf(ErrJobAlreadyAssigned, "file %s has job %s", id, rec.JobID)
			return false
		}

		now := s.now()
		rec.JobID = resp.JobID
		rec.ClientID = resp.ClientID
		rec.Status = models.FileStatusQueued
		rec.Progress = resp.Message
		rec.UpdatedAt = now
		if resp.JobID != "" {
			s.byJob[resp.JobID] = rec

			for _, ev := range s.pending.take(resp.JobID, now) {
				rec.Status = ev.Status
				rec.Progress = ev.Message
			}
		}
		out = *rec
		return true
	})
	return out, err
}

// FailUpload marks a submitted file as failed with the given message.
func (s *Store) FailUpload(id string, message string) (models.FileRecord, error) {
	var (
		out models.FileRecord
		err error
	)
	s.mutate(func() bool {
		rec, ok := s.byID[id]
		if !ok {
			err = eris.Wrapf(ErrFileNotFound, "file %s", id)
			return false
		}
		rec.Status = models.FileStatusError
		rec.Progress = message
		rec.UpdatedAt = s.now()
		out = *rec
		return true
	})
	return out, err
}

// ApplyEvent folds one push-channel event into the state.
func (s *Store) ApplyEvent(ev models.StatusEvent) EventOutcome {
	var outcome EventOutcome
	s.mutate(func() bool {
		now := s.now()

		if rec, ok := s.byJob[ev.JobID]; ok && ev.JobID != "" {
			rec.Status = ev.Status
			rec.Progress = ev.Message
			rec.UpdatedAt = now
			outcome.Matched = true
		} else if ev.JobID != "" {
			outcome.Parked = s.pending.park(ev, now)
		}

		outcome.Notified = s.notes.push(ev.Message, now)

		if ev.Status == models.FileStatusCompleted && ev.Data != nil {
			result := models.ExtractionResult{
				CompanyProfile: ev.Data.Extracted,
				ID:             newResultID(now),
				FileName:       ev.Data.File,
				ExtractedAt:    now,
				Status:         models.ResultStatusExtracted,
			}
			derive.Apply(&result)
			s.results = append(s.results, result)
			s.view = models.ViewResults
			outcome.Result = &result
		}
		return true
	})
	return outcome
}

// Notify appends a message to the notification queue.
func (s *Store) Notify(message string) {
	s.mutate(func() bool {
		return s.notes.push(message, s.now())
	})
}

// DismissNotification removes one notification.
func (s *Store) DismissNotification(id string) error {
	var err error
	s.mutate(func() bool {
		if !s.notes.remove(id) {
			err = eris.Wrapf(ErrNotificationNotFound, "notification %s", id)
			return false
		}
		return true
	})
	return err
}

// Notifications returns the current notifications, oldest first.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes.list()
}

// SetView switches the active tab.
func (s *Store) SetView(v models.View) error {
	if !v.Valid() {
		return eris.Wrapf(ErrInvalidView, "view %q", v)
	}
	s.mutate(func() bool {
		if s.view == v {
			return false
		}
		s.view = v
		return true
	})
	return nil
}

// View returns the active tab.
func (s *Store) View() models.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// SetConnection records the push-channel connection state.
func (s *Store) SetConnection(state models.ConnectionState) {
	s.mutate(func() bool {
		if s.connection == state {
			return false
		}
		s.connection = state
		return true
	})
}

// Connection returns the push-channel connection state.
func (s *Store) Connection() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connection
}

// PendingJobs returns how many unknown job ids currently have parked events.
func (s *Store) PendingJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.len()
}

// Snapshot returns a copy of the whole session state.
func (s *Store) Snapshot() models.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.SessionSnapshot{
		ClientID:      s.clientID,
		Connection:    s.connection,
		View:          s.view,
		Files:         s.filesLocked(),
		Results:       s.resultsLocked(),
		Selected:      s.selectedIDsLocked(),
		Notifications: s.notes.list(),
		Version:       s.version,
	}
}

// newResultID combines the extraction time with a random component.
func newResultID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.New().String()[:8])
}
