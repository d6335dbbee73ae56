package session

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/profile-desk/backend/internal/catalog"
	"github.com/profile-desk/backend/internal/inspect"
	"github.com/profile-desk/backend/internal/listener"
	"github.com/profile-desk/backend/internal/models"
	"github.com/profile-desk/backend/internal/storage"
	"github.com/profile-desk/backend/internal/store"
	"github.com/profile-desk/backend/internal/upload"
)

// shortID safely truncates an ID for logging.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Session is one client session: its state store, push-channel listener and
// results catalog. The session id is the client token.
type Session struct {
	ID        string
	Store     *store.Store
	CreatedAt time.Time

	files     storage.Store
	submitter *upload.Manager
	catalog   *catalog.Catalog
	listener  *listener.Listener
	logger    *zap.Logger

	lastAccessed time.Time // guarded by Manager.mu

	subsMu sync.Mutex
	subs   map[chan uint64]struct{}

	closeOnce sync.Once
}

// Subscribe returns a channel that receives the store version after every
// change. Slow readers only see the latest version. Call the returned func
// to unsubscribe.
func (s *Session) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)

	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *Session) broadcast(version uint64) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- version:
		default:
			// replace the stale version
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- version:
			default:
			}
		}
	}
}

// handleEvent folds a push-channel event into the store and mirrors a new
// result into the catalog.
func (s *Session) handleEvent(ev models.StatusEvent) {
	outcome := s.Store.ApplyEvent(ev)
	if outcome.Parked {
		s.logger.Debug("parked event for unknown job", zap.String("job_id", ev.JobID))
	} else if !outcome.Matched {
		s.logger.Debug("event without job", zap.String("status", string(ev.Status)))
	}
	if outcome.Result == nil {
		return
	}
	if err := s.catalog.Index(context.Background(), *outcome.Result); err != nil {
		s.logger.Warn("catalog index failed", zap.String("result_id", outcome.Result.ID), zap.Error(err))
	}
}

// AddFile stages a selected file and creates its record. The caller has
// already checked the file against the upload policy.
func (s *Session) AddFile(name, contentType string, r io.Reader) (models.FileRecord, error) {
	staged, err := s.Stage(name, contentType, r)
	if err != nil {
		return models.FileRecord{}, err
	}
	return s.Register(staged), nil
}

// StagedFile is a file saved to storage that has no record yet.
type StagedFile struct {
	Name        string
	ContentType string
	Info        *models.FileInfo
	Pages       int
}

// Stage saves the file and reads its page count. It does not touch the
// store, so callers may stage in parallel and Register in their own order.
func (s *Session) Stage(name, contentType string, r io.Reader) (StagedFile, error) {
	info, err := s.files.Save(name, contentType, r)
	if err != nil {
		return StagedFile{}, err
	}

	pages := 0
	if path, err := s.files.GetFilePath(info.ID); err == nil {
		if n, err := inspect.PageCount(path); err == nil {
			pages = n
		} else {
			s.logger.Debug("page count unavailable", zap.String("file", name), zap.Error(err))
		}
	}
	return StagedFile{Name: name, ContentType: contentType, Info: info, Pages: pages}, nil
}

// Register creates the record for a staged file.
func (s *Session) Register(f StagedFile) models.FileRecord {
	rec, duplicate := s.Store.AddFile(models.FileRecord{
		Name:      f.Name,
		Size:      f.Info.Size,
		Type:      f.ContentType,
		FileID:    f.Info.ID,
		PageCount: f.Pages,
		Checksum:  f.Info.Checksum,
	})
	if duplicate {
		s.logger.Info("duplicate file selected", zap.String("file", f.Name))
	}
	return rec
}

// Submit starts the extraction of one record.
func (s *Session) Submit(recordID string) (upload.Job, error) {
	return s.submitter.Submit(s.Store, recordID)
}

// SubmitAll starts the extraction of every record still awaiting it.
func (s *Session) SubmitAll() []upload.Job {
	return s.submitter.SubmitAll(s.Store, s.Store.Files())
}

// Results lists results, filtered through the catalog when q is set.
func (s *Session) Results(ctx context.Context, q string) ([]models.ExtractionResult, error) {
	if q == "" {
		return s.Store.Results(), nil
	}
	ids, err := s.catalog.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.ExtractionResult, 0, len(ids))
	for _, id := range ids {
		if r, err := s.Store.Result(id); err == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// IndustrySummary returns result counts per derived industry.
func (s *Session) IndustrySummary(ctx context.Context) ([]catalog.IndustryCount, error) {
	return s.catalog.IndustryCounts(ctx)
}

// DeleteSelected removes the selected results from the store and catalog.
func (s *Session) DeleteSelected(ctx context.Context) []string {
	ids := s.Store.DeleteSelected()
	if err := s.catalog.Remove(ctx, ids...); err != nil {
		s.logger.Warn("catalog remove failed", zap.Error(err))
	}
	return ids
}

// ConnectionCount reports how many times the push channel has connected.
func (s *Session) ConnectionCount() int64 {
	return s.listener.Connects()
}

// close stops the listener, drops the catalog and deletes staged files.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.listener.Close()
		s.catalog.Close()

		for _, rec := range s.Store.Files() {
			if err := s.files.Delete(rec.FileID); err != nil {
				s.logger.Debug("staged file already gone", zap.String("file_id", rec.FileID))
			}
		}

		s.subsMu.Lock()
		for ch := range s.subs {
			close(ch)
		}
		s.subs = make(map[chan uint64]struct{})
		s.subsMu.Unlock()

		s.logger.Info("session closed")
	})
}
