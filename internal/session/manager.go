// Package session manages client sessions. Each session owns a random client
// token, the push-channel listener scoped to that token, the state store and
// a results catalog.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/profile-desk/backend/internal/catalog"
	"github.com/profile-desk/backend/internal/listener"
	"github.com/profile-desk/backend/internal/models"
	"github.com/profile-desk/backend/internal/storage"
	"github.com/profile-desk/backend/internal/store"
	"github.com/profile-desk/backend/internal/upload"
)

const (
	// DefaultMaxSessions limits concurrent sessions.
	DefaultMaxSessions = 10

	// DefaultKeepAliveWindow protects recently used sessions from eviction.
	DefaultKeepAliveWindow = 5 * time.Minute
)

var (
	ErrSessionNotFound = eris.New("session not found")
	ErrTooManySessions = eris.New("too many active sessions")
)

// Options configures a Manager.
type Options struct {
	WSBaseURL       string
	Policy          listener.Policy
	Dialer          *websocket.Dialer
	MaxMessageSize  int64
	Store           store.Options
	MaxSessions     int
	KeepAliveWindow time.Duration
}

// Manager handles active client sessions.
type Manager struct {
	sessions  map[string]*Session
	reserved  int // slots held by Create calls still in progress
	mu        sync.RWMutex
	files     storage.Store
	submitter *upload.Manager
	opts      Options
}

// NewManager creates a session manager.
func NewManager(files storage.Store, submitter *upload.Manager, opts Options) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.KeepAliveWindow <= 0 {
		opts.KeepAliveWindow = DefaultKeepAliveWindow
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		files:     files,
		submitter: submitter,
		opts:      opts,
	}
}

// Create starts a new session with a fresh client token and connects its
// push-channel listener in the background.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	if err := m.reserve(); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			m.mu.Lock()
			m.reserved--
			m.mu.Unlock()
		}
	}()

	id := uuid.New().String()
	now := time.Now()
	s := &Session{
		ID:           id,
		CreatedAt:    now,
		files:        m.files,
		submitter:    m.submitter,
		logger:       zap.L().With(zap.String("session", shortID(id))),
		lastAccessed: now,
		subs:         make(map[chan uint64]struct{}),
	}

	storeOpts := m.opts.Store
	storeOpts.OnChange = s.broadcast
	s.Store = store.New(id, storeOpts)

	cat, err := catalog.Open(ctx)
	if err != nil {
		return nil, err
	}
	s.catalog = cat

	l, err := listener.New(listener.Config{
		BaseURL:        m.opts.WSBaseURL,
		ClientID:       id,
		Policy:         m.opts.Policy,
		OnEvent:        s.handleEvent,
		OnState:        s.Store.SetConnection,
		Dialer:         m.opts.Dialer,
		MaxMessageSize: m.opts.MaxMessageSize,
	})
	if err != nil {
		cat.Close()
		return nil, err
	}
	s.listener = l

	m.mu.Lock()
	m.reserved--
	m.sessions[id] = s
	m.mu.Unlock()
	committed = true

	// The listener outlives the request that created the session.
	if err := l.Start(context.Background()); err != nil {
		m.Close(id)
		return nil, err
	}

	s.logger.Info("session created", zap.String("push_url", l.URL()))
	return s, nil
}

// Get returns a session by ID and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, eris.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	s.lastAccessed = time.Now()
	return s, nil
}

// TouchSession updates the LastAccessed timestamp for a session.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.lastAccessed = time.Now()
	return true
}

// Close tears a session down.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return eris.Wrapf(ErrSessionNotFound, "session %s", id)
	}
	s.close()
	return nil
}

// CloseAll tears every session down.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions closes sessions not accessed within maxAge.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if s.lastAccessed.Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		zap.L().Info("cleaned up idle session",
			zap.String("session", shortID(s.ID)),
			zap.Duration("idle", time.Since(s.lastAccessed).Round(time.Second)))
		s.close()
	}
	return len(stale)
}

// reserve claims a session slot, evicting the least recently used sessions
// outside the keep-alive window when the manager is full. The check and the
// claim happen under one lock so concurrent creates cannot overshoot.
func (m *Manager) reserve() error {
	keepAliveCutoff := time.Now().Add(-m.opts.KeepAliveWindow)

	m.mu.Lock()
	var evicted []*Session
	if used := len(m.sessions) + m.reserved; used >= m.opts.MaxSessions {
		var idle []*Session
		for _, s := range m.sessions {
			if s.lastAccessed.Before(keepAliveCutoff) {
				idle = append(idle, s)
			}
		}
		sort.Slice(idle, func(i, j int) bool { return idle[i].lastAccessed.Before(idle[j].lastAccessed) })

		toFree := used - m.opts.MaxSessions + 1
		if toFree > len(idle) {
			m.mu.Unlock()
			return eris.Wrapf(ErrTooManySessions, "limit %d", m.opts.MaxSessions)
		}
		evicted = idle[:toFree]
		for _, s := range evicted {
			delete(m.sessions, s.ID)
		}
	}
	m.reserved++
	m.mu.Unlock()

	for _, s := range evicted {
		zap.L().Info("evicted idle session to make room", zap.String("session", shortID(s.ID)))
		s.close()
	}
	return nil
}

// Snapshot is a convenience for handlers that only need the state.
func (m *Manager) Snapshot(id string) (models.SessionSnapshot, error) {
	s, err := m.Get(id)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return s.Store.Snapshot(), nil
}
