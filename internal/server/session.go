package server

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/surya-garg/UAVLogViewer/internal/agent"
	"github.com/surya-garg/UAVLogViewer/internal/flight"
)

// Session is one upload-and-chat conversation. Log and Agent are set once
// when a file is attached; the chat mutex serialises model calls so two
// concurrent chats on one session cannot interleave history.
type Session struct {
	ID        string
	CreatedAt time.Time
	LastSeen  time.Time
	Filename  string
	FilePath  string
	Log       *flight.Log
	Agent     *agent.Agent

	chatMu sync.Mutex
}

// HasData reports whether a flight log has been attached.
func (s *Session) HasData() bool { return s.Log != nil }

// Chat forwards one message to the session's agent.
func (s *Session) Chat(ctx context.Context, message string) (string, error) {
	s.chatMu.Lock()
	defer s.chatMu.Unlock()
	return s.Agent.Chat(ctx, message)
}

// Manager owns the live session table. Sessions expire after ttl of
// inactivity, checked on every access and swept by the Janitor; expiring a
// session removes its spooled upload.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates an empty session table. ttl <= 0 disables expiry.
func NewManager(ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "sessions")),
		now:      time.Now,
	}
}

// GetOrCreate returns the live session with the given id, or creates one.
// An empty id always creates a fresh session with a generated id.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if s, ok := m.sessions[id]; ok {
			if !m.expiredLocked(s) {
				s.LastSeen = m.now()
				return s
			}
			m.removeLocked(s)
		}
	} else {
		id = uuid.NewString()
	}

	s := &Session{ID: id, CreatedAt: m.now(), LastSeen: m.now()}
	m.sessions[id] = s
	return s
}

// Get returns the live session with the given id, touching its activity
// clock. Expired sessions are removed and reported as absent.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.expiredLocked(s) {
		m.removeLocked(s)
		return nil, false
	}
	s.LastSeen = m.now()
	return s, true
}

// Attach binds an ingested log, its agent and the spooled file to a session.
// A session re-used for a second upload drops its previous spool.
func (m *Manager) Attach(s *Session, log *flight.Log, ag *agent.Agent, filename, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.FilePath != "" && s.FilePath != path {
		m.removeSpool(s.FilePath)
	}
	s.Log = log
	s.Agent = ag
	s.Filename = filename
	s.FilePath = path
	s.LastSeen = m.now()
}

// Delete removes a session and its spooled upload.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	m.removeLocked(s)
	return true
}

// Count returns the number of sessions currently held.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// PurgeExpired removes every expired session and returns how many went.
func (m *Manager) PurgeExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.sessions {
		if m.expiredLocked(s) {
			m.removeLocked(s)
			n++
		}
	}
	return n
}

// Janitor sweeps expired sessions every interval until ctx is cancelled.
func (m *Manager) Janitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.PurgeExpired(); n > 0 {
				m.logger.Info("purged expired sessions", slog.Int("count", n))
			}
		}
	}
}

func (m *Manager) expiredLocked(s *Session) bool {
	return m.ttl > 0 && m.now().Sub(s.LastSeen) > m.ttl
}

func (m *Manager) removeLocked(s *Session) {
	delete(m.sessions, s.ID)
	if s.FilePath != "" {
		m.removeSpool(s.FilePath)
	}
	m.logger.Debug("session removed", slog.String("session", s.ID))
}

func (m *Manager) removeSpool(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("removing spooled upload",
			slog.String("path", path),
			slog.Any("error", err))
	}
}
