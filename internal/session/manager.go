// Package session tracks builder sessions. A session is created when a
// client opens the report designer, holds one Builder, and is dropped
// either explicitly or after sitting idle past the manager's TTL.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/civiclab/reportd/internal/builder"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// DefaultTTL is how long an idle session survives before the sweeper
// reclaims it.
const DefaultTTL = 30 * time.Minute

// Session pairs a Builder with preview bookkeeping. Preview requests
// take a sequence number from NextSequence before executing, and check
// IsLatest when the result lands, so a stale preview is discarded
// instead of overwriting a fresher one.
type Session struct {
	ID      string
	Builder *builder.Builder

	seq      atomic.Uint64
	mu       sync.Mutex
	lastSeen time.Time
}

// NextSequence issues the next preview sequence number for this
// session.
func (s *Session) NextSequence() uint64 {
	return s.seq.Add(1)
}

// IsLatest reports whether seq is still the most recently issued
// sequence number.
func (s *Session) IsLatest(seq uint64) bool {
	return s.seq.Load() == seq
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Manager owns the live session set.
type Manager struct {
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	stop chan struct{}
	done chan struct{}
}

// NewManager creates a Manager and starts its idle sweeper. A
// non-positive ttl falls back to DefaultTTL. Call Close to stop the
// sweeper.
func NewManager(ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		ttl:      ttl,
		logger:   logger,
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Create registers a new session holding b and returns it. Session ids
// are UUIDv7, so they sort by creation time.
func (m *Manager) Create(b *builder.Builder) *Session {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	s := &Session{ID: id.String(), Builder: b, lastSeen: time.Now()}

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.logger.Debug("session created", "session_id", s.ID, "active", n)
	return s
}

// Get returns the session for id and refreshes its idle timer.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(time.Now())
	return s, nil
}

// Delete drops the session for id. Deleting an unknown id is a no-op.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the idle sweeper and drops all sessions.
func (m *Manager) Close() {
	close(m.stop)
	<-m.done
	m.mu.Lock()
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
}

func (m *Manager) sweep() {
	defer close(m.done)
	interval := m.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.reap(now)
		}
	}
}

func (m *Manager) reap(now time.Time) {
	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.idleSince(now) > m.ttl {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		m.logger.Debug("expired idle sessions", "count", len(expired))
	}
}
