package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrMaxSessionsReached is returned when the session limit is reached.
var ErrMaxSessionsReached = errors.New("session: max sessions reached")

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCleanupInterval sets how often expired sessions are removed.
func WithCleanupInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.cleanupInterval = d
		}
	}
}

// WithMaxSessions caps the number of live sessions. Zero means unlimited.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) {
		m.maxSessions = n
	}
}

// WithOnSessionClose registers a callback run after a session is closed.
func WithOnSessionClose(fn func(*Session)) ManagerOption {
	return func(m *Manager) {
		m.onSessionClose = fn
	}
}

// Manager owns all live sessions.
// It handles session creation, lookup, idle expiry and shutdown.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	config *DeploymentConfig

	cleanupInterval time.Duration
	done            chan struct{}
	cleanupDone     chan struct{}
	closed          atomic.Bool

	maxSessions int

	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64
	peakSessions int

	onSessionClose func(*Session)

	logger *slog.Logger
}

// ManagerStats contains session statistics.
type ManagerStats struct {
	Active       int
	TotalCreated uint64
	TotalClosed  uint64
	Peak         int
}

// NewManager creates a Manager and starts its cleanup loop.
func NewManager(config *DeploymentConfig, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if config == nil {
		config = DefaultDeploymentConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		sessions:        make(map[string]*Session),
		config:          config,
		cleanupInterval: 30 * time.Second,
		done:            make(chan struct{}),
		cleanupDone:     make(chan struct{}),
		logger:          logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.With("component", "session_manager")

	go m.cleanupLoop()
	return m
}

// Config returns the deployment configuration shared by all sessions.
func (m *Manager) Config() *DeploymentConfig {
	return m.config
}

// Create creates and registers a new session.
func (m *Manager) Create() (*Session, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, ErrMaxSessionsReached
	}
	s := New(m.config, m.logger)
	m.sessions[s.ID()] = s
	if len(m.sessions) > m.peakSessions {
		m.peakSessions = len(m.sessions)
	}
	active := len(m.sessions)
	m.mu.Unlock()

	m.totalCreated.Add(1)
	m.logger.Info("session created",
		"session_id", s.ID(),
		"active_sessions", active)
	return s, nil
}

// Get returns a live session. Unknown and expired sessions both report
// ErrSessionExpired; an expired session is closed as a side effect.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionExpired
	}
	if s.IsExpired(time.Now()) {
		m.Close(id)
		return nil, ErrSessionExpired
	}
	return s, nil
}

// Close removes and closes the session with the given id.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.Close()
	m.totalClosed.Add(1)
	if m.onSessionClose != nil {
		m.onSessionClose(s)
	}
	m.logger.Info("session closed",
		"session_id", id,
		"active_sessions", m.Count())
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ForEach calls fn for every live session until fn returns false.
func (m *Manager) ForEach(fn func(*Session) bool) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		if !fn(s) {
			return
		}
	}
}

// cleanupLoop periodically removes expired sessions.
func (m *Manager) cleanupLoop() {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.done:
			return
		}
	}
}

// cleanupExpired closes sessions that have exceeded their idle timeout.
func (m *Manager) cleanupExpired() {
	now := time.Now()

	m.mu.RLock()
	var expired []string
	for id, s := range m.sessions {
		if s.IsExpired(now) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.Close(id)
	}
	if len(expired) > 0 {
		m.logger.Info("cleaned up expired sessions",
			"count", len(expired),
			"remaining", m.Count())
	}
}

// Shutdown closes all sessions.
func (m *Manager) Shutdown() {
	m.ShutdownWithContext(context.Background())
}

// ShutdownWithContext stops the cleanup loop and closes all sessions
// concurrently, giving up when ctx is done.
func (m *Manager) ShutdownWithContext(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.done)
	<-m.cleanupDone

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
			m.totalClosed.Add(1)
			if m.onSessionClose != nil {
				m.onSessionClose(s)
			}
		}(s)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		m.logger.Warn("session manager shutdown interrupted", "error", ctx.Err())
		return ctx.Err()
	}

	m.logger.Info("session manager shutdown",
		"closed_sessions", len(sessions))
	return nil
}

// Stats returns aggregated session statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	active := len(m.sessions)
	peak := m.peakSessions
	m.mu.RUnlock()

	return ManagerStats{
		Active:       active,
		TotalCreated: m.totalCreated.Load(),
		TotalClosed:  m.totalClosed.Load(),
		Peak:         peak,
	}
}
