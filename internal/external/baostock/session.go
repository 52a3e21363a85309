package baostock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/wonny/aegis-ingest/pkg/logger"
)

// SessionManager holds the provider login shared by every worker.
// The flag is read lock-free; logins are serialized by mu.
type SessionManager struct {
	loggedIn atomic.Bool
	mu       sync.RWMutex
	id       string
	login    func(ctx context.Context) (string, error)
	logger   *logger.Logger
}

// NewSessionManager creates a manager that calls login when the flag is unset
func NewSessionManager(login func(ctx context.Context) (string, error), log *logger.Logger) *SessionManager {
	return &SessionManager{login: login, logger: log}
}

// Ensure returns a live session id, logging in first if needed
func (m *SessionManager) Ensure(ctx context.Context) (string, error) {
	if m.loggedIn.Load() {
		m.mu.RLock()
		id := m.id
		m.mu.RUnlock()
		return id, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if m.loggedIn.Load() {
		return m.id, nil
	}

	id, err := m.login(ctx)
	if err != nil {
		return "", err
	}
	m.id = id
	m.loggedIn.Store(true)
	m.logger.Info("provider session established")
	return id, nil
}

// Invalidate clears the flag so the next Ensure logs in again
func (m *SessionManager) Invalidate() {
	if m.loggedIn.CompareAndSwap(true, false) {
		m.logger.Warn("provider session invalidated")
	}
}

// Active reports whether the flag is set
func (m *SessionManager) Active() bool {
	return m.loggedIn.Load()
}
