package session

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"vcall/internal/app/signaling"
	"vcall/internal/configs"
	"vcall/internal/pkg/errs"
	"vcall/internal/pkg/logx"
)

const cleanupBuffer = 16

// ErrManagerClosed is returned by Attach once Shutdown has started.
var ErrManagerClosed = errors.New("session: manager shut down")

// Manager tracks the live session of every connected user. A username has at most one
// session per server; a new connection replaces the old one.
type Manager struct {
	// sessions stores the live Controllers, keyed by username.
	sessions map[string]*Controller

	presence signaling.Presence
	options  signaling.Options

	// mu protects concurrent access to the sessions map.
	mu sync.RWMutex

	// attachMu serialises session replacement so the old record is removed before the
	// new session starts.
	attachMu sync.Mutex

	// the channel used by ended sessions to ask the Manager to forget them.
	cleanup chan *Controller
	stop    chan struct{}

	// wg is used to wait for the runCleanupLoop goroutine to finish during shutdown.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewManager constructs a Manager whose sessions signal through p.
func NewManager(cfg *configs.AppConfig, p signaling.Presence) *Manager {
	m := &Manager{
		sessions: make(map[string]*Controller),
		presence: p,
		options:  signaling.Options{CallTimeout: cfg.CallTimeout},
		cleanup:  make(chan *Controller, cleanupBuffer),
		stop:     make(chan struct{}),
		logger:   logx.Component("Manager"),
	}

	m.wg.Add(1)
	go m.runCleanupLoop()

	return m
}

// runCleanupLoop removes sessions that ended on their own (page closed, connection lost).
func (m *Manager) runCleanupLoop() {
	defer m.wg.Done()

	m.logger.Info().Msg("Cleanup loop started.")

	for {
		select {
		case c := <-m.cleanup:
			m.forget(c)
		case <-m.stop:
			m.logger.Info().Msg("Cleanup loop stopped.")
			return
		}
	}
}

func (m *Manager) forget(c *Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.sessions[c.Username()]; ok && current == c {
		delete(m.sessions, c.Username())
		m.logger.Info().Str("username", c.Username()).Int("total_sessions", len(m.sessions)).Msg("Session removed.")
	}
}

func (m *Manager) notifyEnded(c *Controller) {
	select {
	case m.cleanup <- c:
	case <-m.stop:
	}
}

// Attach opens a session for username on surf. An existing session of the same user is
// ended and its page kicked first. After Shutdown the surface is closed and
// ErrManagerClosed returned.
func (m *Manager) Attach(username, sessionID string, surf Surface) (*Controller, error) {
	m.attachMu.Lock()
	defer m.attachMu.Unlock()

	select {
	case <-m.stop:
		m.logger.Warn().Str("username", username).Msg("Surface connected during shutdown, closing it.")
		surf.Close()
		return nil, ErrManagerClosed
	default:
	}

	m.mu.Lock()
	old, exists := m.sessions[username]
	delete(m.sessions, username)
	m.mu.Unlock()

	if exists {
		m.logger.Warn().
			Str("username", username).
			Str("old_session_id", old.SessionID()).
			Str("new_session_id", sessionID).
			Msg("User already connected. Closing old session for replacement.")

		old.Kick(errs.NewError(errs.ErrSessionKicked).Message)
	}

	c := NewController(username, sessionID, surf, m.presence, m.options, m.notifyEnded)

	m.mu.Lock()
	m.sessions[username] = c
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info().Str("username", username).Str("session_id", sessionID).Int("total_sessions", total).Msg("Session attached.")
	return c, nil
}

// Get retrieves the live session of username.
func (m *Manager) Get(username string) *Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sessions[username]
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// Shutdown ends every session, closes their pages and stops the cleanup loop.
// Later calls do nothing.
func (m *Manager) Shutdown() {
	m.attachMu.Lock()
	select {
	case <-m.stop:
		m.attachMu.Unlock()
		return
	default:
	}

	m.logger.Info().Msg("Shutting down Manager...")

	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	close(m.stop)
	m.attachMu.Unlock()

	for _, c := range all {
		c.Close()
	}

	m.wg.Wait()

	m.logger.Info().Int("closed_sessions", len(all)).Msg("Manager shutdown complete.")
}
