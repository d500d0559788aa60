package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	browsercrypto "github.com/brennhill/browserctl-gateway/internal/crypto"
	"github.com/brennhill/browserctl-gateway/internal/driver"
)

// ErrTooManySessions is returned by Create when the registry is at capacity
// (spec §4.4: "reject with TOO_MANY_SESSIONS").
var ErrTooManySessions = errors.New("TOO_MANY_SESSIONS")

// ErrSessionNotFound is returned by any lookup for an unknown session id.
var ErrSessionNotFound = errors.New("SESSION_NOT_FOUND")

// ErrInvalidState is returned when an operation requires a state the
// session is not currently in (e.g. Start on a non-CREATED session).
var ErrInvalidState = errors.New("INVALID_STATE")

// endedRetention is how long an ENDED session stays queryable in the
// registry (e.g. for a client's final GET after the Gateway reports
// closure) before End evicts it for good (spec §4.4: "evict from
// registry after a grace period").
const endedRetention = 30 * time.Second

// Config bundles the Manager's tunables, sourced from internal/config.
type Config struct {
	MaxSessions        int
	IdleTimeout        time.Duration
	MaxStepsPerSession int
	Viewport           driver.Viewport
	ScreencastQuality  int
	ScreencastMaxFPS   int
	SessionTokenBytes  int
	TempDir            string
}

// Manager owns the concurrent session registry (spec §4.4). Grounded on the
// teacher's cmd/dev-console/client_registry.go mutex-guarded map, generalized
// from LRU client slots to explicit lifecycle transitions and idle eviction
// by last-activity deadline rather than access order.
type Manager struct {
	log zerolog.Logger
	cfg Config

	browser playwright.Browser

	mu       sync.Mutex
	sessions map[string]*Session

	stopSweep chan struct{}

	// onUnhealthy is invoked (without the registry lock held) whenever a
	// session's health flips to UNHEALTHY.
	onUnhealthy func(sessionID string)
	// onStepEvent is invoked for every step create/update/delete so the
	// Gateway can fan the event out to the bound connection.
	onStepEvent func(sessionID string, kind string, step *Step)
	// onCDPError is invoked for every individual Driver CDP error, in
	// addition to (not instead of) the three-strikes UNHEALTHY rule below —
	// the Manager is the sole consumer of a Driver's CDPErrors channel, so
	// the Gateway's cdp:error event pump rides along on this callback rather
	// than racing the Manager for the same channel.
	onCDPError func(sessionID string, op string, message string)
}

// New constructs a Manager bound to an already-launched Playwright browser.
func New(browser playwright.Browser, cfg Config, log zerolog.Logger) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 10
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.MaxStepsPerSession <= 0 {
		cfg.MaxStepsPerSession = 500
	}
	if cfg.SessionTokenBytes <= 0 {
		cfg.SessionTokenBytes = 32
	}
	m := &Manager{
		log:       log.With().Str("component", "session_manager").Logger(),
		cfg:       cfg,
		browser:   browser,
		sessions:  make(map[string]*Session),
		stopSweep: make(chan struct{}),
	}
	go m.idleSweepLoop()
	return m
}

// OnUnhealthy registers the callback fired when a session's health flips to
// UNHEALTHY (spec §4.4: emits session:unhealthy on the Gateway fan-out).
func (m *Manager) OnUnhealthy(fn func(sessionID string)) { m.onUnhealthy = fn }

// OnStepEvent registers the callback fired for step:new/updated/deleted.
func (m *Manager) OnStepEvent(fn func(sessionID string, kind string, step *Step)) {
	m.onStepEvent = fn
}

// OnCDPError registers the callback fired for every individual Driver CDP
// error (spec §4.5: cdp:error is an event-pump class distinct from the
// UNHEALTHY health transition).
func (m *Manager) OnCDPError(fn func(sessionID string, op string, message string)) {
	m.onCDPError = fn
}

// Close stops the idle sweep loop. It does not end live sessions.
func (m *Manager) Close() { close(m.stopSweep) }

// MaxStepsPerSession exposes the configured step cap so callers outside
// the package (the Archive Codec's import validation, spec §4.6 step 4)
// can enforce it without reaching into Manager's private config.
func (m *Manager) MaxStepsPerSession() int { return m.cfg.MaxStepsPerSession }

// Create allocates a new session in CREATED state (spec §4.4).
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, ErrTooManySessions
	}
	m.mu.Unlock()

	id := browsercrypto.NewUUID()
	token, err := browsercrypto.NewToken(m.cfg.SessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := time.Now()
	s := &Session{
		ID:             id,
		Token:          token,
		Status:         StatusCreated,
		Health:         HealthUnknown,
		CreatedAt:      now,
		LastActivityAt: now,
		steps:          NewStepStore(m.cfg.MaxStepsPerSession),
	}
	s.steps.OnDeleted(func(step *Step) {
		if m.onStepEvent != nil {
			m.onStepEvent(id, "step:deleted", step)
		}
	})

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	return s, nil
}

// Get returns the session by id, or ErrSessionNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Start transitions a CREATED session through STARTING to ACTIVE, launching
// its Driver (spec §4.4).
func (m *Manager) Start(ctx context.Context, id string, startURL string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if s.Status != StatusCreated {
		m.mu.Unlock()
		return nil, ErrInvalidState
	}
	s.Status = StatusStarting
	m.mu.Unlock()

	workDir, err := m.makeWorkDir(id)
	if err != nil {
		m.fail(s, fmt.Sprintf("working directory: %v", err))
		return nil, err
	}

	d := driver.New(m.browser, m.log)
	info, err := d.Start(ctx, driver.Config{
		Viewport:          m.cfg.Viewport,
		ScreencastQuality: m.cfg.ScreencastQuality,
		ScreencastMaxFPS:  m.cfg.ScreencastMaxFPS,
	})
	if err != nil {
		_ = os.RemoveAll(workDir)
		m.fail(s, fmt.Sprintf("driver start: %v", err))
		return nil, err
	}

	if startURL != "" {
		if err := d.Navigate(ctx, startURL); err != nil {
			m.log.Warn().Err(err).Str("session", id).Msg("initial navigate failed")
		}
	}

	m.mu.Lock()
	s.Driver = d
	s.WorkDir = workDir
	s.Status = StatusActive
	s.Health = HealthHealthy
	s.CurrentURL = startURL
	if info.InitialURL != "" {
		s.CurrentURL = info.InitialURL
	}
	s.LastActivityAt = time.Now()
	m.mu.Unlock()

	go m.watchDriver(id, d)

	return s, nil
}

// fail transitions a session straight to FAILED, recording err.
func (m *Manager) fail(s *Session, errMsg string) {
	m.mu.Lock()
	s.Status = StatusFailed
	s.ErrorMessage = errMsg
	m.mu.Unlock()
}

// watchDriver relays a Driver's cdp-error channel into the three-strikes
// UNHEALTHY rule (spec §4.4/§7: "three consecutive DRIVER errors ... flip
// health to UNHEALTHY").
func (m *Manager) watchDriver(sessionID string, d *driver.Driver) {
	consecutive := 0
	for err := range d.CDPErrors() {
		if err == nil {
			continue
		}
		if m.onCDPError != nil {
			m.onCDPError(sessionID, err.Op, err.Message)
		}
		consecutive++
		if consecutive >= 3 {
			m.markUnhealthy(sessionID)
			consecutive = 0
		}
	}
}

// markUnhealthy flips a session's health and fires the onUnhealthy callback.
func (m *Manager) markUnhealthy(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	already := s.Health == HealthUnhealthy
	s.Health = HealthUnhealthy
	m.mu.Unlock()

	if !already && m.onUnhealthy != nil {
		m.onUnhealthy(sessionID)
	}
}

// Touch updates a session's last-activity timestamp (called by the Gateway
// Reader on every inbound message, spec §4.5).
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastActivityAt = time.Now()
	}
}

// End idempotently tears a session down: stops screencast, closes the
// Driver, removes the working directory, marks ENDED (spec §4.4).
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	if s.Status == StatusEnded || s.Status == StatusEnding {
		m.mu.Unlock()
		return nil
	}
	s.Status = StatusEnding
	d := s.Driver
	workDir := s.WorkDir
	m.mu.Unlock()

	if d != nil {
		_ = d.Close(ctx)
	}
	if workDir != "" {
		_ = os.RemoveAll(workDir)
	}

	m.mu.Lock()
	s.Status = StatusEnded
	s.Driver = nil
	m.mu.Unlock()

	go m.evictAfterGrace(id)

	return nil
}

// evictAfterGrace removes an ENDED session from the registry once the
// grace period has passed, so long-running processes don't accumulate an
// unbounded number of ended sessions in m.sessions.
func (m *Manager) evictAfterGrace(id string) {
	time.Sleep(endedRetention)

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.Status == StatusEnded {
		delete(m.sessions, id)
	}
}

// idleSweepLoop ends ACTIVE sessions whose last activity predates the idle
// timeout, every 30s (spec §4.4).
func (m *Manager) idleSweepLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	deadline := time.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	var toEnd []string
	for id, s := range m.sessions {
		if s.Status == StatusActive && s.LastActivityAt.Before(deadline) {
			toEnd = append(toEnd, id)
		}
	}
	m.mu.Unlock()

	for _, id := range toEnd {
		if err := m.End(context.Background(), id); err != nil {
			m.log.Warn().Err(err).Str("session", id).Msg("idle eviction failed")
		}
	}
}

func (m *Manager) makeWorkDir(sessionID string) (string, error) {
	root := m.cfg.TempDir
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "browserctl-gateway", sessionID)
	if err := os.MkdirAll(filepath.Join(dir, "screenshots"), 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
