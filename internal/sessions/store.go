// Package sessions holds conversation state between websocket turns: an
// in-memory session store with idle expiry and a bounded population, and
// a per-session write lock that keeps driver runs from interleaving.
package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/cueso/internal/observability"
	"github.com/haasonsaas/cueso/pkg/models"
)

// ErrSessionNotFound is returned when a session ID has no live session.
var ErrSessionNotFound = errors.New("sessions: session not found")

// StoreConfig configures the session store.
type StoreConfig struct {
	// TTL is how long an idle session survives before the sweeper
	// removes it. Default: 1 hour.
	TTL time.Duration

	// MaxSessions caps the live session population. Creating a session
	// beyond the cap evicts the least recently active unlocked one.
	// Default: 100.
	MaxSessions int

	// SweepInterval is how often the expiry sweeper runs. Default: 1 minute.
	SweepInterval time.Duration

	// LockTimeout bounds WithLock acquisition. Default: 30s.
	LockTimeout time.Duration

	// Defaults seeds the config of newly created sessions. Zero fields
	// fall back to the model defaults.
	Defaults models.SessionConfig
}

func sanitizeStoreConfig(config StoreConfig) StoreConfig {
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}
	if config.MaxSessions <= 0 {
		config.MaxSessions = 100
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	if config.LockTimeout <= 0 {
		config.LockTimeout = 30 * time.Second
	}

	defaults := models.DefaultSessionConfig()
	if config.Defaults.SystemPrompt == "" {
		config.Defaults.SystemPrompt = defaults.SystemPrompt
	}
	if config.Defaults.Model == "" {
		config.Defaults.Model = defaults.Model
	}
	if config.Defaults.MaxIterations <= 0 {
		config.Defaults.MaxIterations = defaults.MaxIterations
	}
	if config.Defaults.MaxTokens <= 0 {
		config.Defaults.MaxTokens = defaults.MaxTokens
	}
	if config.Defaults.Temperature <= 0 {
		config.Defaults.Temperature = defaults.Temperature
	}
	return config
}

// SessionInfo is a listing summary for one session.
type SessionInfo struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
	MessageCount   int       `json:"message_count"`
	IterationCount int       `json:"iteration_count"`
}

// Store is an in-memory session store with idle expiry and an LRU-style
// population cap. Sessions returned by Get are live; callers that mutate
// them must do so through WithLock.
//
// Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	config   StoreConfig
	locks    *LockManager

	logger  *observability.Logger
	metrics *observability.Metrics
	nowFunc func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewStore creates a session store and starts its expiry sweeper.
func NewStore(config StoreConfig) *Store {
	config = sanitizeStoreConfig(config)
	s := &Store{
		sessions: make(map[string]*models.Session),
		config:   config,
		locks:    NewLockManager(config.LockTimeout),
		logger:   observability.NewLogger(observability.LogConfig{}),
		nowFunc:  time.Now,
		stop:     make(chan struct{}),
	}

	go s.sweepLoop()

	return s
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(logger *observability.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetMetrics wires the active-session gauge. Optional.
func (s *Store) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
	s.updateGauge()
}

// Create makes a new session with the store's default config.
func (s *Store) Create(ctx context.Context) (*models.Session, error) {
	return s.create(uuid.NewString())
}

// Get returns the live session for an ID.
func (s *Store) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// GetOrCreate returns the session for an ID, creating it if absent.
// An empty ID always creates a fresh session. The second return value
// reports whether a session was created.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*models.Session, bool, error) {
	if id == "" {
		session, err := s.create(uuid.NewString())
		return session, err == nil, err
	}

	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return session, false, nil
	}

	session, err := s.create(id)
	return session, err == nil, err
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.updateGaugeLocked()
	return nil
}

// Reset clears a session's history (keeping system messages) and zeroes
// its iteration count, under the session's write lock.
func (s *Store) Reset(ctx context.Context, id string) error {
	return s.WithLock(ctx, id, "reset", func(session *models.Session) error {
		session.Reset()
		return nil
	})
}

// List returns summaries for all live sessions.
func (s *Store) List(ctx context.Context) []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionInfo, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, SessionInfo{
			ID:             session.ID,
			CreatedAt:      session.CreatedAt,
			LastActivity:   session.LastActivity,
			MessageCount:   len(session.Messages),
			IterationCount: session.IterationCount,
		})
	}
	return out
}

// Len returns the live session count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// WithLock runs fn with the session's write lock held, so one driver run
// at a time mutates the session. The holder string identifies the writer
// in lock diagnostics.
func (s *Store) WithLock(ctx context.Context, id, holder string, fn func(*models.Session) error) error {
	release, err := s.locks.Acquire(ctx, id, holder, s.config.LockTimeout)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	if err := fn(session); err != nil {
		return err
	}
	session.LastActivity = s.nowFunc()
	return nil
}

// Close stops the expiry sweeper and the lock manager's cleanup loop.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.locks.Close()
	})
}

func (s *Store) create(id string) (*models.Session, error) {
	now := s.nowFunc()
	session := &models.Session{
		ID:           id,
		Config:       s.config.Defaults,
		CreatedAt:    now,
		LastActivity: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.config.MaxSessions {
		s.evictOldestLocked()
	}

	s.sessions[session.ID] = session
	s.updateGaugeLocked()
	return session, nil
}

// evictOldestLocked drops the least recently active session that is not
// mid-run. Caller holds s.mu.
func (s *Store) evictOldestLocked() {
	var oldestID string
	var oldest time.Time

	for id, session := range s.sessions {
		if s.locks.IsLocked(id) {
			continue
		}
		if oldestID == "" || session.LastActivity.Before(oldest) {
			oldestID = id
			oldest = session.LastActivity
		}
	}

	if oldestID != "" {
		delete(s.sessions, oldestID)
		s.logger.Info(context.Background(), "evicted session at capacity", "session_id", oldestID, "idle_since", oldest)
	}
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes sessions idle past the TTL. Locked sessions are skipped;
// the next sweep after their run finishes catches them.
func (s *Store) sweep() {
	cutoff := s.nowFunc().Add(-s.config.TTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.LastActivity.After(cutoff) {
			continue
		}
		if s.locks.IsLocked(id) {
			continue
		}
		delete(s.sessions, id)
		removed++
	}

	if removed > 0 {
		s.logger.Info(context.Background(), "swept expired sessions", "removed", removed, "remaining", len(s.sessions))
		s.updateGaugeLocked()
	}
}

func (s *Store) updateGauge() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.updateGaugeLocked()
}

func (s *Store) updateGaugeLocked() {
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
}
