package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrLockTimeout is returned when acquiring a session lock times out.
	ErrLockTimeout = errors.New("sessions: lock acquisition timeout")
)

// sessionLock serializes writers for one session. The slot channel is
// the lock itself: a buffered send takes it, a receive releases it.
// Waiters block on the send, so a timeout or cancellation simply
// abandons the select without touching any shared state.
type sessionLock struct {
	sessionID string
	slot      chan struct{}

	mu       sync.Mutex
	holder   string
	acquired time.Time
	idleAt   time.Time
}

// LockManager hands out per-session write locks so that only one driver
// run can mutate a session's history at a time. Concurrent sends to the
// same session queue behind the lock instead of interleaving turns.
//
// Safe for concurrent use.
type LockManager struct {
	locks      map[string]*sessionLock
	mu         sync.RWMutex
	defaultTTL time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewLockManager creates a lock manager. defaultTTL bounds Acquire calls
// that pass no timeout; it defaults to 30s.
func NewLockManager(defaultTTL time.Duration) *LockManager {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}

	mgr := &LockManager{
		locks:      make(map[string]*sessionLock),
		defaultTTL: defaultTTL,
		stop:       make(chan struct{}),
	}

	go mgr.cleanupLoop()

	return mgr
}

// Acquire takes the write lock for a session, waiting up to timeout if
// it is held. Returns a release function that must be called when done.
func (m *LockManager) Acquire(ctx context.Context, sessionID, holder string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = m.defaultTTL
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := m.lockFor(sessionID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case lock.slot <- struct{}{}:
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	lock.mu.Lock()
	lock.holder = holder
	lock.acquired = time.Now()
	lock.mu.Unlock()

	return m.releaseFunc(lock), nil
}

// TryAcquire takes the write lock without waiting. Returns false if the
// lock is already held.
func (m *LockManager) TryAcquire(sessionID, holder string) (func(), bool) {
	lock := m.lockFor(sessionID)

	select {
	case lock.slot <- struct{}{}:
	default:
		return nil, false
	}

	lock.mu.Lock()
	lock.holder = holder
	lock.acquired = time.Now()
	lock.mu.Unlock()

	return m.releaseFunc(lock), true
}

// IsLocked reports whether the session is currently locked.
func (m *LockManager) IsLocked(sessionID string) bool {
	m.mu.RLock()
	lock, ok := m.locks[sessionID]
	m.mu.RUnlock()

	if !ok {
		return false
	}
	return len(lock.slot) > 0
}

// Holder returns the current lock holder, if any.
func (m *LockManager) Holder(sessionID string) (holder string, since time.Time, locked bool) {
	m.mu.RLock()
	lock, ok := m.locks[sessionID]
	m.mu.RUnlock()

	if !ok {
		return "", time.Time{}, false
	}

	lock.mu.Lock()
	defer lock.mu.Unlock()
	return lock.holder, lock.acquired, len(lock.slot) > 0
}

// Close stops the background cleanup loop.
func (m *LockManager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *LockManager) lockFor(sessionID string) *sessionLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sessionLock{
			sessionID: sessionID,
			slot:      make(chan struct{}, 1),
			idleAt:    time.Now(),
		}
		m.locks[sessionID] = lock
	}
	return lock
}

// releaseFunc builds the release closure for one acquisition. The
// sync.Once makes a double release a no-op instead of freeing a lock
// some other holder has since taken.
func (m *LockManager) releaseFunc(lock *sessionLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			lock.mu.Lock()
			lock.holder = ""
			lock.idleAt = time.Now()
			lock.mu.Unlock()
			<-lock.slot
		})
	}
}

// cleanupLoop periodically drops stale unlocked entries.
func (m *LockManager) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *LockManager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)

	for id, lock := range m.locks {
		lock.mu.Lock()
		stale := len(lock.slot) == 0 && lock.idleAt.Before(cutoff)
		lock.mu.Unlock()
		if stale {
			delete(m.locks, id)
		}
	}
}
