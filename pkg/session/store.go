package session

import (
	"sync"
	"time"

	"github.com/gidsopenstandaarden/welldata-fhir/pkg/logger"
)

// Store holds sessions keyed by session key and reclaims expired ones on a
// fixed interval.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once

	// onCreate and onSweep are optional telemetry hooks.
	onCreate func()
	onSweep  func(removed int)
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithCreateHook registers a callback invoked whenever a session is created.
func WithCreateHook(fn func()) StoreOption {
	return func(s *Store) { s.onCreate = fn }
}

// WithSweepHook registers a callback invoked after each sweep with the number
// of sessions removed.
func WithSweepHook(fn func(removed int)) StoreOption {
	return func(s *Store) { s.onSweep = fn }
}

// NewStore creates a session store and starts the background sweeper. A
// non-positive sweepInterval disables the sweeper; Sweep can still be called
// directly.
func NewStore(sweepInterval time.Duration, opts ...StoreOption) *Store {
	s := &Store{
		sessions:      make(map[string]*Session),
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepInterval > 0 {
		go s.sweepRoutine()
	}
	return s
}

func (s *Store) sweepRoutine() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// GetOrCreate returns the session for the key, creating it atomically when
// absent. Concurrent callers with the same key receive the same instance.
func (s *Store) GetOrCreate(key string) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return sess
	}
	sess = newSession(key)
	s.sessions[key] = sess
	logger.Infof("Creating new session: %s", key)
	if s.onCreate != nil {
		s.onCreate()
	}
	return sess
}

// Get returns the session for the key, or nil. It never creates.
func (s *Store) Get(key string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[key]
}

// Remove deletes the session for the key. Idempotent.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	_, existed := s.sessions[key]
	delete(s.sessions, key)
	s.mu.Unlock()
	if existed {
		logger.Infof("Removed session: %s", key)
	}
}

// ActiveKeys returns a snapshot of the current session keys.
func (s *Store) ActiveKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.sessions))
	for key := range s.sessions {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions whose expiry lies in the past. It operates on a
// snapshot; in-flight requests holding a swept session complete normally
// against the detached instance.
func (s *Store) Sweep() {
	now := time.Now()

	s.mu.RLock()
	expired := make([]string, 0)
	for key, sess := range s.sessions {
		if sess.IsExpired(now) {
			expired = append(expired, key)
		}
	}
	s.mu.RUnlock()

	for _, key := range expired {
		s.Remove(key)
		logger.Infof("Cleaned up expired session: %s", key)
	}
	if len(expired) > 0 {
		logger.Infof("Cleaned up %d expired sessions", len(expired))
	}
	if s.onSweep != nil {
		s.onSweep(len(expired))
	}
}

// Stop stops the background sweeper. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
