package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// reapInterval is how often the registry sweeps for idle sessions.
const reapInterval = 60 * time.Second

// Registry tracks every live session by id and reaps the ones whose clients
// have gone quiet. Sessions also enforce their own idle timeout; the reaper is
// the backstop for sessions whose driver is wedged on a slow channel.
type Registry struct {
	idleAfter time.Duration
	log       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry. idleAfter <= 0 uses the session
// default idle timeout.
func NewRegistry(idleAfter time.Duration, log *slog.Logger) *Registry {
	if idleAfter <= 0 {
		idleAfter = DefaultIdleTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		idleAfter: idleAfter,
		log:       log,
		sessions:  make(map[string]*Session),
	}
}

// NewID mints a fresh session identifier.
func (r *Registry) NewID() string { return uuid.NewString() }

// Add registers a session under its id.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Remove deregisters the session with the given id. Unknown ids are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns the session with the given id, if registered.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Run sweeps for idle sessions until ctx is cancelled. Reaped sessions are
// asked to shut down; they deregister themselves when their Run returns.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.reap()
		}
	}
}

func (r *Registry) reap() {
	r.mu.RLock()
	var stale []*Session
	for _, s := range r.sessions {
		if s.IdleFor() >= r.idleAfter {
			stale = append(stale, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range stale {
		r.log.Info("reaping idle session",
			"session_id", s.ID(), "idle_for", s.IdleFor().Round(time.Second))
		s.Shutdown()
	}
}

// ShutdownAll asks every registered session to tear down. Used on server
// drain.
func (r *Registry) ShutdownAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.Shutdown()
	}
}
