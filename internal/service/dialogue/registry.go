package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry tracks live sessions by ID. Expired and terminated sessions are
// removed by Sweep; expiry terminates the session first.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	idleTTL     time.Duration
	maxLifetime time.Duration
	now         func() time.Time
}

// NewRegistry creates a registry. Zero durations disable that limit.
func NewRegistry(idleTTL, maxLifetime time.Duration) *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		idleTTL:     idleTTL,
		maxLifetime: maxLifetime,
		now:         time.Now,
	}
}

// Add registers a session.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[s.ID]; ok && !existing.State().IsTerminal() {
		return ErrDuplicateSession
	}
	r.sessions[s.ID] = s
	return nil
}

// Get returns a registered session, including terminated ones not yet swept.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops a session without terminating it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep terminates expired sessions and drops terminated ones. It returns
// how many sessions were removed.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	var victims []*Session
	for id, s := range r.sessions {
		if s.State().IsTerminal() || r.expired(s, now) {
			victims = append(victims, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range victims {
		if s.terminate(ReasonExpired, ErrSessionExpired) {
			log.Info().
				Str("sessionId", s.ID).
				Str("restaurantId", s.RestaurantID).
				Msg("Session expired")
		}
	}
	return len(victims)
}

func (r *Registry) expired(s *Session, now time.Time) bool {
	if r.maxLifetime > 0 && now.Sub(s.CreatedAt) > r.maxLifetime {
		return true
	}
	if r.idleTTL > 0 && now.Sub(s.LastActivity()) > r.idleTTL {
		return true
	}
	return false
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Int("active", r.Len()).Msg("Session sweep")
			}
		}
	}
}

// CloseAll terminates every session, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	victims := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		victims = append(victims, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range victims {
		s.terminate(ReasonShutdown, nil)
	}
}
