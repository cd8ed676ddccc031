package app

import (
	"sync"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry tracks live connections by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnectionID]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ConnectionID]*Session),
	}
}

func (r *Registry) Bind(sess *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess
	log.Info().Str("module", "app.registry").Str("sid", string(sess.ID)).Msg("bound session")
}

func (r *Registry) Get(sid domain.ConnectionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	return s, ok
}

func (r *Registry) Unbind(sid domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of every live session.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
