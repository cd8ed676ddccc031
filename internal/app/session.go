package app

import (
	"context"
	"sync"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

// SessionSnapshot is a consistent copy of a session's mutable fields.
type SessionSnapshot struct {
	State       domain.State
	Role        domain.Role
	Room        domain.RoomID
	TransportID string
}

// Session is one live signaling connection: its role, its room and the
// transport it owns. All fields behind mu change only through the methods
// below, each of which is one state machine transition.
type Session struct {
	ID     domain.ConnectionID
	Token  string
	ctx    context.Context
	signal core.SignalConnection

	mu        sync.Mutex
	state     domain.State
	role      domain.Role
	room      domain.RoomID
	transport core.Transport
	cancel    context.CancelFunc
	epoch     uint64
}

func NewSession(ctx context.Context, id domain.ConnectionID, token string, sig core.SignalConnection) *Session {
	return &Session{
		ID:     id,
		Token:  token,
		ctx:    ctx,
		signal: sig,
		state:  domain.StateUnjoined,
		role:   domain.RoleUnassigned,
	}
}

func (s *Session) Signal() core.SignalConnection { return s.signal }

// Context ends when the connection goes away.
func (s *Session) Context() context.Context { return s.ctx }

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Role() domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) Transport() core.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// Assign moves Unjoined to RoleAssigned.
func (s *Session) Assign(role domain.Role, room domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateUnjoined {
		return false
	}
	s.state = domain.StateRoleAssigned
	s.role = role
	s.room = room
	log.Info().Str("module", "app.session").Str("sid", string(s.ID)).Str("role", string(role)).Str("room", string(room)).Msg("role assigned")
	return true
}

// MoveRoom switches a waiting viewer from one room to another.
func (s *Session) MoveRoom(from, to domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateRoleAssigned || s.role != domain.RoleViewer || s.room != from {
		return false
	}
	s.room = to
	return true
}

// BeginNegotiation moves RoleAssigned to Negotiating. The returned context is
// cancelled when the negotiation is abandoned.
func (s *Session) BeginNegotiation() (context.Context, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateRoleAssigned {
		return nil, 0, false
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.epoch++
	s.state = domain.StateNegotiating
	s.cancel = cancel
	return ctx, s.epoch, true
}

// Attach records the transport created for negotiation epoch.
func (s *Session) Attach(epoch uint64, t core.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateNegotiating || s.epoch != epoch {
		return domain.ErrStaleNegotiation
	}
	s.transport = t
	return nil
}

// Activate moves Negotiating to Active once the secure channel is up.
func (s *Session) Activate(epoch uint64) (SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateNegotiating || s.epoch != epoch {
		return SessionSnapshot{}, false
	}
	s.state = domain.StateActive
	s.cancel = nil
	return s.snapshotLocked(), true
}

// FailNegotiation returns a failed negotiation to RoleAssigned. The transport
// is handed back so the caller can drop references; the sequencer closed it.
func (s *Session) FailNegotiation(epoch uint64) (SessionSnapshot, core.Transport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.StateNegotiating || s.epoch != epoch {
		return SessionSnapshot{}, nil, false
	}
	t := s.transport
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.transport = nil
	s.state = domain.StateRoleAssigned
	return s.snapshotLocked(), t, true
}

// Reset abandons any negotiation, releases the transport and clears role and
// room. It returns the fields as they were. Disconnected is terminal.
func (s *Session) Reset(next domain.State) SessionSnapshot {
	s.mu.Lock()
	prev := s.snapshotLocked()
	if s.state == domain.StateDisconnected {
		s.mu.Unlock()
		return SessionSnapshot{State: domain.StateDisconnected, Role: domain.RoleUnassigned}
	}
	t := s.releaseLocked()
	s.state = next
	s.mu.Unlock()

	closeTransport(s.ID, t)
	return prev
}

// ResetIfInRoom resets the session only while it still belongs to room.
func (s *Session) ResetIfInRoom(room domain.RoomID, next domain.State) bool {
	s.mu.Lock()
	if s.room != room || s.state == domain.StateDisconnected || s.state == domain.StateUnjoined {
		s.mu.Unlock()
		return false
	}
	t := s.releaseLocked()
	s.state = next
	s.mu.Unlock()

	closeTransport(s.ID, t)
	return true
}

func (s *Session) releaseLocked() core.Transport {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	t := s.transport
	s.transport = nil
	s.role = domain.RoleUnassigned
	s.room = ""
	s.epoch++
	return t
}

func (s *Session) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{State: s.state, Role: s.role, Room: s.room}
	if s.transport != nil {
		snap.TransportID = s.transport.ID()
	}
	return snap
}

func closeTransport(sid domain.ConnectionID, t core.Transport) {
	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		log.Error().Err(err).Str("module", "app.session").Str("sid", string(sid)).Str("transport", t.ID()).Msg("transport close")
		return
	}
	log.Info().Str("module", "app.session").Str("sid", string(sid)).Str("transport", t.ID()).Msg("transport released")
}
