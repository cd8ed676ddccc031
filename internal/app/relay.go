package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/platform/metrics"
	"github.com/rs/zerolog/log"
)

// EncodeEvent frames payload under event. A nil payload yields no data field.
func EncodeEvent(event string, payload any) (core.Frame, error) {
	env := domain.Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Relay delivers events to addressable connections. Every send is
// fire-and-forget; ordering per target follows the connection's queue.
type Relay struct {
	Registry *Registry
	Rooms    *RoomTable
	Policy   Policy
	Metrics  *metrics.Metrics
}

// Send delivers one event to one connection.
func (r *Relay) Send(to domain.ConnectionID, event string, payload any) error {
	sess, ok := r.Registry.Get(to)
	if !ok {
		return domain.ErrTargetNotFound
	}
	return r.deliver(sess, event, payload)
}

// SendAll delivers the same event to each connection once and reports how many
// sends were queued.
func (r *Relay) SendAll(to []domain.ConnectionID, event string, payload any) int {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode")
		return 0
	}
	sent := 0
	for _, sid := range to {
		sess, ok := r.Registry.Get(sid)
		if !ok {
			continue
		}
		if r.push(sess, event, frame) == nil {
			sent++
		}
	}
	log.Debug().Str("module", "app.relay").Str("event", event).Int("sent_to", sent).Int("targets", len(to)).Msg("fan-out")
	return sent
}

// ToViewers fans event out to every current viewer of room.
func (r *Relay) ToViewers(room domain.RoomID, event string, payload any) int {
	rm, ok := r.Rooms.Get(room)
	if !ok {
		return 0
	}
	return r.SendAll(rm.Viewers(), event, payload)
}

// ToBroadcaster delivers event to the broadcaster of room, if any.
func (r *Relay) ToBroadcaster(room domain.RoomID, event string, payload any) error {
	rm, ok := r.Rooms.Get(room)
	if !ok {
		return domain.ErrRoomNotFound
	}
	b := rm.Broadcaster()
	if b == "" {
		return domain.ErrTargetNotFound
	}
	return r.Send(b, event, payload)
}

// Candidate routes an ICE candidate from one side of a room to the other. A
// broadcaster must name its target viewer; a viewer always reaches the
// broadcaster. The receiver sees the sender's id in socketId.
func (r *Relay) Candidate(from *Session, p domain.ICECandidatePayload) error {
	snap := from.Snapshot()
	if snap.Room == "" {
		return domain.ErrNotInRoom
	}
	out := domain.ICECandidatePayload{Candidate: p.Candidate, SocketID: from.ID}

	switch snap.Role {
	case domain.RoleBroadcaster:
		if p.SocketID == "" {
			return fmt.Errorf("%w: socketId is required", domain.ErrTargetNotFound)
		}
		rm, ok := r.Rooms.Get(snap.Room)
		if !ok || !rm.HasViewer(p.SocketID) {
			return fmt.Errorf("%w: %s is not a viewer of %s", domain.ErrTargetNotFound, p.SocketID, snap.Room)
		}
		return r.Send(p.SocketID, domain.EventICECandidate, out)
	case domain.RoleViewer:
		err := r.ToBroadcaster(snap.Room, domain.EventICECandidate, out)
		if errors.Is(err, domain.ErrTargetNotFound) || errors.Is(err, domain.ErrRoomNotFound) {
			log.Debug().Str("module", "app.relay").Str("sid", string(from.ID)).Msg("no broadcaster for candidate, dropped")
			return nil
		}
		return err
	}
	return domain.ErrNotInRoom
}

func (r *Relay) deliver(sess *Session, event string, payload any) error {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	return r.push(sess, event, frame)
}

func (r *Relay) push(sess *Session, event string, frame core.Frame) error {
	err := sess.Signal().TrySend(frame)
	if err == nil {
		r.Metrics.IncRelayed(event)
		return nil
	}
	r.Metrics.IncDropped(event)
	if errors.Is(err, core.ErrBackpressure) {
		r.onBackpressure(sess, event)
	}
	return err
}

func (r *Relay) onBackpressure(sess *Session, event string) {
	if r.Policy == nil {
		return
	}
	switch r.Policy.OnBackPressure(sess.ID, event) {
	case KickMember:
		log.Warn().Str("module", "app.relay").Str("sid", string(sess.ID)).Str("event", event).Msg("send queue full, closing connection")
		sess.Signal().Close()
	case MarkSlow:
		log.Warn().Str("module", "app.relay").Str("sid", string(sess.ID)).Str("event", event).Msg("slow connection")
	case DropFrame, NoAction:
	}
}
