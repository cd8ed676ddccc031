package orch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

const directoryTimeout = 2 * time.Second

func handleJoin(o *Orchestrator, sess *app.Session, data json.RawMessage) error {
	var p domain.JoinPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	role, err := domain.ParseRole(p.Role)
	if err != nil {
		return fmt.Errorf("%w: %q", err, p.Role)
	}
	room, err := domain.NewRoomID(p.RoomID, o.MaxRoomIDLen)
	if err != nil {
		return err
	}

	assigned, info, err := o.Rooms.Join(room, sess.ID, role)
	if err != nil {
		return err
	}
	if !sess.Assign(assigned, room) {
		o.leaveRoom(room, sess.ID)
		return fmt.Errorf("%w: join while %s", domain.ErrUnexpectedEvent, sess.State())
	}
	o.Metrics.IncJoins(string(assigned))
	o.publish(info)
	log.Info().Str("module", "orch").Str("sid", string(sess.ID)).Str("room", string(room)).
		Str("requested", string(role)).Str("role", string(assigned)).Msg("joined")

	_ = o.Relay.Send(sess.ID, domain.EventJoined, domain.JoinedPayload{SocketID: sess.ID, Role: assigned, RoomID: room})
	if assigned == domain.RoleBroadcaster {
		return o.startNegotiation(sess)
	}
	return nil
}

// handleJoinRoom starts a viewer's negotiation, moving it to another room
// first when the id differs from the joined one.
func handleJoinRoom(o *Orchestrator, sess *app.Session, data json.RawMessage) error {
	raw, err := roomRef(data)
	if err != nil {
		return err
	}
	room, err := domain.NewRoomID(raw, o.MaxRoomIDLen)
	if err != nil {
		return err
	}
	snap := sess.Snapshot()
	if snap.Role != domain.RoleViewer {
		return fmt.Errorf("%w: joinRoom as %s", domain.ErrUnexpectedEvent, snap.Role)
	}

	if room != snap.Room {
		// Leave first so the viewer is never in two viewer sets.
		o.leaveRoom(snap.Room, sess.ID)
		info, err := o.Rooms.JoinViewer(room, sess.ID)
		if err != nil {
			o.rejoinViewer(sess, snap.Room)
			return err
		}
		if !sess.MoveRoom(snap.Room, room) {
			o.leaveRoom(room, sess.ID)
			return fmt.Errorf("%w: joinRoom while %s", domain.ErrUnexpectedEvent, sess.State())
		}
		o.publish(info)
		log.Info().Str("module", "orch").Str("sid", string(sess.ID)).Str("from", string(snap.Room)).Str("room", string(room)).Msg("viewer moved")
	} else if rm, ok := o.Rooms.Get(room); !ok || !rm.HasViewer(sess.ID) {
		return domain.ErrRoomNotFound
	}
	return o.startNegotiation(sess)
}

// rejoinViewer puts a viewer back into the room it left for a failed move.
// When that room is gone the session is reset instead.
func (o *Orchestrator) rejoinViewer(sess *app.Session, id domain.RoomID) {
	info, err := o.Rooms.JoinViewer(id, sess.ID)
	if err != nil {
		if sess.ResetIfInRoom(id, domain.StateUnjoined) {
			log.Info().Str("module", "orch").Str("sid", string(sess.ID)).Str("room", string(id)).Msg("previous room gone, viewer reset")
		}
		return
	}
	o.publish(info)
}

func handleLeave(o *Orchestrator, sess *app.Session, _ json.RawMessage) error {
	o.detach(sess, domain.StateUnjoined)
	_ = o.Relay.Send(sess.ID, domain.EventLeft, nil)
	return nil
}

// EvictRoom tears a room down as if its broadcaster had left.
func (o *Orchestrator) EvictRoom(id domain.RoomID) error {
	rm, ok := o.Rooms.Get(id)
	if !ok {
		return domain.ErrRoomNotFound
	}
	log.Info().Str("module", "orch").Str("room", string(id)).Msg("evicting room")

	if b := rm.Broadcaster(); b != "" {
		if sess, ok := o.Registry.Get(b); ok {
			o.detach(sess, domain.StateUnjoined)
			_ = o.Relay.Send(b, domain.EventLeft, nil)
			return nil
		}
		o.leaveRoom(id, b)
		return nil
	}
	for _, v := range rm.Viewers() {
		if sess, ok := o.Registry.Get(v); ok && sess.ResetIfInRoom(id, domain.StateUnjoined) {
			o.leaveRoom(id, v)
			_ = o.Relay.Send(v, domain.EventBroadcasterDisconnected, nil)
		}
	}
	return nil
}

// detach resets sess to next and removes it from its room.
func (o *Orchestrator) detach(sess *app.Session, next domain.State) {
	prev := sess.Reset(next)
	if prev.Room == "" {
		return
	}
	o.leaveRoom(prev.Room, sess.ID)
}

func (o *Orchestrator) leaveRoom(id domain.RoomID, sid domain.ConnectionID) {
	res := o.Rooms.Leave(id, sid)
	if res.WasBroadcaster {
		o.releaseViewers(id, res.Viewers)
	}
	if res.RoomDeleted {
		o.withdraw(id)
		return
	}
	if rm, ok := o.Rooms.Get(id); ok {
		o.publish(rm.Info())
	}
}

// releaseViewers resets the viewers of a room whose broadcaster left and
// tells each of them once.
func (o *Orchestrator) releaseViewers(id domain.RoomID, viewers []domain.ConnectionID) {
	for _, v := range viewers {
		if sess, ok := o.Registry.Get(v); ok {
			sess.ResetIfInRoom(id, domain.StateUnjoined)
		}
	}
	n := o.Relay.SendAll(viewers, domain.EventBroadcasterDisconnected, nil)
	log.Info().Str("module", "orch").Str("room", string(id)).Int("viewers", len(viewers)).Int("notified", n).Msg("broadcaster gone")
}

func (o *Orchestrator) publish(info domain.RoomInfo) {
	if o.Directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
	defer cancel()
	if err := o.Directory.Publish(ctx, info); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(info.ID)).Msg("directory publish")
	}
}

func (o *Orchestrator) withdraw(id domain.RoomID) {
	if o.Directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
	defer cancel()
	if err := o.Directory.Withdraw(ctx, id); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("room", string(id)).Msg("directory withdraw")
	}
}

// roomRef accepts a bare room id string or an object with roomId.
func roomRef(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id, nil
	}
	var p struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(data, &p); err != nil {
		return "", err
	}
	return p.RoomID, nil
}
