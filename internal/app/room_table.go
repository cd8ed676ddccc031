package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

type RolePolicy string

const (
	// RolePolicyStrict honors the requested role.
	RolePolicyStrict RolePolicy = "strict"
	// RolePolicyAdvisory makes the first joiner of an empty room its broadcaster.
	RolePolicyAdvisory RolePolicy = "advisory"
)

func ParseRolePolicy(raw string) (RolePolicy, error) {
	switch RolePolicy(raw) {
	case RolePolicyStrict, RolePolicyAdvisory:
		return RolePolicy(raw), nil
	case "":
		return RolePolicyStrict, nil
	}
	return "", fmt.Errorf("unknown role policy %q", raw)
}

// LeaveResult describes what a leave did to the room.
type LeaveResult struct {
	WasBroadcaster bool
	// Viewers were evicted together with the broadcaster.
	Viewers     []domain.ConnectionID
	RoomDeleted bool
}

// RoomTable maps room ids to rooms. The map lock only guards lookup and
// removal; every membership change runs under the room's own lock.
type RoomTable struct {
	policy RolePolicy
	mu     sync.RWMutex
	rooms  map[domain.RoomID]*core.Room
}

func NewRoomTable(policy RolePolicy) *RoomTable {
	if policy == "" {
		policy = RolePolicyStrict
	}
	return &RoomTable{policy: policy, rooms: make(map[domain.RoomID]*core.Room)}
}

func (t *RoomTable) Policy() RolePolicy { return t.policy }

// Join resolves the role of sid in room id. Broadcasters create the room
// lazily; viewers never do, unless the advisory policy lets them claim it.
func (t *RoomTable) Join(id domain.RoomID, sid domain.ConnectionID, requested domain.Role) (domain.Role, domain.RoomInfo, error) {
	if requested != domain.RoleBroadcaster && requested != domain.RoleViewer {
		return domain.RoleUnassigned, domain.RoomInfo{}, domain.ErrInvalidRole
	}
	if t.policy == RolePolicyAdvisory {
		return t.joinFirstWins(id, sid)
	}
	if requested == domain.RoleViewer {
		info, err := t.JoinViewer(id, sid)
		if err != nil {
			return domain.RoleUnassigned, domain.RoomInfo{}, err
		}
		return domain.RoleViewer, info, nil
	}
	for {
		room := t.getOrCreate(id)
		err := room.ClaimBroadcaster(sid)
		if errors.Is(err, core.ErrRoomClosed) {
			t.drop(room)
			continue
		}
		if err != nil {
			return domain.RoleUnassigned, domain.RoomInfo{}, err
		}
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("sid", string(sid)).Msg("broadcaster assigned")
		return domain.RoleBroadcaster, room.Info(), nil
	}
}

// joinFirstWins ignores the requested role: the first joiner of an empty room
// becomes its broadcaster and everyone after it a viewer.
func (t *RoomTable) joinFirstWins(id domain.RoomID, sid domain.ConnectionID) (domain.Role, domain.RoomInfo, error) {
	for {
		room := t.getOrCreate(id)
		role, err := room.Join(sid, true)
		if errors.Is(err, core.ErrRoomClosed) {
			t.drop(room)
			continue
		}
		if err != nil {
			return domain.RoleUnassigned, domain.RoomInfo{}, err
		}
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("sid", string(sid)).Str("role", string(role)).Msg("joined")
		return role, room.Info(), nil
	}
}

// JoinViewer adds sid to the viewers of an existing room with a broadcaster.
// Joining twice leaves a single entry.
func (t *RoomTable) JoinViewer(id domain.RoomID, sid domain.ConnectionID) (domain.RoomInfo, error) {
	room, ok := t.Get(id)
	if !ok {
		return domain.RoomInfo{}, domain.ErrRoomNotFound
	}
	role, err := room.Join(sid, false)
	if errors.Is(err, core.ErrRoomClosed) {
		t.drop(room)
		return domain.RoomInfo{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.RoomInfo{}, err
	}
	if role != domain.RoleViewer {
		return domain.RoomInfo{}, domain.ErrBroadcasterTaken
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("sid", string(sid)).Msg("viewer added")
	return room.Info(), nil
}

// Leave removes sid from whichever set of room id it belongs to. A leaving
// broadcaster takes every viewer with it; no viewer is promoted.
func (t *RoomTable) Leave(id domain.RoomID, sid domain.ConnectionID) LeaveResult {
	room, ok := t.Get(id)
	if !ok {
		return LeaveResult{}
	}
	if viewers, ok := room.ReleaseBroadcaster(sid); ok {
		t.drop(room)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("sid", string(sid)).Int("viewers", len(viewers)).Msg("broadcaster left, room deleted")
		return LeaveResult{WasBroadcaster: true, Viewers: viewers, RoomDeleted: true}
	}
	removed, emptied := room.RemoveViewer(sid)
	if emptied {
		t.drop(room)
	}
	if removed {
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("sid", string(sid)).Msg("viewer removed")
	}
	return LeaveResult{RoomDeleted: emptied}
}

func (t *RoomTable) SetViewerTransport(id domain.RoomID, sid domain.ConnectionID, tr core.Transport) error {
	room, ok := t.Get(id)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return room.SetViewerTransport(sid, tr)
}

func (t *RoomTable) ClearViewerTransport(id domain.RoomID, sid domain.ConnectionID, tr core.Transport) {
	if room, ok := t.Get(id); ok {
		room.ClearViewerTransport(sid, tr)
	}
}

func (t *RoomTable) Get(id domain.RoomID) (*core.Room, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	room, ok := t.rooms[id]
	return room, ok
}

func (t *RoomTable) List() []domain.RoomInfo {
	t.mu.RLock()
	rooms := make([]*core.Room, 0, len(t.rooms))
	for _, r := range t.rooms {
		rooms = append(rooms, r)
	}
	t.mu.RUnlock()

	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	return out
}

func (t *RoomTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}

func (t *RoomTable) getOrCreate(id domain.RoomID) *core.Room {
	t.mu.RLock()
	room, ok := t.rooms[id]
	t.mu.RUnlock()
	if ok {
		return room
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if room, ok = t.rooms[id]; ok {
		return room
	}
	room = core.NewRoom(id)
	t.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

// drop removes room only if the table still points at this instance.
func (t *RoomTable) drop(room *core.Room) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.rooms[room.ID()]; ok && cur == room {
		delete(t.rooms, room.ID())
	}
}
