package core

import (
	"errors"
	"sync"

	"github.com/dkeye/Broadcast/internal/domain"
)

// ErrRoomClosed is returned by a room that was emptied and is being removed from its table.
var ErrRoomClosed = errors.New("room closed")

// Room is one broadcaster slot plus its viewers, guarded by its own mutex.
// It never closes transports; their owners do.
type Room struct {
	id domain.RoomID

	mu               sync.Mutex
	closed           bool
	broadcaster      domain.ConnectionID
	viewers          map[domain.ConnectionID]struct{}
	viewerTransports map[domain.ConnectionID]Transport
}

func NewRoom(id domain.RoomID) *Room {
	return &Room{
		id:               id,
		viewers:          make(map[domain.ConnectionID]struct{}),
		viewerTransports: make(map[domain.ConnectionID]Transport),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

// ClaimBroadcaster takes the slot for sid. Claiming it again is a no-op.
func (r *Room) ClaimBroadcaster(sid domain.ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	if r.broadcaster != "" && r.broadcaster != sid {
		return domain.ErrBroadcasterTaken
	}
	if _, ok := r.viewers[sid]; ok {
		return domain.ErrBroadcasterTaken
	}
	r.broadcaster = sid
	return nil
}

// Join adds sid as a viewer when a broadcaster is present. With an empty slot it
// claims the slot if claimIfEmpty is set and fails with ErrRoomNotFound otherwise.
func (r *Room) Join(sid domain.ConnectionID, claimIfEmpty bool) (domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.RoleUnassigned, ErrRoomClosed
	}
	switch r.broadcaster {
	case "":
		if !claimIfEmpty {
			return domain.RoleUnassigned, domain.ErrRoomNotFound
		}
		delete(r.viewers, sid)
		delete(r.viewerTransports, sid)
		r.broadcaster = sid
		return domain.RoleBroadcaster, nil
	case sid:
		return domain.RoleBroadcaster, nil
	}
	r.viewers[sid] = struct{}{}
	return domain.RoleViewer, nil
}

// RemoveViewer drops sid and its transport entry. It reports whether sid was a
// viewer and whether the room became empty, in which case the room is closed.
func (r *Room) RemoveViewer(sid domain.ConnectionID) (removed, emptied bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.viewers[sid]; ok {
		removed = true
		delete(r.viewers, sid)
	}
	delete(r.viewerTransports, sid)
	return removed, r.closeIfEmptyLocked()
}

// ReleaseBroadcaster clears the slot held by sid and empties the viewer set.
// The returned viewers are the ones to notify, each exactly once.
func (r *Room) ReleaseBroadcaster(sid domain.ConnectionID) ([]domain.ConnectionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.broadcaster != sid || sid == "" {
		return nil, false
	}
	r.broadcaster = ""
	out := make([]domain.ConnectionID, 0, len(r.viewers))
	for v := range r.viewers {
		out = append(out, v)
	}
	clear(r.viewers)
	clear(r.viewerTransports)
	r.closeIfEmptyLocked()
	return out, true
}

// SetViewerTransport records the transport negotiated for a current viewer.
func (r *Room) SetViewerTransport(sid domain.ConnectionID, t Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	if _, ok := r.viewers[sid]; !ok {
		return domain.ErrNotInRoom
	}
	r.viewerTransports[sid] = t
	return nil
}

// ClearViewerTransport removes the entry only if it still points at t.
func (r *Room) ClearViewerTransport(sid domain.ConnectionID, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.viewerTransports[sid]; ok && cur == t {
		delete(r.viewerTransports, sid)
	}
}

func (r *Room) ViewerTransport(sid domain.ConnectionID) (Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.viewerTransports[sid]
	return t, ok
}

func (r *Room) Broadcaster() domain.ConnectionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcaster
}

func (r *Room) HasViewer(sid domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.viewers[sid]
	return ok
}

func (r *Room) Viewers() []domain.ConnectionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ConnectionID, 0, len(r.viewers))
	for v := range r.viewers {
		out = append(out, v)
	}
	return out
}

func (r *Room) Info() domain.RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RoomInfo{ID: r.id, Broadcaster: r.broadcaster, Viewers: len(r.viewers)}
}

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Room) closeIfEmptyLocked() bool {
	if r.broadcaster == "" && len(r.viewers) == 0 {
		r.closed = true
	}
	return r.closed
}
