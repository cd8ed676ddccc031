// Package domain contains identifiers, roles and wire messages, without logic besides validation.
package domain

import (
	"github.com/google/uuid"
)

type ConnectionID string

// NewConnectionID returns a fresh identifier for a signaling connection.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

type Role string

const (
	RoleUnassigned  Role = "unassigned"
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
)

// ParseRole accepts only the roles a client may request.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleBroadcaster, RoleViewer:
		return Role(raw), nil
	}
	return RoleUnassigned, ErrInvalidRole
}

// State is the position of a connection in the session state machine.
type State int

const (
	StateUnjoined State = iota
	StateRoleAssigned
	StateNegotiating
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateRoleAssigned:
		return "roleAssigned"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}
