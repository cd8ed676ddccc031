package domain

import "unicode/utf8"

const DefaultMaxRoomIDLen = 64

type RoomID string

// NewRoomID validates a caller-supplied room identifier.
func NewRoomID(raw string, maxLen int) (RoomID, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxRoomIDLen
	}
	if raw == "" || !utf8.ValidString(raw) || utf8.RuneCountInString(raw) > maxLen {
		return "", ErrInvalidRoomID
	}
	return RoomID(raw), nil
}

// RoomInfo is a read-only view of a room for APIs and the directory.
type RoomInfo struct {
	ID          RoomID       `json:"id"`
	Broadcaster ConnectionID `json:"broadcaster"`
	Viewers     int          `json:"viewers"`
}
