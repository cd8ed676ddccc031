package domain

import "errors"

var (
	ErrRoomNotFound            = errors.New("room not found")
	ErrTransportCreationFailed = errors.New("transport creation failed")
	ErrNegotiationTimeout      = errors.New("negotiation timeout")
	ErrNegotiationFailed       = errors.New("negotiation failed")
	ErrInvalidRole             = errors.New("invalid role")
	ErrInvalidRoomID           = errors.New("invalid room id")
	ErrBroadcasterTaken        = errors.New("broadcaster slot taken")
	ErrNotInRoom               = errors.New("connection is not in a room")
	ErrTargetNotFound          = errors.New("target connection not found")
	ErrUnknownTransport        = errors.New("unknown transport")
	ErrStaleNegotiation        = errors.New("negotiation superseded")
	ErrBadPayload              = errors.New("bad payload")
	ErrUnexpectedEvent         = errors.New("unexpected event")
	ErrRateLimited             = errors.New("rate limited")
)

// Wire codes carried by error and negotiationFailed events.
const (
	CodeRoomNotFound            = "roomNotFound"
	CodeTransportCreationFailed = "transportCreationFailed"
	CodeNegotiationTimeout      = "negotiationTimeout"
	CodeNegotiationFailed       = "negotiationFailed"
	CodeInvalidRole             = "invalidRole"
	CodeInvalidRoomID           = "invalidRoomId"
	CodeBroadcasterTaken        = "broadcasterTaken"
	CodeNotInRoom               = "notInRoom"
	CodeTargetNotFound          = "targetNotFound"
	CodeUnknownTransport        = "unknownTransport"
	CodeBadPayload              = "badPayload"
	CodeUnexpectedEvent         = "unexpectedEvent"
	CodeRateLimited             = "rateLimited"
	CodeInternal                = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrRoomNotFound, CodeRoomNotFound},
	{ErrTransportCreationFailed, CodeTransportCreationFailed},
	{ErrNegotiationTimeout, CodeNegotiationTimeout},
	{ErrNegotiationFailed, CodeNegotiationFailed},
	{ErrInvalidRole, CodeInvalidRole},
	{ErrInvalidRoomID, CodeInvalidRoomID},
	{ErrBroadcasterTaken, CodeBroadcasterTaken},
	{ErrNotInRoom, CodeNotInRoom},
	{ErrTargetNotFound, CodeTargetNotFound},
	{ErrUnknownTransport, CodeUnknownTransport},
	{ErrBadPayload, CodeBadPayload},
	{ErrUnexpectedEvent, CodeUnexpectedEvent},
	{ErrRateLimited, CodeRateLimited},
}

// ErrorCode maps err to the code reported to clients.
func ErrorCode(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
