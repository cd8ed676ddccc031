package domain

import "encoding/json"

// Event names exchanged over a signaling connection.
const (
	EventJoin                    = "join"
	EventJoined                  = "joined"
	EventJoinRoom                = "joinRoom"
	EventLeave                   = "leave"
	EventLeft                    = "left"
	EventNegotiate               = "negotiate"
	EventTransportParameters     = "transportParameters"
	EventConnectTransport        = "connectTransport"
	EventNegotiationFailed       = "negotiationFailed"
	EventICECandidate            = "iceCandidate"
	EventOffer                   = "offer"
	EventNewTransport            = "newTransport"
	EventRoomNotFound            = "roomNotFound"
	EventViewerConnected         = "viewerConnected"
	EventBroadcasterDisconnected = "broadcasterDisconnected"
	EventError                   = "error"
	EventPing                    = "ping"
	EventPong                    = "pong"
	EventWhoAmI                  = "whoami"
)

// Envelope frames every message: a named event and its optional payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	Role   string `json:"role"`
	RoomID string `json:"roomId"`
}

type JoinedPayload struct {
	SocketID ConnectionID `json:"socketId"`
	Role     Role         `json:"role"`
	RoomID   RoomID       `json:"roomId"`
}

type ICEParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	ICELite          bool   `json:"iceLite,omitempty"`
}

type ICECandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

type DTLSFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DTLSParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DTLSFingerprint `json:"fingerprints"`
}

// TransportParameters is what a client needs to reach its server-side transport.
type TransportParameters struct {
	ID             string         `json:"id"`
	ICEParameters  ICEParameters  `json:"iceParameters"`
	ICECandidates  []ICECandidate `json:"iceCandidates"`
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
}

// ConnectTransportPayload carries the client side of a transport.
type ConnectTransportPayload struct {
	TransportID    string         `json:"transportId"`
	ICEParameters  ICEParameters  `json:"iceParameters"`
	ICECandidates  []ICECandidate `json:"iceCandidates,omitempty"`
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
}

type ICECandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
	SocketID  ConnectionID    `json:"socketId,omitempty"`
}

type OfferPayload struct {
	TransportID string `json:"transportId"`
	Offer       Offer  `json:"offer"`
}

// Offer is a session description in the shape browsers accept.
type Offer struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type NewTransportPayload struct {
	ID string `json:"id"`
}

type ViewerConnectedPayload struct {
	SocketID ConnectionID `json:"socketId"`
}

type NegotiationFailedPayload struct {
	TransportID string `json:"transportId,omitempty"`
	Reason      string `json:"reason"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type WhoAmIPayload struct {
	SocketID ConnectionID `json:"socketId"`
	Role     Role         `json:"role"`
	RoomID   RoomID       `json:"roomId,omitempty"`
	State    string       `json:"state"`
}
