//go:generate mockgen -source=media_iface.go -destination=mocks/media_mock.go -package=mocks

package core

import (
	"context"

	"github.com/dkeye/Broadcast/internal/domain"
)

type ListenIP struct {
	IP          string
	AnnouncedIP string
}

// ListenConfig constrains where a transport gathers candidates.
type ListenConfig struct {
	ListenIPs []ListenIP
	EnableUDP bool
	EnableTCP bool
	PreferUDP bool
}

type DTLSState string

const (
	DTLSStateNew        DTLSState = "new"
	DTLSStateConnecting DTLSState = "connecting"
	DTLSStateConnected  DTLSState = "connected"
	DTLSStateFailed     DTLSState = "failed"
	DTLSStateClosed     DTLSState = "closed"
)

// MediaRouter is the media engine entry point; one per process.
type MediaRouter interface {
	// CreateWebRtcTransport blocks until the transport has gathered its candidates or ctx ends.
	CreateWebRtcTransport(ctx context.Context, cfg ListenConfig) (Transport, error)
	Close() error
}

// Transport is an opaque media path handle owned by exactly one connection.
type Transport interface {
	ID() string
	Parameters() domain.TransportParameters
	// OnDTLSStateChange replaces the state change callback.
	OnDTLSStateChange(func(DTLSState))
	// Connect hands the client side to the engine; it may block until ICE completes.
	Connect(ctx context.Context, remote domain.ConnectTransportPayload) error
	CreateOffer() (domain.Offer, error)
	// Close is idempotent.
	Close() error
}
