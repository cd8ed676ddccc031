package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrAlreadyConnected = errors.New("transport already connected")

// Transport is one server-side WebRTC transport. It gathers before it is
// returned, so its parameters are complete and never change.
type Transport struct {
	id       string
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	params   domain.TransportParameters
	cands    []webrtc.ICECandidate
	codecs   []Codec
	onClose  func(id string)

	mu        sync.Mutex
	onState   func(core.DTLSState)
	connected bool
	closeOnce sync.Once
	closeErr  error
}

func newTransport(ctx context.Context, id string, api *webrtc.API, servers []webrtc.ICEServer, preferUDP bool, codecs []Codec) (*Transport, error) {
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	t := &Transport{id: id, gatherer: gatherer, codecs: codecs}

	t.ice = api.NewICETransport(gatherer)
	t.dtls, err = api.NewDTLSTransport(t.ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}
	t.dtls.OnStateChange(func(s webrtc.DTLSTransportState) {
		log.Debug().Str("module", "rtc").Str("transport", id).Str("dtls_state", s.String()).Msg("dtls state")
		t.emit(dtlsState(s))
	})

	if err := t.gather(ctx, preferUDP); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

func (t *Transport) gather(ctx context.Context, preferUDP bool) error {
	done := make(chan struct{})
	var once sync.Once
	t.gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(done) })
		}
	})
	if err := t.gatherer.Gather(); err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	ice, err := t.gatherer.GetLocalParameters()
	if err != nil {
		return fmt.Errorf("ice parameters: %w", err)
	}
	cands, err := t.gatherer.GetLocalCandidates()
	if err != nil {
		return fmt.Errorf("ice candidates: %w", err)
	}
	if len(cands) == 0 {
		return errors.New("no local candidates gathered")
	}
	dtls, err := t.dtls.GetLocalParameters()
	if err != nil {
		return fmt.Errorf("dtls parameters: %w", err)
	}
	if preferUDP {
		sortUDPFirst(cands)
	}
	t.cands = cands
	t.params = domain.TransportParameters{
		ID:             t.id,
		ICEParameters:  toICEParameters(ice),
		ICECandidates:  toICECandidates(cands),
		DTLSParameters: toDTLSParameters(dtls),
	}
	return nil
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Parameters() domain.TransportParameters { return t.params }

func (t *Transport) OnDTLSStateChange(cb func(core.DTLSState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onState = cb
}

// Connect starts ICE as the controlled agent and then the DTLS handshake. It
// blocks until the handshake ends or ctx is cancelled, which closes the
// transport.
func (t *Transport) Connect(ctx context.Context, p domain.ConnectTransportPayload) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.connected = true
	t.mu.Unlock()

	remoteICE := fromICEParameters(p.ICEParameters)
	remoteCands, err := fromICECandidates(p.ICECandidates)
	if err != nil {
		return err
	}
	remoteDTLS, err := fromDTLSParameters(p.DTLSParameters)
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-stop:
		}
	}()

	if len(remoteCands) > 0 {
		if err := t.ice.SetRemoteCandidates(remoteCands); err != nil {
			return fmt.Errorf("remote candidates: %w", err)
		}
	}
	role := webrtc.ICERoleControlled
	if err := t.ice.Start(t.gatherer, remoteICE, &role); err != nil {
		t.emit(core.DTLSStateFailed)
		return fmt.Errorf("ice start: %w", err)
	}
	if err := t.dtls.Start(remoteDTLS); err != nil {
		t.emit(core.DTLSStateFailed)
		return fmt.Errorf("dtls start: %w", err)
	}
	return nil
}

// CreateOffer renders a receive-only offer for the codec set.
func (t *Transport) CreateOffer() (domain.Offer, error) {
	sdp, err := buildOffer(t.params, t.cands, t.codecs)
	if err != nil {
		return domain.Offer{}, err
	}
	return domain.Offer{Type: webrtc.SDPTypeOffer.String(), SDP: sdp}, nil
}

// Close stops DTLS, ICE and the gatherer. Only the first call does anything.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		var errs []error
		if t.dtls != nil {
			errs = append(errs, t.dtls.Stop())
		}
		if t.ice != nil {
			errs = append(errs, t.ice.Stop())
		}
		errs = append(errs, t.gatherer.Close())
		t.closeErr = errors.Join(errs...)
		if t.onClose != nil {
			t.onClose(t.id)
		}
		log.Info().Str("module", "rtc").Str("transport", t.id).Msg("transport closed")
	})
	return t.closeErr
}

func (t *Transport) emit(s core.DTLSState) {
	t.mu.Lock()
	cb := t.onState
	t.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func dtlsState(s webrtc.DTLSTransportState) core.DTLSState {
	switch s {
	case webrtc.DTLSTransportStateConnecting:
		return core.DTLSStateConnecting
	case webrtc.DTLSTransportStateConnected:
		return core.DTLSStateConnected
	case webrtc.DTLSTransportStateFailed:
		return core.DTLSStateFailed
	case webrtc.DTLSTransportStateClosed:
		return core.DTLSStateClosed
	}
	return core.DTLSStateNew
}
