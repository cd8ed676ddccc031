package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/core/mocks"
	"github.com/dkeye/Broadcast/internal/domain"
	"go.uber.org/mock/gomock"
)

type notifyFunc func(to domain.ConnectionID, event string, payload any) error

func (f notifyFunc) Send(to domain.ConnectionID, event string, payload any) error {
	return f(to, event, payload)
}

// expectTransport wires a mock transport that hands its DTLS callback to cb.
func expectTransport(ctrl *gomock.Controller, id string, cb *func(core.DTLSState)) *mocks.MockTransport {
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().ID().Return(id).AnyTimes()
	tr.EXPECT().Parameters().Return(domain.TransportParameters{ID: id}).AnyTimes()
	tr.EXPECT().OnDTLSStateChange(gomock.Any()).Do(func(f func(core.DTLSState)) { *cb = f })
	return tr
}

func noAttach(core.Transport) error { return nil }

func TestSequencer_creationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	router := mocks.NewMockMediaRouter(ctrl)
	router.EXPECT().CreateWebRtcTransport(gomock.Any(), gomock.Any()).Return(nil, errors.New("worker died"))

	sent := false
	seq := NewSequencer(router, core.ListenConfig{}, time.Second, 1, notifyFunc(func(domain.ConnectionID, string, any) error {
		sent = true
		return nil
	}))

	_, err := seq.Negotiate(context.Background(), "c1", noAttach)
	if !errors.Is(err, domain.ErrTransportCreationFailed) {
		t.Fatalf("expected ErrTransportCreationFailed, got %v", err)
	}
	if sent {
		t.Error("no parameters may be sent when creation fails")
	}
}

func TestSequencer_passesListenConfig(t *testing.T) {
	ctrl := gomock.NewController(t)
	listen := core.ListenConfig{ListenIPs: []core.ListenIP{{IP: "10.0.0.1", AnnouncedIP: "1.2.3.4"}}, EnableUDP: true, PreferUDP: true}
	router := mocks.NewMockMediaRouter(ctrl)
	router.EXPECT().CreateWebRtcTransport(gomock.Any(), listen).Return(nil, errors.New("stop here"))

	seq := NewSequencer(router, listen, time.Second, 1, notifyFunc(func(domain.ConnectionID, string, any) error { return nil }))
	_, _ = seq.Negotiate(context.Background(), "c1", noAttach)
}

func TestSequencer_connected(t *testing.T) {
	ctrl := gomock.NewController(t)
	var cb func(core.DTLSState)
	tr := expectTransport(ctrl, "t1", &cb)
	router := mocks.NewMockMediaRouter(ctrl)
	router.EXPECT().CreateWebRtcTransport(gomock.Any(), gomock.Any()).Return(tr, nil)

	var events []string
	seq := NewSequencer(router, core.ListenConfig{}, time.Second, 1, notifyFunc(func(to domain.ConnectionID, event string, payload any) error {
		if to != "c1" {
			t.Errorf("sent to %s, want c1", to)
		}
		events = append(events, event)
		p, ok := payload.(domain.TransportParameters)
		if !ok || p.ID != "t1" {
			t.Errorf("unexpected payload %#v", payload)
		}
		cb(core.DTLSStateConnecting)
		cb(core.DTLSStateConnected)
		cb(core.DTLSStateConnected)
		return nil
	}))

	var attached core.Transport
	got, err := seq.Negotiate(context.Background(), "c1", func(t core.Transport) error {
		attached = t
		return nil
	})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if got != tr || attached != tr {
		t.Error("negotiated transport should be the attached one")
	}
	if len(events) != 1 || events[0] != domain.EventTransportParameters {
		t.Errorf("events = %v", events)
	}
}

func TestSequencer_timeoutReleasesTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	var cb func(core.DTLSState)
	tr := expectTransport(ctrl, "t1", &cb)
	tr.EXPECT().Close().Return(nil).Times(1)
	router := mocks.NewMockMediaRouter(ctrl)
	router.EXPECT().CreateWebRtcTransport(gomock.Any(), gomock.Any()).Return(tr, nil)

	seq := NewSequencer(router, core.ListenConfig{}, 20*time.Millisecond, 1, notifyFunc(func(domain.ConnectionID, string, any) error { return nil }))
	_, err := seq.Negotiate(context.Background(), "c1", noAttach)
	if !errors.Is(err, domain.ErrNegotiationTimeout) {
		t.Fatalf("expected ErrNegotiationTimeout, got %v", err)
	}
}

func TestSequencer_dtlsFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	var cb func(core.DTLSState)
	tr := expectTransport(ctrl, "t1", &cb)
	tr.EXPECT().Close().Return(nil).Times(1)
	router := mocks.NewMockMediaRouter(ctrl)
	router.EXPECT().CreateWebRtcTransport(gomock.Any(), gomock.Any()).Return(tr, nil)

	seq := NewSequencer(router, core.ListenConfig{}, time.Second, 1, notifyFunc(func(domain.ConnectionID, string, any) error {
		cb(core.DTLSStateFailed)
		return nil
	}))
	_, err := seq.Negotiate(context.Background(), "c1", noAttach)
	if !errors.Is(err, domain.ErrNegotiationFailed) {
		t.Fatalf("expected ErrNegotiationFailed, got %v", err)
	}
}

func TestSequencer_cancelReleasesTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	var cb func(core.DTLSState)
	tr := expectTransport(ctrl, "t1", &cb)
	tr.EXPECT().Close().Return(nil).Times(1)
	router := mocks.NewMockMediaRouter(ctrl)
	router.EXPECT().CreateWebRtcTransport(gomock.Any(), gomock.Any()).Return(tr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	seq := NewSequencer(router, core.ListenConfig{}, time.Minute, 1, notifyFunc(func(domain.ConnectionID, string, any) error {
		cancel()
		return nil
	}))
	_, err := seq.Negotiate(ctx, "c1", noAttach)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSequencer_attachRefusal(t *testing.T) {
	ctrl := gomock.NewController(t)
	var cb func(core.DTLSState)
	tr := expectTransport(ctrl, "t1", &cb)
	tr.EXPECT().Close().Return(nil).Times(1)
	router := mocks.NewMockMediaRouter(ctrl)
	router.EXPECT().CreateWebRtcTransport(gomock.Any(), gomock.Any()).Return(tr, nil)

	seq := NewSequencer(router, core.ListenConfig{}, time.Second, 1, notifyFunc(func(domain.ConnectionID, string, any) error {
		t.Error("parameters must not be sent after a refused attach")
		return nil
	}))
	_, err := seq.Negotiate(context.Background(), "c1", func(core.Transport) error { return domain.ErrStaleNegotiation })
	if !errors.Is(err, domain.ErrStaleNegotiation) {
		t.Fatalf("expected ErrStaleNegotiation, got %v", err)
	}
}

func TestSequencer_boundsPendingCreations(t *testing.T) {
	ctrl := gomock.NewController(t)
	router := mocks.NewMockMediaRouter(ctrl)

	entered := make(chan struct{})
	unblock := make(chan struct{})
	router.EXPECT().CreateWebRtcTransport(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, core.ListenConfig) (core.Transport, error) {
		close(entered)
		<-unblock
		return nil, errors.New("done")
	})

	seq := NewSequencer(router, core.ListenConfig{}, time.Second, 1, notifyFunc(func(domain.ConnectionID, string, any) error { return nil }))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = seq.Negotiate(context.Background(), "c1", noAttach)
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := seq.Negotiate(ctx, "c2", noAttach)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second creation should wait for a slot, got %v", err)
	}
	close(unblock)
	wg.Wait()
}
