package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

// fakeSignal records frames; with full set it refuses them like a saturated queue.
type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.ErrClosed
	}
	if f.full {
		return core.ErrBackpressure
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSignal) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSignal) envelopes(t *testing.T) []domain.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Envelope, 0, len(f.frames))
	for _, fr := range f.frames {
		var env domain.Envelope
		if err := json.Unmarshal(fr, &env); err != nil {
			t.Fatalf("bad frame %q: %v", fr, err)
		}
		out = append(out, env)
	}
	return out
}

func (f *fakeSignal) events(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, env := range f.envelopes(t) {
		out = append(out, env.Event)
	}
	return out
}

// fakeTransport counts closes.
type fakeTransport struct {
	id     string
	mu     sync.Mutex
	closes int
}

func (f *fakeTransport) ID() string                             { return f.id }
func (f *fakeTransport) Parameters() domain.TransportParameters { return domain.TransportParameters{ID: f.id} }
func (f *fakeTransport) OnDTLSStateChange(func(core.DTLSState)) {}
func (f *fakeTransport) CreateOffer() (domain.Offer, error)     { return domain.Offer{Type: "offer"}, nil }

func (f *fakeTransport) Connect(context.Context, domain.ConnectTransportPayload) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}
