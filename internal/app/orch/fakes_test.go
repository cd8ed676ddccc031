package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

type fakeSignal struct {
	mu     sync.Mutex
	envs   []domain.Envelope
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	var env domain.Envelope
	if err := json.Unmarshal(fr, &env); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.ErrClosed
	}
	f.envs = append(f.envs, env)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSignal) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, env := range f.envs {
		if env.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeSignal) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.envs))
	for _, env := range f.envs {
		out = append(out, env.Event)
	}
	return out
}

func (f *fakeSignal) all(event string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, env := range f.envs {
		if env.Event == event {
			out = append(out, env.Data)
		}
	}
	return out
}

// waitFor returns the data of the first event named event, waiting for it.
func (f *fakeSignal) waitFor(t *testing.T, event string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, env := range f.envs {
			if env.Event == event {
				f.mu.Unlock()
				return env.Data
			}
		}
		f.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("no %s event, got %v", event, f.events())
	return nil
}

type fakeTransport struct {
	id string

	mu     sync.Mutex
	cb     func(core.DTLSState)
	closed int
	remote domain.ConnectTransportPayload
}

func (f *fakeTransport) ID() string { return f.id }

func (f *fakeTransport) Parameters() domain.TransportParameters {
	return domain.TransportParameters{
		ID:             f.id,
		ICEParameters:  domain.ICEParameters{UsernameFragment: "ufrag", Password: "pwd"},
		ICECandidates:  []domain.ICECandidate{{Foundation: "1", IP: "127.0.0.1", Port: 40000, Protocol: "udp", Type: "host"}},
		DTLSParameters: domain.DTLSParameters{Role: "auto", Fingerprints: []domain.DTLSFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}}},
	}
}

func (f *fakeTransport) OnDTLSStateChange(cb func(core.DTLSState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

// Connect simulates the remote side completing the DTLS handshake.
func (f *fakeTransport) Connect(_ context.Context, p domain.ConnectTransportPayload) error {
	f.mu.Lock()
	f.remote = p
	cb := f.cb
	f.mu.Unlock()
	cb(core.DTLSStateConnecting)
	cb(core.DTLSStateConnected)
	return nil
}

func (f *fakeTransport) CreateOffer() (domain.Offer, error) {
	return domain.Offer{Type: "offer", SDP: "v=0\r\n"}, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed > 0
}

type fakeRouter struct {
	mu         sync.Mutex
	fail       bool
	transports []*fakeTransport
}

func (r *fakeRouter) CreateWebRtcTransport(context.Context, core.ListenConfig) (core.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errors.New("engine unavailable")
	}
	t := &fakeTransport{id: fmt.Sprintf("t%d", len(r.transports)+1)}
	r.transports = append(r.transports, t)
	return t, nil
}

func (r *fakeRouter) Close() error { return nil }

func (r *fakeRouter) setFail(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = v
}

func (r *fakeRouter) transport(id string) *fakeTransport {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transports {
		if t.id == id {
			return t
		}
	}
	return nil
}

type recordingDirectory struct {
	mu        sync.Mutex
	published map[domain.RoomID]domain.RoomInfo
	withdrawn []domain.RoomID
}

func (d *recordingDirectory) Publish(_ context.Context, info domain.RoomInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.published == nil {
		d.published = map[domain.RoomID]domain.RoomInfo{}
	}
	d.published[info.ID] = info
	return nil
}

func (d *recordingDirectory) Withdraw(_ context.Context, id domain.RoomID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.published, id)
	d.withdrawn = append(d.withdrawn, id)
	return nil
}

func (d *recordingDirectory) lastPublished(id domain.RoomID) domain.RoomInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.published[id]
}

type harness struct {
	o      *Orchestrator
	router *fakeRouter
	dir    *recordingDirectory
	sigs   map[domain.ConnectionID]*fakeSignal
}

func newHarness(t *testing.T, policy app.RolePolicy, timeout time.Duration) *harness {
	t.Helper()
	reg := app.NewRegistry()
	rooms := app.NewRoomTable(policy)
	relay := &app.Relay{Registry: reg, Rooms: rooms, Policy: app.SimplePolicy{}}
	router := &fakeRouter{}
	dir := &recordingDirectory{}
	h := &harness{
		o: &Orchestrator{
			Registry:  reg,
			Rooms:     rooms,
			Relay:     relay,
			Sequencer: app.NewSequencer(router, core.ListenConfig{EnableUDP: true}, timeout, 4, relay),
			Directory: dir,
		},
		router: router,
		dir:    dir,
		sigs:   map[domain.ConnectionID]*fakeSignal{},
	}
	t.Cleanup(h.o.Shutdown)
	return h
}

func (h *harness) connect(id domain.ConnectionID) *fakeSignal {
	sig := &fakeSignal{}
	h.sigs[id] = sig
	h.o.Connect(app.NewSession(context.Background(), id, "token-"+string(id), sig))
	return sig
}

func (h *harness) send(t *testing.T, id domain.ConnectionID, event string, payload any) {
	t.Helper()
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		data = b
	}
	h.o.Handle(id, event, data)
}

// handshake answers the pending transportParameters of id with connectTransport.
func (h *harness) handshake(t *testing.T, id domain.ConnectionID) *fakeTransport {
	t.Helper()
	var params domain.TransportParameters
	if err := json.Unmarshal(h.sigs[id].waitFor(t, domain.EventTransportParameters), &params); err != nil {
		t.Fatal(err)
	}
	h.send(t, id, domain.EventConnectTransport, domain.ConnectTransportPayload{
		TransportID:    params.ID,
		ICEParameters:  domain.ICEParameters{UsernameFragment: "client", Password: "secret"},
		DTLSParameters: domain.DTLSParameters{Role: "client", Fingerprints: []domain.DTLSFingerprint{{Algorithm: "sha-256", Value: "CC:DD"}}},
	})
	return h.router.transport(params.ID)
}

func (h *harness) state(t *testing.T, id domain.ConnectionID) domain.State {
	t.Helper()
	sess, ok := h.o.Registry.Get(id)
	if !ok {
		t.Fatalf("no session %s", id)
	}
	return sess.State()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
