package rtc

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

func TestRegisterCodecs(t *testing.T) {
	if err := registerCodecs(&webrtc.MediaEngine{}, DefaultCodecs()); err != nil {
		t.Fatalf("default codecs: %v", err)
	}
	err := registerCodecs(&webrtc.MediaEngine{}, []Codec{{MimeType: "text/plain", ClockRate: 1, PayloadType: 100}})
	if err == nil {
		t.Fatal("unknown media kind should be rejected")
	}
	if _, err := NewRouter(Options{Codecs: []Codec{{MimeType: "opus"}}}); err == nil {
		t.Error("router with a bare codec name should fail")
	}
}

func TestValidateListen(t *testing.T) {
	cases := []struct {
		name string
		lc   core.ListenConfig
		ok   bool
	}{
		{"ok", core.ListenConfig{ListenIPs: []core.ListenIP{{IP: "0.0.0.0"}}, EnableUDP: true}, true},
		{"no ips", core.ListenConfig{EnableUDP: true}, false},
		{"no protocols", core.ListenConfig{ListenIPs: []core.ListenIP{{IP: "0.0.0.0"}}}, false},
		{"bad ip", core.ListenConfig{ListenIPs: []core.ListenIP{{IP: "localhost"}}, EnableTCP: true}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateListen(tc.lc); (err == nil) != tc.ok {
				t.Errorf("validateListen = %v", err)
			}
		})
	}
}

func TestCreateTransportRejectsBadListenConfig(t *testing.T) {
	r, err := NewRouter(Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := r.CreateWebRtcTransport(context.Background(), core.ListenConfig{}); err == nil {
		t.Fatal("expected error")
	}
	r.Close()
	_, err = r.CreateWebRtcTransport(context.Background(), core.ListenConfig{ListenIPs: []core.ListenIP{{IP: "0.0.0.0"}}, EnableUDP: true})
	if !errors.Is(err, ErrRouterClosed) {
		t.Errorf("closed router: %v", err)
	}
}

func TestNetworkTypes(t *testing.T) {
	got := networkTypes(core.ListenConfig{EnableUDP: true, EnableTCP: true})
	if len(got) != 2 || got[0] != webrtc.NetworkTypeUDP4 || got[1] != webrtc.NetworkTypeTCP4 {
		t.Errorf("got %v", got)
	}
	if got := networkTypes(core.ListenConfig{EnableTCP: true}); len(got) != 1 || got[0] != webrtc.NetworkTypeTCP4 {
		t.Errorf("got %v", got)
	}
}

func TestIPFilter(t *testing.T) {
	all := ipFilter([]core.ListenIP{{IP: "0.0.0.0"}})
	if !all(net.ParseIP("10.1.2.3")) {
		t.Error("unspecified address admits all")
	}
	only := ipFilter([]core.ListenIP{{IP: "10.0.0.5", AnnouncedIP: "203.0.113.7"}})
	if !only(net.ParseIP("10.0.0.5")) || only(net.ParseIP("10.0.0.6")) {
		t.Error("specific address admits only itself")
	}
	if got := announcedIPs([]core.ListenIP{{IP: "10.0.0.5", AnnouncedIP: "203.0.113.7"}, {IP: "10.0.0.6"}}); len(got) != 1 || got[0] != "203.0.113.7" {
		t.Errorf("announced = %v", got)
	}
}

func TestSortUDPFirst(t *testing.T) {
	cs := []webrtc.ICECandidate{
		{Foundation: "t1", Protocol: webrtc.ICEProtocolTCP},
		{Foundation: "u1", Protocol: webrtc.ICEProtocolUDP},
		{Foundation: "t2", Protocol: webrtc.ICEProtocolTCP},
		{Foundation: "u2", Protocol: webrtc.ICEProtocolUDP},
	}
	sortUDPFirst(cs)
	var order []string
	for _, c := range cs {
		order = append(order, c.Foundation)
	}
	if strings.Join(order, ",") != "u1,u2,t1,t2" {
		t.Errorf("order = %v", order)
	}
}

func TestCandidateConversion(t *testing.T) {
	in := []webrtc.ICECandidate{{
		Foundation: "1",
		Priority:   2130706431,
		Address:    "192.0.2.10",
		Protocol:   webrtc.ICEProtocolUDP,
		Port:       40000,
		Typ:        webrtc.ICECandidateTypeHost,
		Component:  1,
	}}
	out := toICECandidates(in)
	want := domain.ICECandidate{Foundation: "1", Priority: 2130706431, IP: "192.0.2.10", Protocol: "udp", Port: 40000, Type: "host"}
	if len(out) != 1 || out[0] != want {
		t.Fatalf("out = %+v", out)
	}
	back, err := fromICECandidates(out)
	if err != nil {
		t.Fatal(err)
	}
	if back[0].Address != in[0].Address || back[0].Protocol != in[0].Protocol || back[0].Typ != in[0].Typ {
		t.Errorf("back = %+v", back[0])
	}

	if _, err := fromICECandidates([]domain.ICECandidate{{Protocol: "sctp", Type: "host"}}); !errors.Is(err, domain.ErrBadPayload) {
		t.Errorf("bad protocol: %v", err)
	}
	if _, err := fromICECandidates([]domain.ICECandidate{{Protocol: "udp", Type: "magic"}}); !errors.Is(err, domain.ErrBadPayload) {
		t.Errorf("bad type: %v", err)
	}
}

func TestDTLSParameters(t *testing.T) {
	if _, err := fromDTLSParameters(domain.DTLSParameters{Role: "client"}); !errors.Is(err, domain.ErrBadPayload) {
		t.Errorf("missing fingerprints: %v", err)
	}
	p, err := fromDTLSParameters(domain.DTLSParameters{Role: "server", Fingerprints: []domain.DTLSFingerprint{{Algorithm: "sha-256", Value: "AB"}}})
	if err != nil || p.Role != webrtc.DTLSRoleServer || len(p.Fingerprints) != 1 {
		t.Fatalf("p = %+v, %v", p, err)
	}
	if _, err := parseDTLSRole("boss"); err == nil {
		t.Error("unknown role should fail")
	}
	d := toDTLSParameters(webrtc.DTLSParameters{Role: webrtc.DTLSRoleAuto, Fingerprints: []webrtc.DTLSFingerprint{{Algorithm: "sha-256", Value: "AB"}}})
	if d.Role != "auto" || d.Fingerprints[0].Value != "AB" {
		t.Errorf("d = %+v", d)
	}
}

func TestDTLSStateMapping(t *testing.T) {
	cases := map[webrtc.DTLSTransportState]core.DTLSState{
		webrtc.DTLSTransportStateNew:        core.DTLSStateNew,
		webrtc.DTLSTransportStateConnecting: core.DTLSStateConnecting,
		webrtc.DTLSTransportStateConnected:  core.DTLSStateConnected,
		webrtc.DTLSTransportStateFailed:     core.DTLSStateFailed,
		webrtc.DTLSTransportStateClosed:     core.DTLSStateClosed,
	}
	for in, want := range cases {
		if got := dtlsState(in); got != want {
			t.Errorf("dtlsState(%s) = %s", in, got)
		}
	}
}

func TestBuildOffer(t *testing.T) {
	params := domain.TransportParameters{
		ID:             "t1",
		ICEParameters:  domain.ICEParameters{UsernameFragment: "ufragX", Password: "passwordpasswordpassword"},
		DTLSParameters: domain.DTLSParameters{Role: "auto", Fingerprints: []domain.DTLSFingerprint{{Algorithm: "sha-256", Value: "ab:cd"}}},
	}
	cands := []webrtc.ICECandidate{{
		Foundation: "1", Priority: 2130706431, Address: "192.0.2.10",
		Protocol: webrtc.ICEProtocolUDP, Port: 40000, Typ: webrtc.ICECandidateTypeHost, Component: 1,
	}}

	raw, err := buildOffer(params, cands, DefaultCodecs())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"a=ice-ufrag:ufragX", "a=fingerprint:sha-256 AB:CD", "192.0.2.10 40000 typ host", "a=group:BUNDLE 0 1", "opus/48000/2", "VP8/90000"} {
		if !strings.Contains(raw, want) {
			t.Errorf("offer lacks %q:\n%s", want, raw)
		}
	}

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(raw)); err != nil {
		t.Fatalf("offer does not parse: %v", err)
	}
	if len(parsed.MediaDescriptions) != 2 {
		t.Fatalf("%d media sections", len(parsed.MediaDescriptions))
	}
	for i, kind := range []string{"audio", "video"} {
		md := parsed.MediaDescriptions[i]
		if md.MediaName.Media != kind {
			t.Errorf("section %d is %s", i, md.MediaName.Media)
		}
		if _, ok := md.Attribute(sdp.AttrKeyRecvOnly); !ok {
			t.Errorf("%s section should be recvonly", kind)
		}
	}

	if _, err := buildOffer(params, cands, nil); err == nil {
		t.Error("offer without codecs should fail")
	}
}
