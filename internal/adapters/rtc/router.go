// Package rtc implements the media engine on pion's ORTC API: one ICE
// gatherer, ICE transport and DTLS transport per server-side transport.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/google/uuid"
	"github.com/pion/ice/v4"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrRouterClosed = errors.New("router closed")

// Codec is one entry of the supported codec set.
type Codec struct {
	MimeType    string
	ClockRate   uint32
	Channels    uint16
	PayloadType uint8
	SDPFmtpLine string
}

func DefaultCodecs() []Codec {
	return []Codec{
		{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, PayloadType: 111, SDPFmtpLine: "minptime=10;useinbandfec=1"},
		{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000, PayloadType: 96},
	}
}

type Options struct {
	Codecs     []Codec
	ICEServers []string
	// EnableTCP opens the shared ICE-TCP listener on TCPPort; 0 picks an ephemeral port.
	EnableTCP  bool
	TCPPort    int
	UDPPortMin uint16
	UDPPortMax uint16
}

// Router creates transports that share one codec set.
type Router struct {
	codecs     []Codec
	iceServers []webrtc.ICEServer
	udpMin     uint16
	udpMax     uint16

	tcpListener net.Listener
	tcpMux      ice.TCPMux

	mu         sync.Mutex
	closed     bool
	transports map[string]*Transport
}

func NewRouter(opts Options) (*Router, error) {
	codecs := opts.Codecs
	if len(codecs) == 0 {
		codecs = DefaultCodecs()
	}
	if err := registerCodecs(&webrtc.MediaEngine{}, codecs); err != nil {
		return nil, err
	}
	r := &Router{
		codecs:     codecs,
		udpMin:     opts.UDPPortMin,
		udpMax:     opts.UDPPortMax,
		transports: make(map[string]*Transport),
	}
	if len(opts.ICEServers) > 0 {
		r.iceServers = []webrtc.ICEServer{{URLs: opts.ICEServers}}
	}
	if opts.EnableTCP {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.TCPPort))
		if err != nil {
			return nil, fmt.Errorf("ice-tcp listen: %w", err)
		}
		r.tcpListener = l
		r.tcpMux = webrtc.NewICETCPMux(logging.NewDefaultLoggerFactory().NewLogger("ice-tcp"), l, 8)
		log.Info().Str("module", "rtc").Str("addr", l.Addr().String()).Msg("ice-tcp listening")
	}
	log.Info().Str("module", "rtc").Int("codecs", len(codecs)).Msg("router ready")
	return r, nil
}

func (r *Router) CreateWebRtcTransport(ctx context.Context, lc core.ListenConfig) (core.Transport, error) {
	if err := validateListen(lc); err != nil {
		return nil, err
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrRouterClosed
	}

	api, err := r.newAPI(lc)
	if err != nil {
		return nil, err
	}
	t, err := newTransport(ctx, uuid.NewString(), api, r.iceServers, lc.PreferUDP, r.codecs)
	if err != nil {
		return nil, err
	}
	t.onClose = r.forget

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = t.Close()
		return nil, ErrRouterClosed
	}
	r.transports[t.ID()] = t
	r.mu.Unlock()

	log.Info().Str("module", "rtc").Str("transport", t.ID()).Int("candidates", len(t.params.ICECandidates)).Msg("transport created")
	return t, nil
}

// Close releases every transport and the shared TCP listener.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ts := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		ts = append(ts, t)
	}
	r.mu.Unlock()

	var errs []error
	for _, t := range ts {
		errs = append(errs, t.Close())
	}
	if r.tcpMux != nil {
		errs = append(errs, r.tcpMux.Close())
	}
	if r.tcpListener != nil {
		if err := r.tcpListener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	log.Info().Str("module", "rtc").Int("transports", len(ts)).Msg("router closed")
	return errors.Join(errs...)
}

// Len reports the number of open transports.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transports)
}

func (r *Router) forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transports, id)
}

func (r *Router) newAPI(lc core.ListenConfig) (*webrtc.API, error) {
	se := webrtc.SettingEngine{}
	se.SetNetworkTypes(networkTypes(lc))
	se.SetIPFilter(ipFilter(lc.ListenIPs))
	if hasLoopback(lc.ListenIPs) {
		se.SetIncludeLoopbackCandidate(true)
	}
	if announced := announcedIPs(lc.ListenIPs); len(announced) > 0 {
		se.SetNAT1To1IPs(announced, webrtc.ICECandidateTypeHost)
	}
	if r.udpMin > 0 && r.udpMax > 0 {
		if err := se.SetEphemeralUDPPortRange(r.udpMin, r.udpMax); err != nil {
			return nil, fmt.Errorf("udp port range: %w", err)
		}
	}
	if lc.EnableTCP && r.tcpMux != nil {
		se.SetICETCPMux(r.tcpMux)
	}

	me := &webrtc.MediaEngine{}
	if err := registerCodecs(me, r.codecs); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se), webrtc.WithMediaEngine(me)), nil
}

func validateListen(lc core.ListenConfig) error {
	if len(lc.ListenIPs) == 0 {
		return errors.New("no listen ips")
	}
	if !lc.EnableUDP && !lc.EnableTCP {
		return errors.New("udp and tcp both disabled")
	}
	for _, l := range lc.ListenIPs {
		if net.ParseIP(l.IP) == nil {
			return fmt.Errorf("bad listen ip %q", l.IP)
		}
	}
	return nil
}

func networkTypes(lc core.ListenConfig) []webrtc.NetworkType {
	var out []webrtc.NetworkType
	if lc.EnableUDP {
		out = append(out, webrtc.NetworkTypeUDP4)
	}
	if lc.EnableTCP {
		out = append(out, webrtc.NetworkTypeTCP4)
	}
	return out
}

// ipFilter admits local addresses matching a listen ip. An unspecified
// address admits everything.
func ipFilter(ips []core.ListenIP) func(net.IP) bool {
	allowed := make([]net.IP, 0, len(ips))
	for _, l := range ips {
		ip := net.ParseIP(l.IP)
		if ip == nil {
			continue
		}
		if ip.IsUnspecified() {
			return func(net.IP) bool { return true }
		}
		allowed = append(allowed, ip)
	}
	return func(ip net.IP) bool {
		for _, a := range allowed {
			if a.Equal(ip) {
				return true
			}
		}
		return false
	}
}

// hasLoopback reports whether a listen ip is a loopback address. pion skips
// loopback interfaces unless told otherwise.
func hasLoopback(ips []core.ListenIP) bool {
	for _, l := range ips {
		if ip := net.ParseIP(l.IP); ip != nil && ip.IsLoopback() {
			return true
		}
	}
	return false
}

func announcedIPs(ips []core.ListenIP) []string {
	var out []string
	for _, l := range ips {
		if l.AnnouncedIP != "" {
			out = append(out, l.AnnouncedIP)
		}
	}
	return out
}

func codecKind(mime string) (webrtc.RTPCodecType, error) {
	m := strings.ToLower(mime)
	switch {
	case strings.HasPrefix(m, "audio/"):
		return webrtc.RTPCodecTypeAudio, nil
	case strings.HasPrefix(m, "video/"):
		return webrtc.RTPCodecTypeVideo, nil
	}
	return 0, fmt.Errorf("codec %q: unknown media kind", mime)
}

func registerCodecs(me *webrtc.MediaEngine, codecs []Codec) error {
	for _, c := range codecs {
		kind, err := codecKind(c.MimeType)
		if err != nil {
			return err
		}
		err = me.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    c.MimeType,
				ClockRate:   c.ClockRate,
				Channels:    c.Channels,
				SDPFmtpLine: c.SDPFmtpLine,
			},
			PayloadType: webrtc.PayloadType(c.PayloadType),
		}, kind)
		if err != nil {
			return fmt.Errorf("register %s: %w", c.MimeType, err)
		}
	}
	return nil
}
