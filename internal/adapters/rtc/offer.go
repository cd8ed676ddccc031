package rtc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// buildOffer renders one receive-only media section per codec kind, bundled
// over the transport's single ICE/DTLS path.
func buildOffer(p domain.TransportParameters, cands []webrtc.ICECandidate, codecs []Codec) (string, error) {
	d, err := sdp.NewJSEPSessionDescription(false)
	if err != nil {
		return "", fmt.Errorf("offer: %w", err)
	}

	var mids []string
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		var kindCodecs []Codec
		for _, c := range codecs {
			if k, err := codecKind(c.MimeType); err == nil && k == kind {
				kindCodecs = append(kindCodecs, c)
			}
		}
		if len(kindCodecs) == 0 {
			continue
		}

		mid := strconv.Itoa(len(mids))
		mids = append(mids, mid)
		m := sdp.NewJSEPMediaDescription(kind.String(), nil).
			WithValueAttribute(sdp.AttrKeyMID, mid).
			WithPropertyAttribute(sdp.AttrKeyRTCPMux).
			WithPropertyAttribute(sdp.AttrKeyRTCPRsize).
			WithPropertyAttribute(sdp.AttrKeyRecvOnly).
			WithICECredentials(p.ICEParameters.UsernameFragment, p.ICEParameters.Password).
			WithValueAttribute(sdp.AttrKeyConnectionSetup, sdp.ConnectionRoleActpass.String())
		for _, f := range p.DTLSParameters.Fingerprints {
			m = m.WithFingerprint(f.Algorithm, strings.ToUpper(f.Value))
		}
		for _, c := range kindCodecs {
			name := c.MimeType[strings.Index(c.MimeType, "/")+1:]
			m = m.WithCodec(c.PayloadType, name, c.ClockRate, c.Channels, c.SDPFmtpLine)
		}
		for _, c := range cands {
			m = m.WithCandidate(strings.TrimPrefix(c.ToJSON().Candidate, "candidate:"))
		}
		m = m.WithPropertyAttribute(sdp.AttrKeyEndOfCandidates)
		d = d.WithMedia(m)
	}
	if len(mids) == 0 {
		return "", fmt.Errorf("offer: no codecs")
	}
	d = d.WithValueAttribute(sdp.AttrKeyGroup, "BUNDLE "+strings.Join(mids, " "))

	out, err := d.Marshal()
	if err != nil {
		return "", fmt.Errorf("offer: %w", err)
	}
	return string(out), nil
}
