package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
)

func handleNegotiate(o *Orchestrator, sess *app.Session, _ json.RawMessage) error {
	if r := sess.Role(); r != domain.RoleBroadcaster {
		return fmt.Errorf("%w: negotiate as %s", domain.ErrUnexpectedEvent, r)
	}
	return o.startNegotiation(sess)
}

func handleConnectTransport(o *Orchestrator, sess *app.Session, data json.RawMessage) error {
	var p domain.ConnectTransportPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	t := sess.Transport()
	if t == nil || t.ID() != p.TransportID {
		return fmt.Errorf("%w: %q", domain.ErrUnknownTransport, p.TransportID)
	}
	o.wg.Go(func() {
		if err := t.Connect(sess.Context(), p); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(sess.ID)).Str("transport", t.ID()).Msg("connect transport")
			if sess.Transport() == t {
				o.reject(sess, domain.EventConnectTransport, fmt.Errorf("%w: %v", domain.ErrNegotiationFailed, err))
			}
		}
	})
	return nil
}

func handleICECandidate(o *Orchestrator, sess *app.Session, data json.RawMessage) error {
	var p domain.ICECandidatePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if len(p.Candidate) == 0 {
		return fmt.Errorf("%w: missing candidate", domain.ErrBadPayload)
	}
	return o.Relay.Candidate(sess, p)
}

// startNegotiation moves sess to Negotiating and runs the sequencer in the
// background. Later events from sess are handled while it waits.
func (o *Orchestrator) startNegotiation(sess *app.Session) error {
	ctx, epoch, ok := sess.BeginNegotiation()
	if !ok {
		return fmt.Errorf("%w: negotiation while %s", domain.ErrUnexpectedEvent, sess.State())
	}
	snap := sess.Snapshot()
	o.wg.Go(func() { o.negotiate(ctx, sess, epoch, snap) })
	return nil
}

func (o *Orchestrator) negotiate(ctx context.Context, sess *app.Session, epoch uint64, snap app.SessionSnapshot) {
	t, err := o.Sequencer.Negotiate(ctx, sess.ID, func(t core.Transport) error {
		return o.attach(sess, epoch, snap, t)
	})
	if err != nil {
		o.failNegotiation(sess, epoch, snap, err)
		return
	}
	o.completeNegotiation(sess, epoch, t)
}

func (o *Orchestrator) attach(sess *app.Session, epoch uint64, snap app.SessionSnapshot, t core.Transport) error {
	if snap.Role == domain.RoleViewer {
		if err := o.Rooms.SetViewerTransport(snap.Room, sess.ID, t); err != nil {
			return err
		}
	}
	if err := sess.Attach(epoch, t); err != nil {
		if snap.Role == domain.RoleViewer {
			o.Rooms.ClearViewerTransport(snap.Room, sess.ID, t)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) failNegotiation(sess *app.Session, epoch uint64, snap app.SessionSnapshot, err error) {
	logger := log.With().Str("module", "orch").Str("sid", string(sess.ID)).Str("room", string(snap.Room)).Logger()

	_, t, ok := sess.FailNegotiation(epoch)
	if t != nil && snap.Role == domain.RoleViewer {
		o.Rooms.ClearViewerTransport(snap.Room, sess.ID, t)
	}
	if !ok || errors.Is(err, domain.ErrStaleNegotiation) || errors.Is(err, context.Canceled) {
		o.Metrics.IncNegotiations("abandoned")
		logger.Debug().Err(err).Msg("negotiation abandoned")
		return
	}

	reason := failureReason(err)
	o.Metrics.IncNegotiations(reason)
	logger.Warn().Err(err).Str("reason", reason).Msg("negotiation failed")

	p := domain.NegotiationFailedPayload{Reason: reason}
	if t != nil {
		p.TransportID = t.ID()
	}
	_ = o.Relay.Send(sess.ID, domain.EventNegotiationFailed, p)
}

func (o *Orchestrator) completeNegotiation(sess *app.Session, epoch uint64, t core.Transport) {
	snap, ok := sess.Activate(epoch)
	if !ok {
		// Reset while the channel came up; the transport is no longer owned.
		_ = t.Close()
		o.Metrics.IncNegotiations("abandoned")
		return
	}
	o.Metrics.IncNegotiations("connected")
	logger := log.With().Str("module", "orch").Str("sid", string(sess.ID)).Str("room", string(snap.Room)).Str("transport", t.ID()).Logger()
	logger.Info().Str("role", string(snap.Role)).Msg("transport active")

	switch snap.Role {
	case domain.RoleBroadcaster:
		offer, err := t.CreateOffer()
		if err != nil {
			logger.Error().Err(err).Msg("create offer")
			o.reject(sess, domain.EventOffer, fmt.Errorf("%w: offer: %v", domain.ErrNegotiationFailed, err))
		} else {
			_ = o.Relay.Send(sess.ID, domain.EventOffer, domain.OfferPayload{TransportID: t.ID(), Offer: offer})
		}
		o.Relay.ToViewers(snap.Room, domain.EventNewTransport, domain.NewTransportPayload{ID: t.ID()})
	case domain.RoleViewer:
		err := o.Relay.ToBroadcaster(snap.Room, domain.EventViewerConnected, domain.ViewerConnectedPayload{SocketID: sess.ID})
		if err != nil {
			logger.Debug().Err(err).Msg("viewer connected without broadcaster")
		}
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrTransportCreationFailed):
		return domain.CodeTransportCreationFailed
	case errors.Is(err, domain.ErrNegotiationTimeout):
		return domain.CodeNegotiationTimeout
	}
	return domain.CodeNegotiationFailed
}
