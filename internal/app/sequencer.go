package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultNegotiationTimeout   = 30 * time.Second
	DefaultMaxPendingTransports = 64
)

// Notifier is the addressable send the sequencer pushes parameters through.
type Notifier interface {
	Send(to domain.ConnectionID, event string, payload any) error
}

// Sequencer drives one transport from creation to a connected secure channel.
type Sequencer struct {
	router  core.MediaRouter
	listen  core.ListenConfig
	timeout time.Duration
	sem     *semaphore.Weighted
	notify  Notifier
}

func NewSequencer(router core.MediaRouter, listen core.ListenConfig, timeout time.Duration, maxPending int64, notify Notifier) *Sequencer {
	if timeout <= 0 {
		timeout = DefaultNegotiationTimeout
	}
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingTransports
	}
	return &Sequencer{
		router:  router,
		listen:  listen,
		timeout: timeout,
		sem:     semaphore.NewWeighted(maxPending),
		notify:  notify,
	}
}

// Negotiate creates a transport for sid, hands it to attach, sends its
// parameters to sid and waits for DTLS to connect. On any failure the
// transport is closed before returning.
func (s *Sequencer) Negotiate(ctx context.Context, sid domain.ConnectionID, attach func(core.Transport) error) (core.Transport, error) {
	logger := log.With().Str("module", "app.sequencer").Str("sid", string(sid)).Logger()

	t, err := s.create(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("create transport")
		return nil, err
	}
	logger = logger.With().Str("transport", t.ID()).Logger()

	connected := make(chan struct{})
	failed := make(chan core.DTLSState, 1)
	var once sync.Once
	t.OnDTLSStateChange(func(st core.DTLSState) {
		logger.Debug().Str("dtls_state", string(st)).Msg("dtls state")
		switch st {
		case core.DTLSStateConnected:
			once.Do(func() { close(connected) })
		case core.DTLSStateFailed, core.DTLSStateClosed:
			select {
			case failed <- st:
			default:
			}
		}
	})

	if err := attach(t); err != nil {
		release(t)
		return nil, err
	}
	if err := s.notify.Send(sid, domain.EventTransportParameters, t.Parameters()); err != nil {
		release(t)
		return nil, fmt.Errorf("%w: send parameters: %v", domain.ErrNegotiationFailed, err)
	}
	logger.Info().Msg("transport parameters sent, awaiting dtls")

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-connected:
		logger.Info().Msg("dtls connected")
		return t, nil
	case st := <-failed:
		release(t)
		return nil, fmt.Errorf("%w: dtls %s", domain.ErrNegotiationFailed, st)
	case <-timer.C:
		release(t)
		logger.Warn().Dur("timeout", s.timeout).Msg("dtls wait expired")
		return nil, fmt.Errorf("%w after %s", domain.ErrNegotiationTimeout, s.timeout)
	case <-ctx.Done():
		release(t)
		return nil, ctx.Err()
	}
}

func (s *Sequencer) create(ctx context.Context) (core.Transport, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	t, err := s.router.CreateWebRtcTransport(ctx, s.listen)
	if err != nil {
		if t != nil {
			release(t)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportCreationFailed, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: engine returned no transport", domain.ErrTransportCreationFailed)
	}
	if ctx.Err() != nil {
		release(t)
		return nil, ctx.Err()
	}
	return t, nil
}

func release(t core.Transport) {
	if err := t.Close(); err != nil {
		log.Error().Err(err).Str("module", "app.sequencer").Str("transport", t.ID()).Msg("transport close")
	}
}
