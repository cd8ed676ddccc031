package orch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/platform/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Orchestrator is the session coordinator. It owns no state of its own; each
// event is routed by the sender's current state to one handler.
type Orchestrator struct {
	Registry     *app.Registry
	Rooms        *app.RoomTable
	Relay        *app.Relay
	Sequencer    *app.Sequencer
	Directory    app.Directory
	Metrics      *metrics.Metrics
	MaxRoomIDLen int

	wg conc.WaitGroup
}

// Connect registers a freshly upgraded connection.
func (o *Orchestrator) Connect(sess *app.Session) {
	o.Registry.Bind(sess)
	o.Metrics.IncConnections()
}

// Handle processes one inbound event from sid. Events from the same
// connection must not be handled concurrently.
func (o *Orchestrator) Handle(sid domain.ConnectionID, event string, data json.RawMessage) {
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return
	}
	state := sess.State()
	h, ok := lookup(state, event)
	if !ok {
		o.reject(sess, event, fmt.Errorf("%w: %s while %s", domain.ErrUnexpectedEvent, event, state))
		return
	}
	if err := h(o, sess, data); err != nil {
		o.reject(sess, event, err)
	}
}

// OnDisconnect runs the disconnect path for sid. It is safe to call twice.
func (o *Orchestrator) OnDisconnect(sid domain.ConnectionID) {
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return
	}
	o.detach(sess, domain.StateDisconnected)
	o.Registry.Unbind(sid)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("disconnected")
}

// Shutdown closes every connection and waits for outstanding negotiations.
func (o *Orchestrator) Shutdown() {
	for _, sess := range o.Registry.Sessions() {
		sess.Signal().Close()
		o.detach(sess, domain.StateDisconnected)
	}
	o.Wait()
}

// Wait blocks until background negotiation work has finished.
func (o *Orchestrator) Wait() {
	if r := o.wg.WaitAndRecover(); r != nil {
		log.Error().Str("module", "orch").Str("panic", fmt.Sprint(r.Value)).Str("stack", string(r.Stack)).Msg("negotiation panicked")
	}
}

func (o *Orchestrator) reject(sess *app.Session, event string, err error) {
	log.Warn().Err(err).Str("module", "orch").Str("sid", string(sess.ID)).Str("event", event).Msg("rejected")
	if errors.Is(err, domain.ErrRoomNotFound) {
		_ = o.Relay.Send(sess.ID, domain.EventRoomNotFound, nil)
		return
	}
	_ = o.Relay.Send(sess.ID, domain.EventError, domain.ErrorPayload{
		Code:    domain.ErrorCode(err),
		Message: err.Error(),
	})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", domain.ErrBadPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadPayload, err)
	}
	return nil
}
