package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump owns the connection: events are handled one at a time in arrival
// order and the disconnect path runs when it returns.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sess *app.Session, c *WsSignalConn) {
	sid := sess.ID
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.OnDisconnect(sid)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		ctl.handleSignal(sess, data)
	}
}

func (ctl *SignalWSController) handleSignal(sess *app.Session, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		if err == nil {
			err = errors.New("missing event")
		}
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sess.ID)).Msg("bad json")
		ctl.sendError(sess, domain.ErrBadPayload, err.Error())
		return
	}

	switch env.Event {
	case domain.EventPing:
		ctl.handlePing(sess)
	case domain.EventWhoAmI:
		ctl.handleWhoAmI(sess)
	case domain.EventJoin, domain.EventJoinRoom:
		if ctl.Limiter != nil && !ctl.Limiter.Allow(sess.Token) {
			log.Warn().Str("module", "signal").Str("sid", string(sess.ID)).Str("client", sess.Token).Msg("join rate limited")
			ctl.sendError(sess, domain.ErrRateLimited, "too many joins, slow down")
			return
		}
		ctl.Orch.Handle(sess.ID, env.Event, env.Data)
	default:
		ctl.Orch.Handle(sess.ID, env.Event, env.Data)
	}
}

func (ctl *SignalWSController) sendError(sess *app.Session, err error, msg string) {
	_ = ctl.Orch.Relay.Send(sess.ID, domain.EventError, domain.ErrorPayload{
		Code:    domain.ErrorCode(err),
		Message: msg,
	})
}
