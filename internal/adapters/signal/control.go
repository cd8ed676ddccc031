package signal

import (
	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/domain"
)

func (ctl *SignalWSController) handlePing(sess *app.Session) {
	_ = ctl.Orch.Relay.Send(sess.ID, domain.EventPong, nil)
}

func (ctl *SignalWSController) handleWhoAmI(sess *app.Session) {
	snap := sess.Snapshot()
	_ = ctl.Orch.Relay.Send(sess.ID, domain.EventWhoAmI, domain.WhoAmIPayload{
		SocketID: sess.ID,
		Role:     snap.Role,
		RoomID:   snap.Room,
		State:    snap.State.String(),
	})
}
