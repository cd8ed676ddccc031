package orch

import (
	"encoding/json"

	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/domain"
)

type handler func(o *Orchestrator, sess *app.Session, data json.RawMessage) error

// dispatch lists the events each state accepts. Anything else is rejected.
var dispatch = map[domain.State]map[string]handler{
	domain.StateUnjoined: {
		domain.EventJoin: handleJoin,
	},
	domain.StateRoleAssigned: {
		domain.EventJoinRoom:     handleJoinRoom,
		domain.EventNegotiate:    handleNegotiate,
		domain.EventICECandidate: handleICECandidate,
		domain.EventLeave:        handleLeave,
	},
	domain.StateNegotiating: {
		domain.EventConnectTransport: handleConnectTransport,
		domain.EventICECandidate:     handleICECandidate,
		domain.EventLeave:            handleLeave,
	},
	domain.StateActive: {
		domain.EventICECandidate: handleICECandidate,
		domain.EventLeave:        handleLeave,
	},
	domain.StateDisconnected: {},
}

func lookup(state domain.State, event string) (handler, bool) {
	h, ok := dispatch[state][event]
	return h, ok
}
