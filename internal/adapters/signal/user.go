package signal

import (
	"context"

	"github.com/dkeye/meshcall/internal/protocol"
)

func (ctl *SignalWSController) handleWhoAmI(_ context.Context, s *session, _ []byte) {
	ctl.send(s, protocol.TypeWhoAmI, protocol.WhoAmI{
		UserID:   s.caller.UserID(),
		Username: s.caller.Identity.Username,
	})
}
