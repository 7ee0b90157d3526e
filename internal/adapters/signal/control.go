package signal

import (
	"context"

	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handlePing(_ context.Context, s *session, _ []byte) {
	ctl.send(s, protocol.TypePong, nil)
}

// handleLogout drops the user's mapping and rooms, then ends the connection.
// A socket already superseded by a reconnect only closes itself.
func (ctl *SignalWSController) handleLogout(ctx context.Context, s *session, _ []byte) {
	user := s.caller.UserID()
	log.Info().Str("module", "signal").Str("user", string(user)).Msg("logout")
	s.done = true
	if !ctl.releaseOwned(ctx, s) {
		log.Info().Str("module", "signal").Str("user", string(user)).Str("addr", string(s.caller.Addr)).Msg("logout from superseded connection")
		return
	}
	if err := ctl.Orch.Disconnect(ctx, user); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(user)).Msg("logout cleanup")
	}
}
