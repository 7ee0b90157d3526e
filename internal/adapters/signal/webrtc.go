package signal

import (
	"context"
	"errors"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleRelay forwards an offer, answer or ICE candidate. Bad input and
// membership failures go back as webrtc-validation-error, everything else as
// webrtc-error.
func (ctl *SignalWSController) handleRelay(ctx context.Context, s *session, data []byte) {
	typ, _ := protocol.ParseType(data)
	sig, err := protocol.DecodeSignal(typ, data)
	if err != nil {
		ctl.sendError(s, protocol.TypeValidationError, typ, "", err)
		return
	}
	if err := ctl.Orch.Relay(ctx, s.caller, sig); err != nil {
		ctl.sendError(s, relayErrorType(err), typ, sig.Room(), err)
	}
}

// handleHangUp is best effort: failures are only logged.
func (ctl *SignalWSController) handleHangUp(ctx context.Context, s *session, data []byte) {
	sig, err := protocol.DecodeSignal(protocol.TypeHangUp, data)
	if err == nil {
		err = ctl.Orch.Relay(ctx, s.caller, sig)
	}
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("user", string(s.caller.UserID())).Msg("hang-up not delivered")
	}
}

func relayErrorType(err error) string {
	if errors.Is(err, domain.ErrInvalidPayload) || errors.Is(err, domain.ErrNotAuthorized) {
		return protocol.TypeValidationError
	}
	return protocol.TypeWebRTCError
}
