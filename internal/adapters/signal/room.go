package signal

import (
	"context"
	"fmt"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, s *session, data []byte) {
	req, err := protocol.DecodeRoomRequest(data)
	if err != nil {
		ctl.sendError(s, protocol.TypeJoinError, protocol.TypeJoin, req.RoomID, err)
		return
	}
	user := s.caller.UserID()
	if ctl.Limiter != nil && !ctl.Limiter.Allow(user) {
		log.Warn().Str("module", "signal").Str("user", string(user)).Msg("join rate limited")
		ctl.sendError(s, protocol.TypeJoinError, protocol.TypeJoin, req.RoomID,
			fmt.Errorf("%w: slow down", domain.ErrRateLimited))
		return
	}

	log.Info().Str("module", "signal").Str("user", string(user)).Str("room_id", string(req.RoomID)).Msg("join")
	if err := ctl.Orch.Join(ctx, s.caller, req.RoomID); err != nil {
		ctl.sendError(s, protocol.TypeJoinError, protocol.TypeJoin, req.RoomID, err)
	}
}

// handleLeave leaves one room; the connection stays open.
func (ctl *SignalWSController) handleLeave(ctx context.Context, s *session, data []byte) {
	req, err := protocol.DecodeRoomRequest(data)
	if err != nil {
		ctl.sendError(s, protocol.TypeLeaveError, protocol.TypeLeave, req.RoomID, err)
		return
	}
	log.Info().Str("module", "signal").Str("user", string(s.caller.UserID())).Str("room_id", string(req.RoomID)).Msg("leave")
	if err := ctl.Orch.Leave(ctx, s.caller, req.RoomID); err != nil {
		ctl.sendError(s, protocol.TypeLeaveError, protocol.TypeLeave, req.RoomID, err)
	}
}

func (ctl *SignalWSController) handleRoomParticipants(ctx context.Context, s *session, data []byte) {
	req, err := protocol.DecodeRoomRequest(data)
	if err != nil {
		ctl.sendError(s, protocol.TypeRoomParticipantsError, protocol.TypeGetRoomParticipants, req.RoomID, err)
		return
	}
	peers, err := ctl.Orch.RoomPeers(ctx, s.caller, req.RoomID)
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("user", string(s.caller.UserID())).Msg("room participants rejected")
		ctl.sendError(s, protocol.TypeRoomParticipantsError, protocol.TypeGetRoomParticipants, req.RoomID, err)
		return
	}
	ctl.send(s, protocol.TypeRoomParticipants, protocol.RoomParticipants{
		RoomID:       req.RoomID,
		Participants: peers,
	})
}
