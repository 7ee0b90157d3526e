package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join adds the caller to room. Order is fixed: room directory, membership
// store, ack to the joiner, then the room-wide presence broadcast. A directory
// rejection returns before anything else is touched.
func (o *Orchestrator) Join(ctx context.Context, caller core.Caller, room domain.RoomID) error {
	user := caller.UserID()
	logger := log.With().Str("module", "orch").Str("user", string(user)).Str("room", string(room)).Logger()

	if _, err := o.Rooms.AddParticipant(ctx, room, user); err != nil {
		logger.Info().Err(err).Str("kind", domain.ErrorKind(err)).Msg("join rejected")
		return err
	}
	if err := o.Members.Add(ctx, room, user); err != nil {
		logger.Error().Err(err).Msg("membership add failed, undoing directory join")
		if _, undoErr := o.Rooms.RemoveParticipant(ctx, room, user); undoErr != nil {
			logger.Error().Err(undoErr).Msg("undo directory join")
		}
		return fmt.Errorf("join %s: %w", room, storeErr(err))
	}

	_ = o.send(ctx, caller.Addr, protocol.TypeJoinSuccess, protocol.RoomAck{
		RoomID:  room,
		Message: fmt.Sprintf("Successfully joined room %s", room),
	})
	logger.Info().Msg("joined room")

	o.Broadcast(ctx, room)
	return nil
}

// Leave mirrors Join: directory, store, ack to the leaver, then broadcast to
// whoever remains.
func (o *Orchestrator) Leave(ctx context.Context, caller core.Caller, room domain.RoomID) error {
	return o.leave(ctx, caller.UserID(), room, caller.Addr)
}

func (o *Orchestrator) leave(ctx context.Context, user domain.UserID, room domain.RoomID, ackTo core.ConnAddr) error {
	logger := log.With().Str("module", "orch").Str("user", string(user)).Str("room", string(room)).Logger()

	if _, err := o.Rooms.RemoveParticipant(ctx, room, user); err != nil {
		logger.Info().Err(err).Str("kind", domain.ErrorKind(err)).Msg("leave rejected")
		return err
	}
	if err := o.Members.Remove(ctx, room, user); err != nil {
		logger.Error().Err(err).Msg("membership remove failed")
		return fmt.Errorf("leave %s: %w", room, storeErr(err))
	}

	if ackTo != "" {
		_ = o.send(ctx, ackTo, protocol.TypeLeaveSuccess, protocol.RoomAck{
			RoomID:  room,
			Message: fmt.Sprintf("Successfully left room %s", room),
		})
	}
	logger.Info().Msg("left room")

	o.Broadcast(ctx, room)
	return nil
}

// Disconnect removes user from every room the directory still lists for it.
// A failing room is logged and skipped.
func (o *Orchestrator) Disconnect(ctx context.Context, user domain.UserID) error {
	rooms, err := o.Rooms.FindRoomsForUser(ctx, user)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("user", string(user)).Msg("disconnect: list rooms")
		return fmt.Errorf("disconnect %s: %w", user, err)
	}

	left := 0
	for _, room := range rooms {
		if err := o.leave(ctx, user, room, ""); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("user", string(user)).Str("room", string(room)).Msg("disconnect: leave failed")
			continue
		}
		left++
	}
	log.Info().Str("module", "orch").Str("user", string(user)).Int("rooms", len(rooms)).Int("left", left).Msg("disconnect cleanup done")
	return nil
}
