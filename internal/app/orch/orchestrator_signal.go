package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Relay forwards one signaling message to exactly one peer. The sender is
// always the caller's authenticated identity, and co-membership is checked on
// every message so removing a user mid-call stops its signaling at once.
func (o *Orchestrator) Relay(ctx context.Context, caller core.Caller, sig protocol.Signal) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	from := caller.Identity
	to := sig.Recipient()
	room := sig.Room()

	if err := o.authorize(ctx, room, from.UserID, to); err != nil {
		log.Info().Err(err).Str("module", "orch").Str("kind", sig.Kind()).
			Str("from", string(from.UserID)).Str("to", string(to)).Str("room", string(room)).
			Msg("signal rejected")
		return err
	}

	addr, err := o.Registry.Lookup(ctx, to)
	if err != nil {
		return fmt.Errorf("%s to %s: %w", sig.Kind(), to, domain.ErrNotConnected)
	}

	typ, payload := sig.Received(from)
	if err := o.send(ctx, addr, typ, payload); err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			return fmt.Errorf("%s to %s: %w", sig.Kind(), to, err)
		}
		return fmt.Errorf("%s to %s: %w: %v", sig.Kind(), to, domain.ErrNotConnected, err)
	}
	log.Debug().Str("module", "orch").Str("kind", sig.Kind()).
		Str("from", string(from.UserID)).Str("to", string(to)).Msg("signal relayed")
	return nil
}

// authorize checks that sender and recipient are both current participants of
// room according to the room directory.
func (o *Orchestrator) authorize(ctx context.Context, room domain.RoomID, from, to domain.UserID) error {
	if from == to {
		return fmt.Errorf("%w: cannot signal yourself", domain.ErrInvalidPayload)
	}
	participants, err := o.Rooms.Participants(ctx, room)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return fmt.Errorf("%w: %v", domain.ErrNotAuthorized, err)
		}
		return err
	}
	var fromIn, toIn bool
	for _, p := range participants {
		fromIn = fromIn || p == from
		toIn = toIn || p == to
	}
	if !fromIn {
		return fmt.Errorf("%w: %s is not a participant of room %s", domain.ErrNotAuthorized, from, room)
	}
	if !toIn {
		return fmt.Errorf("%w: %s is not a participant of room %s", domain.ErrNotAuthorized, to, room)
	}
	return nil
}
