package orch

import (
	"context"
	"fmt"
	"sort"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Broadcast sends the room's full, enriched participant list to every member
// that currently has a connection. Each update replaces the client's list.
func (o *Orchestrator) Broadcast(ctx context.Context, room domain.RoomID) {
	ids, err := o.Members.Members(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("room", string(room)).Msg("broadcast: read members")
		return
	}
	participants, err := o.enrich(ctx, room, ids)
	if err != nil {
		// An empty replacement list would wipe every client's view, so skip.
		log.Error().Err(err).Str("module", "orch").Str("room", string(room)).Msg("broadcast: resolve profiles")
		return
	}

	f, err := protocol.Encode(protocol.TypeParticipantsUpdate, protocol.ParticipantsUpdate{
		RoomID:       room,
		Participants: participants,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("broadcast: encode")
		return
	}

	addrs := o.Registry.LookupMany(ctx, ids)
	sent := 0
	for _, id := range ids {
		addr, ok := addrs[id]
		if !ok {
			continue
		}
		if err := o.Hub.Deliver(ctx, addr, f); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("user", string(id)).Msg("broadcast: deliver")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "orch").Str("room", string(room)).Int("members", len(ids)).Int("sent_to", sent).Msg("participants update")
}

// enrich resolves ids with one directory call. Ids the directory does not
// know are dropped; the store and directory may briefly disagree.
func (o *Orchestrator) enrich(ctx context.Context, room domain.RoomID, ids []domain.UserID) ([]domain.Participant, error) {
	out := make([]domain.Participant, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := o.Users.ResolveMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve %d users: %w", len(ids), err)
	}
	byID := make(map[domain.UserID]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			log.Warn().Str("module", "orch").Str("room", string(room)).Str("user", string(id)).Msg("dropping unresolved participant")
			continue
		}
		out = append(out, domain.NewParticipant(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
