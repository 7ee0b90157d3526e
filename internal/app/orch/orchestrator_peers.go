package orch

import (
	"context"
	"fmt"
	"sort"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

// RoomPeers lists the caller's reachable room mates, used by clients to pick
// mesh-call targets. The caller and members without a connection are left
// out. The whole query is bounded by PeersTimeout.
func (o *Orchestrator) RoomPeers(ctx context.Context, caller core.Caller, room domain.RoomID) ([]domain.Participant, error) {
	timeout := o.PeersTimeout
	if timeout <= 0 {
		timeout = DefaultPeersTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		peers []domain.Participant
		err   error
	}
	done := make(chan result, 1)
	go func() {
		peers, err := o.roomPeers(ctx, caller, room)
		done <- result{peers, err}
	}()

	select {
	case r := <-done:
		return r.peers, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("timeout getting room participants: %w", ctx.Err())
	}
}

func (o *Orchestrator) roomPeers(ctx context.Context, caller core.Caller, room domain.RoomID) ([]domain.Participant, error) {
	participants, err := o.Rooms.Participants(ctx, room)
	if err != nil {
		return nil, err
	}
	self := caller.UserID()
	others := make([]domain.UserID, 0, len(participants))
	member := false
	for _, p := range participants {
		if p == self {
			member = true
			continue
		}
		others = append(others, p)
	}
	if !member {
		return nil, fmt.Errorf("%w: %s is not a participant of room %s", domain.ErrNotAuthorized, self, room)
	}

	addrs := o.Registry.LookupMany(ctx, others)
	reachable := make([]domain.UserID, 0, len(addrs))
	for _, id := range others {
		if _, ok := addrs[id]; ok {
			reachable = append(reachable, id)
		}
	}
	peers, err := o.enrich(ctx, room, reachable)
	if err != nil {
		return nil, err
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers, nil
}
