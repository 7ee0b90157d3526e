package redisstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/redis/go-redis/v9"
)

func membersKey(room domain.RoomID) string {
	return "meshcall:room:" + string(room) + ":members"
}

// Membership is a core.MembershipStore: one Redis set per room. Redis drops a
// set once its last member is removed.
type Membership struct {
	rdb redis.UniversalClient
}

func NewMembership(rdb redis.UniversalClient) *Membership {
	return &Membership{rdb: rdb}
}

func (m *Membership) Add(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	if err := m.rdb.SAdd(ctx, membersKey(room), string(user)).Err(); err != nil {
		return fmt.Errorf("%w: add %s to %s: %v", domain.ErrStoreUnavailable, user, room, err)
	}
	return nil
}

func (m *Membership) Remove(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	if err := m.rdb.SRem(ctx, membersKey(room), string(user)).Err(); err != nil {
		return fmt.Errorf("%w: remove %s from %s: %v", domain.ErrStoreUnavailable, user, room, err)
	}
	return nil
}

// Members returns the room's set sorted by id.
func (m *Membership) Members(ctx context.Context, room domain.RoomID) ([]domain.UserID, error) {
	vals, err := m.rdb.SMembers(ctx, membersKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: members of %s: %v", domain.ErrStoreUnavailable, room, err)
	}
	sort.Strings(vals)
	out := make([]domain.UserID, len(vals))
	for i, v := range vals {
		out[i] = domain.UserID(v)
	}
	return out, nil
}
