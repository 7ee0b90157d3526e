// Package redisstore backs the connection registry, the room membership store
// and the cross-node delivery bus with Redis, so every node sees the same
// mappings.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const socketsKey = "meshcall:user:sockets"

// releaseScript deletes the field only while it still holds ARGV[2].
var releaseScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

// Registry is a core.ConnectionRegistry over one Redis hash: user id to
// connection address.
type Registry struct {
	rdb redis.UniversalClient
}

func NewRegistry(rdb redis.UniversalClient) *Registry {
	return &Registry{rdb: rdb}
}

func (r *Registry) Bind(ctx context.Context, user domain.UserID, addr core.ConnAddr) error {
	prev, err := r.rdb.HGet(ctx, socketsKey, string(user)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Debug().Err(err).Str("module", "redis").Msg("read previous mapping")
	}
	if err := r.rdb.HSet(ctx, socketsKey, string(user), string(addr)).Err(); err != nil {
		return fmt.Errorf("%w: bind %s: %v", domain.ErrStoreUnavailable, user, err)
	}
	ev := log.Info().Str("module", "redis").Str("user", string(user)).Str("addr", string(addr))
	if prev != "" && prev != string(addr) {
		ev = ev.Str("replaced", prev)
	}
	ev.Msg("bound connection")
	return nil
}

func (r *Registry) Lookup(ctx context.Context, user domain.UserID) (core.ConnAddr, error) {
	addr, err := r.rdb.HGet(ctx, socketsKey, string(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotConnected
	}
	if err != nil {
		log.Error().Err(err).Str("module", "redis").Str("user", string(user)).Msg("lookup failed")
		return "", domain.ErrNotConnected
	}
	return core.ConnAddr(addr), nil
}

// LookupMany reads every mapping with one HMGET. On a store error the result
// is empty.
func (r *Registry) LookupMany(ctx context.Context, users []domain.UserID) map[domain.UserID]core.ConnAddr {
	out := make(map[domain.UserID]core.ConnAddr, len(users))
	if len(users) == 0 {
		return out
	}
	fields := make([]string, len(users))
	for i, u := range users {
		fields[i] = string(u)
	}
	vals, err := r.rdb.HMGet(ctx, socketsKey, fields...).Result()
	if err != nil {
		log.Error().Err(err).Str("module", "redis").Int("users", len(users)).Msg("lookup many failed")
		return out
	}
	for i, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			out[users[i]] = core.ConnAddr(s)
		}
	}
	return out
}

func (r *Registry) Unbind(ctx context.Context, user domain.UserID) error {
	n, err := r.rdb.HDel(ctx, socketsKey, string(user)).Result()
	if err != nil {
		return fmt.Errorf("%w: unbind %s: %v", domain.ErrStoreUnavailable, user, err)
	}
	if n > 0 {
		log.Info().Str("module", "redis").Str("user", string(user)).Msg("unbind connection")
	}
	return nil
}

func (r *Registry) Release(ctx context.Context, user domain.UserID, addr core.ConnAddr) (bool, error) {
	n, err := releaseScript.Run(ctx, r.rdb, []string{socketsKey}, string(user), string(addr)).Int()
	if err != nil {
		return false, fmt.Errorf("%w: release %s: %v", domain.ErrStoreUnavailable, user, err)
	}
	if n == 0 {
		return false, nil
	}
	log.Info().Str("module", "redis").Str("user", string(user)).Str("addr", string(addr)).Msg("released connection")
	return true, nil
}
