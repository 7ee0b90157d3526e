package app

import (
	"context"
	"sync"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry is the single-node core.ConnectionRegistry. Every method is one
// critical section, matching the per-operation atomicity of the shared store.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]core.ConnAddr
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.UserID]core.ConnAddr),
	}
}

func (r *Registry) Bind(_ context.Context, user domain.UserID, addr core.ConnAddr) error {
	r.mu.Lock()
	prev, had := r.conns[user]
	r.conns[user] = addr
	r.mu.Unlock()

	ev := log.Info().Str("module", "app.registry").Str("user", string(user)).Str("addr", string(addr))
	if had && prev != addr {
		ev = ev.Str("replaced", string(prev))
	}
	ev.Msg("bound connection")
	return nil
}

func (r *Registry) Lookup(_ context.Context, user domain.UserID) (core.ConnAddr, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if addr, ok := r.conns[user]; ok {
		return addr, nil
	}
	return "", domain.ErrNotConnected
}

func (r *Registry) LookupMany(_ context.Context, users []domain.UserID) map[domain.UserID]core.ConnAddr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.UserID]core.ConnAddr, len(users))
	for _, u := range users {
		if addr, ok := r.conns[u]; ok {
			out[u] = addr
		}
	}
	return out
}

func (r *Registry) Unbind(_ context.Context, user domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[user]; !ok {
		return nil
	}
	delete(r.conns, user)
	log.Info().Str("module", "app.registry").Str("user", string(user)).Msg("unbind connection")
	return nil
}

func (r *Registry) Release(_ context.Context, user domain.UserID, addr core.ConnAddr) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[user]; !ok || cur != addr {
		return false, nil
	}
	delete(r.conns, user)
	log.Info().Str("module", "app.registry").Str("user", string(user)).Str("addr", string(addr)).Msg("released connection")
	return true, nil
}
