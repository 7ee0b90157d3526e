package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RemoteBus carries frames to connections owned by other nodes.
type RemoteBus interface {
	Publish(ctx context.Context, addr core.ConnAddr, f core.Frame) error
}

// Hub owns this node's live connections and implements core.Dispatcher.
type Hub struct {
	node   string
	policy Policy

	mu     sync.RWMutex
	conns  map[string]core.SignalConnection
	remote RemoteBus
}

func NewHub(node string, policy Policy) *Hub {
	return &Hub{
		node:   node,
		policy: policy,
		conns:  make(map[string]core.SignalConnection),
	}
}

func (h *Hub) Node() string { return h.node }

// SetRemote enables cross-node delivery. Without it, addresses of other nodes
// are unreachable.
func (h *Hub) SetRemote(bus RemoteBus) {
	h.mu.Lock()
	h.remote = bus
	h.mu.Unlock()
}

// Attach registers a connection and returns its cluster-wide address.
func (h *Hub) Attach(conn core.SignalConnection) core.ConnAddr {
	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = conn
	h.mu.Unlock()
	return core.NewConnAddr(h.node, id)
}

func (h *Hub) Detach(addr core.ConnAddr) {
	if addr.Node() != h.node {
		return
	}
	h.mu.Lock()
	delete(h.conns, addr.Conn())
	h.mu.Unlock()
}

// Count returns the number of local connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) Deliver(ctx context.Context, addr core.ConnAddr, f core.Frame) error {
	if !addr.Valid() {
		return domain.ErrNotConnected
	}
	if addr.Node() == h.node {
		return h.DeliverLocal(addr, f)
	}
	h.mu.RLock()
	remote := h.remote
	h.mu.RUnlock()
	if remote == nil {
		return domain.ErrNotConnected
	}
	return remote.Publish(ctx, addr, f)
}

// DeliverLocal queues f on a connection of this node.
func (h *Hub) DeliverLocal(addr core.ConnAddr, f core.Frame) error {
	h.mu.RLock()
	conn, ok := h.conns[addr.Conn()]
	h.mu.RUnlock()
	if !ok {
		return domain.ErrNotConnected
	}

	err := conn.TrySend(f)
	if errors.Is(err, core.ErrBackpressure) && h.policy != nil {
		action := h.policy.OnBackPressure(addr)
		log.Warn().Str("module", "app.hub").Str("addr", string(addr)).Stringer("action", action).Msg("outbound queue full")
		if action == KickMember {
			conn.Close()
		}
	}
	return err
}
