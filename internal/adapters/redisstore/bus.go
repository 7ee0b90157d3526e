package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func nodeChannel(node string) string {
	return "meshcall:node:" + node
}

// envelope is what travels between nodes: the target connection and the
// already encoded frame.
type envelope struct {
	Addr  core.ConnAddr   `json:"addr"`
	Frame json.RawMessage `json:"frame"`
}

// LocalDeliverer hands a frame to a connection owned by this node.
type LocalDeliverer interface {
	DeliverLocal(addr core.ConnAddr, f core.Frame) error
}

// Bus publishes frames to the node owning the target connection and delivers
// frames published to this node.
type Bus struct {
	rdb  redis.UniversalClient
	node string
}

func NewBus(rdb redis.UniversalClient, node string) *Bus {
	return &Bus{rdb: rdb, node: node}
}

func (b *Bus) Publish(ctx context.Context, addr core.ConnAddr, f core.Frame) error {
	payload, err := json.Marshal(envelope{Addr: addr, Frame: json.RawMessage(f)})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	n, err := b.rdb.Publish(ctx, nodeChannel(addr.Node()), payload).Result()
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %v", domain.ErrStoreUnavailable, addr.Node(), err)
	}
	if n == 0 {
		// Nobody listens on that node: it is gone and the mapping is stale.
		return fmt.Errorf("%w: node %s is not subscribed", domain.ErrNotConnected, addr.Node())
	}
	return nil
}

// Run subscribes to this node's channel and delivers until ctx is done.
func (b *Bus) Run(ctx context.Context, local LocalDeliverer) error {
	sub := b.rdb.Subscribe(ctx, nodeChannel(b.node))
	defer sub.Close()

	// Wait for the subscription so publishes right after Run are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", nodeChannel(b.node), err)
	}
	log.Info().Str("module", "redis").Str("node", b.node).Msg("node bus subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Warn().Err(err).Str("module", "redis").Msg("bad envelope")
				continue
			}
			if err := local.DeliverLocal(env.Addr, core.Frame(env.Frame)); err != nil {
				log.Debug().Err(err).Str("module", "redis").Str("addr", string(env.Addr)).Msg("remote frame not delivered")
			}
		}
	}
}
