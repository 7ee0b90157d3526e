package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/rs/zerolog/log"
)

const DefaultPeersTimeout = 5 * time.Second

// Orchestrator ties the room directories, the shared registry/membership
// store and the delivery hub together. It holds no mutable state of its own,
// so any number of nodes can run one against the same shared store.
type Orchestrator struct {
	Registry core.ConnectionRegistry
	Members  core.MembershipStore
	Rooms    core.RoomDirectory
	Users    core.UserDirectory
	Hub      core.Dispatcher

	// PeersTimeout bounds RoomPeers. Zero means DefaultPeersTimeout.
	PeersTimeout time.Duration
}

// send delivers one event. Delivery failures are logged and swallowed:
// outbound events are fire-and-forget.
func (o *Orchestrator) send(ctx context.Context, addr core.ConnAddr, typ string, payload any) error {
	f, err := protocol.Encode(typ, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", typ).Msg("encode event")
		return err
	}
	if err := o.Hub.Deliver(ctx, addr, f); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("type", typ).Str("addr", string(addr)).Msg("deliver failed")
		return err
	}
	return nil
}

// storeErr classifies a membership/registry failure as transient.
func storeErr(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
