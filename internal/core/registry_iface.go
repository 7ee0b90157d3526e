package core

import (
	"context"

	"github.com/dkeye/meshcall/internal/domain"
)

// ConnectionRegistry maps a user to its single active connection.
// Bind is last-writer-wins: a reconnect overwrites the previous address.
type ConnectionRegistry interface {
	Bind(ctx context.Context, user domain.UserID, addr ConnAddr) error
	// Lookup returns domain.ErrNotConnected when no mapping exists or the
	// store cannot be reached.
	Lookup(ctx context.Context, user domain.UserID) (ConnAddr, error)
	// LookupMany omits users that are not connected.
	LookupMany(ctx context.Context, users []domain.UserID) map[domain.UserID]ConnAddr
	// Unbind is a no-op for unknown users.
	Unbind(ctx context.Context, user domain.UserID) error
	// Release removes the mapping only while it still points at addr.
	Release(ctx context.Context, user domain.UserID, addr ConnAddr) (bool, error)
}
