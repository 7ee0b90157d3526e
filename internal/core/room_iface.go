package core

import (
	"context"

	"github.com/dkeye/meshcall/internal/domain"
)

//go:generate mockgen -source=room_iface.go -destination=mocks/mock_room_iface.go -package=mocks

// MembershipStore is the per-room member set shared by every process.
// Each call is a single atomic set operation; sequences are not transactional.
type MembershipStore interface {
	Add(ctx context.Context, room domain.RoomID, user domain.UserID) error
	Remove(ctx context.Context, room domain.RoomID, user domain.UserID) error
	Members(ctx context.Context, room domain.RoomID) ([]domain.UserID, error)
}

// RoomDirectory is the authoritative room record owner. It enforces capacity
// and membership rules and returns the updated participant list.
type RoomDirectory interface {
	AddParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) ([]domain.UserID, error)
	RemoveParticipant(ctx context.Context, room domain.RoomID, user domain.UserID) ([]domain.UserID, error)
	Participants(ctx context.Context, room domain.RoomID) ([]domain.UserID, error)
	FindRoomsForUser(ctx context.Context, user domain.UserID) ([]domain.RoomID, error)
}

// UserDirectory resolves ids to display profiles. Unknown ids are simply
// missing from the result.
type UserDirectory interface {
	ResolveMany(ctx context.Context, ids []domain.UserID) ([]domain.User, error)
}
