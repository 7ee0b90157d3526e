package domain

import "errors"

type RoomID string

const (
	DefaultMaxParticipants = 4
	MaxRoomNameLen         = 64
)

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
	ErrBadCapacity     = errors.New("max participants must be positive")
)

// Room is the room directory record.
type Room struct {
	ID              RoomID   `json:"id"`
	Name            string   `json:"name"`
	MaxParticipants int      `json:"maxParticipants"`
	Participants    []UserID `json:"participants"`
}

// ValidateRoom checks the fields a caller may set when creating a room.
func ValidateRoom(name string, maxParticipants int) error {
	if name == "" {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	if maxParticipants <= 0 {
		return ErrBadCapacity
	}
	return nil
}

// HasParticipant reports whether uid is listed in the room.
func (r *Room) HasParticipant(uid UserID) bool {
	for _, p := range r.Participants {
		if p == uid {
			return true
		}
	}
	return false
}
