package domain

import "errors"

// Errors reported to a single requester. Callers wrap them with context and
// classify with errors.Is.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotAuthorized    = errors.New("not authorized")

	ErrRoomNotFound     = errors.New("room not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrCapacityExceeded = errors.New("room is at maximum capacity")
	ErrAlreadyMember    = errors.New("user is already in room")
	ErrNotMember        = errors.New("user is not a participant in room")

	// ErrNotConnected means the user has no current connection mapping.
	ErrNotConnected = errors.New("target not connected")

	// ErrStoreUnavailable wraps failures of the shared registry/membership store.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrInvalidPayload = errors.New("invalid payload")
	ErrRateLimited    = errors.New("too many requests")
)

// ErrorKind names the class of an error for logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated):
		return "authentication"
	case errors.Is(err, ErrNotAuthorized):
		return "authorization"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrUserNotFound), errors.Is(err, ErrNotMember):
		return "not_found"
	case errors.Is(err, ErrNotConnected):
		return "unreachable"
	case errors.Is(err, ErrStoreUnavailable):
		return "transient_store"
	case errors.Is(err, ErrInvalidPayload):
		return "validation"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}
