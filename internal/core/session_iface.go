package core

import "github.com/dkeye/meshcall/internal/domain"

// Caller is the authenticated originator of an inbound event: who sent it and
// on which connection. Handlers never take the sender identity from a payload.
type Caller struct {
	Identity domain.Identity
	Addr     ConnAddr
}

func (c Caller) UserID() domain.UserID { return c.Identity.UserID }
