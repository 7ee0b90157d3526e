package app

import "github.com/dkeye/meshcall/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case MarkSlow:
		return "mark_slow"
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

// Policy decides what happens to a connection whose outbound queue is full.
type Policy interface {
	OnBackPressure(addr core.ConnAddr) BackpressureAction
}

// SimplePolicy kicks slow connections; the client reconnects and resyncs.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.ConnAddr) BackpressureAction {
	return KickMember
}
