package app

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/meshcall/internal/domain"
)

// RoomManager is the single-node core.MembershipStore: one member set per
// room. Empty rooms are dropped so the map does not grow without bound.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.UserID]struct{}
}

func NewRoomManager() *RoomManager {
	return &RoomManager{rooms: make(map[domain.RoomID]map[domain.UserID]struct{})}
}

func (m *RoomManager) Add(_ context.Context, room domain.RoomID, user domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.rooms[room]
	if !ok {
		set = make(map[domain.UserID]struct{})
		m.rooms[room] = set
	}
	set[user] = struct{}{}
	return nil
}

func (m *RoomManager) Remove(_ context.Context, room domain.RoomID, user domain.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.rooms[room]
	if !ok {
		return nil
	}
	delete(set, user)
	if len(set) == 0 {
		delete(m.rooms, room)
	}
	return nil
}

// Members returns a sorted copy of the room's set.
func (m *RoomManager) Members(_ context.Context, room domain.RoomID) ([]domain.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.rooms[room]
	out := make([]domain.UserID, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
