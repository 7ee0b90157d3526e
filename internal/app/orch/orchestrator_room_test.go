package orch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/core/mocks"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/dkeye/meshcall/internal/protocol"
	"github.com/sourcegraph/conc"
	"go.uber.org/mock/gomock"
)

func TestJoin_AckThenPresence(t *testing.T) {
	e := newEnv(t)
	r1 := e.room(t, "R1", 4)
	alice := e.connect(t, "alice")

	e.join(t, alice, r1)

	evs := e.conns[alice.UserID()].events(t)
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2", len(evs))
	}
	if evs[0].Type != protocol.TypeJoinSuccess || evs[0].RoomID != r1 {
		t.Fatalf("first event %+v", evs[0])
	}
	if evs[1].Type != protocol.TypeParticipantsUpdate {
		t.Fatalf("second event %+v", evs[1])
	}
	if !equalIDs(ids(evs[1].Participants), alice.UserID()) {
		t.Fatalf("participants=%v", evs[1].Participants)
	}
	if evs[1].Participants[0].Username != "alice" {
		t.Fatalf("participant not enriched: %+v", evs[1].Participants[0])
	}

	members, _ := e.o.Members.Members(context.Background(), r1)
	if !equalIDs(members, alice.UserID()) {
		t.Fatalf("members=%v", members)
	}
}

func TestJoin_EveryMemberGetsUpdate(t *testing.T) {
	e := newEnv(t)
	r1 := e.room(t, "R1", 4)
	alice := e.connect(t, "alice")
	bob := e.connect(t, "bob")

	e.join(t, alice, r1)
	e.resetAll()
	e.join(t, bob, r1)

	aliceEvs := e.conns[alice.UserID()].events(t)
	if len(aliceEvs) != 1 || aliceEvs[0].Type != protocol.TypeParticipantsUpdate {
		t.Fatalf("alice got %v", e.conns[alice.UserID()].types(t))
	}
	if !equalIDs(ids(aliceEvs[0].Participants), alice.UserID(), bob.UserID()) {
		t.Fatalf("participants=%v", aliceEvs[0].Participants)
	}
	if got := e.conns[bob.UserID()].types(t); len(got) != 2 || got[0] != protocol.TypeJoinSuccess {
		t.Fatalf("bob got %v", got)
	}
}

func TestJoin_Rejections(t *testing.T) {
	e := newEnv(t)
	r1 := e.room(t, "R1", 1)
	alice := e.connect(t, "alice")
	bob := e.connect(t, "bob")
	ctx := context.Background()

	e.join(t, alice, r1)
	if err := e.o.Join(ctx, alice, r1); !errors.Is(err, domain.ErrAlreadyMember) {
		t.Fatalf("rejoin: %v", err)
	}
	if err := e.o.Join(ctx, bob, r1); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("full room: %v", err)
	}
	if err := e.o.Join(ctx, bob, "missing"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("missing room: %v", err)
	}
	members, _ := e.o.Members.Members(ctx, r1)
	if !equalIDs(members, alice.UserID()) {
		t.Fatalf("members=%v", members)
	}
}

func TestJoin_ConcurrentCapacity(t *testing.T) {
	e := newEnv(t)
	const capacity = 4
	room := e.room(t, "busy", capacity)

	callers := make([]core.Caller, capacity+1)
	for i := range callers {
		callers[i] = e.connect(t, string(rune('a'+i)))
	}

	var (
		wg       conc.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for _, c := range callers {
		wg.Go(func() {
			err := e.o.Join(context.Background(), c, room)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrCapacityExceeded):
				full++
			default:
				t.Errorf("join: %v", err)
			}
		})
	}
	wg.Wait()

	if ok != capacity || full != 1 {
		t.Fatalf("ok=%d full=%d", ok, full)
	}
	members, _ := e.o.Members.Members(context.Background(), room)
	if len(members) != capacity {
		t.Fatalf("store has %d members", len(members))
	}
}

func TestLeave(t *testing.T) {
	e := newEnv(t)
	r1 := e.room(t, "R1", 4)
	alice := e.connect(t, "alice")
	bob := e.connect(t, "bob")
	ctx := context.Background()

	e.join(t, alice, r1)
	e.join(t, bob, r1)
	e.resetAll()

	if err := e.o.Leave(ctx, bob, r1); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := e.conns[bob.UserID()].types(t); len(got) != 1 || got[0] != protocol.TypeLeaveSuccess {
		t.Fatalf("bob got %v", got)
	}
	aliceEvs := e.conns[alice.UserID()].events(t)
	if len(aliceEvs) != 1 || !equalIDs(ids(aliceEvs[0].Participants), alice.UserID()) {
		t.Fatalf("alice got %+v", aliceEvs)
	}

	if err := e.o.Leave(ctx, bob, r1); !errors.Is(err, domain.ErrNotMember) {
		t.Fatalf("second leave: %v", err)
	}
}

func TestDisconnect_LeavesEveryRoomOnce(t *testing.T) {
	e := newEnv(t)
	r1 := e.room(t, "R1", 4)
	r2 := e.room(t, "R2", 4)
	alice := e.connect(t, "alice")
	bob := e.connect(t, "bob")
	ctx := context.Background()

	e.join(t, alice, r1)
	e.join(t, alice, r2)
	e.join(t, bob, r1)
	e.join(t, bob, r2)
	e.resetAll()

	if err := e.o.Disconnect(ctx, alice.UserID()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	perRoom := map[domain.RoomID]int{}
	for _, ev := range e.conns[bob.UserID()].events(t) {
		if ev.Type != protocol.TypeParticipantsUpdate {
			t.Fatalf("unexpected %s", ev.Type)
		}
		if !equalIDs(ids(ev.Participants), bob.UserID()) {
			t.Fatalf("participants=%v", ev.Participants)
		}
		perRoom[ev.RoomID]++
	}
	if perRoom[r1] != 1 || perRoom[r2] != 1 {
		t.Fatalf("updates per room: %v", perRoom)
	}
	if got := e.conns[alice.UserID()].types(t); len(got) != 0 {
		t.Fatalf("departed user got %v", got)
	}

	rooms, _ := e.dir.FindRoomsForUser(ctx, alice.UserID())
	if len(rooms) != 0 {
		t.Fatalf("still in %v", rooms)
	}
}

func TestDisconnect_NoRooms(t *testing.T) {
	e := newEnv(t)
	if err := e.o.Disconnect(context.Background(), "u-nobody"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
}

func TestJoin_DirectoryErrorLeavesStoreAlone(t *testing.T) {
	ctrl := gomock.NewController(t)
	rooms := mocks.NewMockRoomDirectory(ctrl)
	members := mocks.NewMockMembershipStore(ctrl)

	rooms.EXPECT().AddParticipant(gomock.Any(), domain.RoomID("r1"), domain.UserID("alice")).
		Return(nil, domain.ErrCapacityExceeded)
	// no members.EXPECT(): any store call fails the test

	o := &Orchestrator{
		Registry: app.NewRegistry(),
		Members:  members,
		Rooms:    rooms,
		Users:    mocks.NewMockUserDirectory(ctrl),
		Hub:      app.NewHub("n", nil),
	}
	caller := core.Caller{Identity: domain.Identity{UserID: "alice"}, Addr: "n/c1"}
	if err := o.Join(context.Background(), caller, "r1"); !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("got %v", err)
	}
}

func TestJoin_StoreFailureUndoesDirectory(t *testing.T) {
	ctrl := gomock.NewController(t)
	rooms := mocks.NewMockRoomDirectory(ctrl)
	members := mocks.NewMockMembershipStore(ctrl)

	gomock.InOrder(
		rooms.EXPECT().AddParticipant(gomock.Any(), domain.RoomID("r1"), domain.UserID("alice")).
			Return([]domain.UserID{"alice"}, nil),
		members.EXPECT().Add(gomock.Any(), domain.RoomID("r1"), domain.UserID("alice")).
			Return(errors.New("connection refused")),
		rooms.EXPECT().RemoveParticipant(gomock.Any(), domain.RoomID("r1"), domain.UserID("alice")).
			Return([]domain.UserID{}, nil),
	)

	hub := app.NewHub("n", nil)
	rec := &recorder{}
	addr := hub.Attach(rec)
	o := &Orchestrator{
		Registry: app.NewRegistry(),
		Members:  members,
		Rooms:    rooms,
		Users:    mocks.NewMockUserDirectory(ctrl),
		Hub:      hub,
	}
	caller := core.Caller{Identity: domain.Identity{UserID: "alice"}, Addr: addr}
	err := o.Join(context.Background(), caller, "r1")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("got %v, want ErrStoreUnavailable", err)
	}
	if got := rec.types(t); len(got) != 0 {
		t.Fatalf("joiner got %v", got)
	}
}

func TestDisconnect_EnumerationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	rooms := mocks.NewMockRoomDirectory(ctrl)
	rooms.EXPECT().FindRoomsForUser(gomock.Any(), domain.UserID("alice")).
		Return(nil, errors.New("db closed"))

	o := &Orchestrator{Rooms: rooms}
	if err := o.Disconnect(context.Background(), "alice"); err == nil {
		t.Fatal("expected error")
	}
}
