package orch

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/directory"
	"github.com/dkeye/meshcall/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (r *recorder) TrySend(f core.Frame) error {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Close() {}

type event struct {
	Type         string               `json:"type"`
	RoomID       domain.RoomID        `json:"roomId"`
	Message      string               `json:"message"`
	Error        string               `json:"error"`
	FromUserID   domain.UserID        `json:"fromUserId"`
	FromUsername string               `json:"fromUsername"`
	SDP          string               `json:"sdp"`
	Participants []domain.Participant `json:"participants"`
}

func (r *recorder) events(t *testing.T) []event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event, 0, len(r.frames))
	for _, f := range r.frames {
		var ev event
		if err := json.Unmarshal(f, &ev); err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		out = append(out, ev)
	}
	return out
}

func (r *recorder) types(t *testing.T) []string {
	var out []string
	for _, ev := range r.events(t) {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

// env wires an Orchestrator to a sqlite directory and the in-memory stores.
type env struct {
	o     *Orchestrator
	dir   *directory.Store
	hub   *app.Hub
	reg   *app.Registry
	conns map[domain.UserID]*recorder
	ids   map[domain.UserID]domain.Identity
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir, err := directory.Open(filepath.Join(t.TempDir(), "dir.db"))
	if err != nil {
		t.Fatalf("open directory: %v", err)
	}
	t.Cleanup(func() { dir.Close() })

	hub := app.NewHub("node-a", app.SimplePolicy{})
	reg := app.NewRegistry()
	return &env{
		o: &Orchestrator{
			Registry: reg,
			Members:  app.NewRoomManager(),
			Rooms:    dir,
			Users:    dir,
			Hub:      hub,
		},
		dir:   dir,
		hub:   hub,
		reg:   reg,
		conns: make(map[domain.UserID]*recorder),
		ids:   make(map[domain.UserID]domain.Identity),
	}
}

func (e *env) room(t *testing.T, name string, capacity int) domain.RoomID {
	t.Helper()
	r, err := e.dir.CreateRoom(context.Background(), name, capacity)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return r.ID
}

// connect registers a user profile and a live connection for it.
func (e *env) connect(t *testing.T, name string) core.Caller {
	t.Helper()
	ctx := context.Background()
	id := domain.UserID("u-" + name)
	if _, ok := e.ids[id]; !ok {
		if _, err := e.dir.CreateUser(ctx, id, name, name+"@example.com"); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	rec := &recorder{}
	addr := e.hub.Attach(rec)
	if err := e.reg.Bind(ctx, id, addr); err != nil {
		t.Fatal(err)
	}
	ident := domain.Identity{UserID: id, Username: name}
	e.conns[id] = rec
	e.ids[id] = ident
	return core.Caller{Identity: ident, Addr: addr}
}

func (e *env) join(t *testing.T, c core.Caller, room domain.RoomID) {
	t.Helper()
	if err := e.o.Join(context.Background(), c, room); err != nil {
		t.Fatalf("%s join: %v", c.Identity.Username, err)
	}
}

func (e *env) resetAll() {
	for _, r := range e.conns {
		r.reset()
	}
}

func ids(ps []domain.Participant) []domain.UserID {
	out := make([]domain.UserID, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func equalIDs(got []domain.UserID, want ...domain.UserID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
