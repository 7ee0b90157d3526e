package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
	"github.com/redis/go-redis/v9"
)

func newClient(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRegistry_BindLookup(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	r := NewRegistry(rdb)

	if _, err := r.Lookup(ctx, "alice"); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("lookup before bind: %v", err)
	}
	first := core.NewConnAddr("n1", "c1")
	second := core.NewConnAddr("n2", "c2")
	_ = r.Bind(ctx, "alice", first)
	if err := r.Bind(ctx, "alice", second); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	got, err := r.Lookup(ctx, "alice")
	if err != nil || got != second {
		t.Fatalf("got %q, %v; want %q", got, err, second)
	}
}

func TestRegistry_LookupMany(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	r := NewRegistry(rdb)

	_ = r.Bind(ctx, "alice", "n1/a")
	_ = r.Bind(ctx, "carol", "n2/c")

	got := r.LookupMany(ctx, []domain.UserID{"alice", "bob", "carol"})
	if len(got) != 2 || got["alice"] != "n1/a" || got["carol"] != "n2/c" {
		t.Fatalf("got %v", got)
	}
	if _, ok := got["bob"]; ok {
		t.Fatal("bob should be absent")
	}
	if len(r.LookupMany(ctx, nil)) != 0 {
		t.Fatal("empty input")
	}
}

func TestRegistry_UnbindAndRelease(t *testing.T) {
	ctx := context.Background()
	_, rdb := newClient(t)
	r := NewRegistry(rdb)

	if err := r.Unbind(ctx, "ghost"); err != nil {
		t.Fatalf("unbind unknown: %v", err)
	}

	_ = r.Bind(ctx, "alice", "n1/old")
	_ = r.Bind(ctx, "alice", "n1/new")
	released, err := r.Release(ctx, "alice", "n1/old")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released {
		t.Fatal("stale address released the mapping")
	}
	released, err = r.Release(ctx, "alice", "n1/new")
	if err != nil || !released {
		t.Fatalf("released=%v err=%v", released, err)
	}
	if _, err := r.Lookup(ctx, "alice"); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("lookup after release: %v", err)
	}
}

func TestRegistry_StoreDown(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newClient(t)
	r := NewRegistry(rdb)
	mr.Close()

	if err := r.Bind(ctx, "alice", "n1/a"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("bind: %v", err)
	}
	if _, err := r.Lookup(ctx, "alice"); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("lookup: %v", err)
	}
	if got := r.LookupMany(ctx, []domain.UserID{"alice"}); len(got) != 0 {
		t.Fatalf("lookup many: %v", got)
	}
}

func TestMembership(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newClient(t)
	m := NewMembership(rdb)

	_ = m.Add(ctx, "r1", "bob")
	_ = m.Add(ctx, "r1", "alice")
	_ = m.Add(ctx, "r1", "alice")

	got, err := m.Members(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("members=%v", got)
	}

	_ = m.Remove(ctx, "r1", "alice")
	_ = m.Remove(ctx, "r1", "bob")
	if mr.Exists(membersKey("r1")) {
		t.Fatal("empty set still stored")
	}
	got, _ = m.Members(ctx, "r1")
	if len(got) != 0 {
		t.Fatalf("members=%v", got)
	}
}

type sink struct {
	mu   sync.Mutex
	got  map[core.ConnAddr][]string
	done chan struct{}
}

func (s *sink) DeliverLocal(addr core.ConnAddr, f core.Frame) error {
	s.mu.Lock()
	s.got[addr] = append(s.got[addr], string(f))
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

func TestBus_PublishReachesOwningNode(t *testing.T) {
	_, rdb := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recv := NewBus(rdb, "node-b")
	s := &sink{got: map[core.ConnAddr][]string{}, done: make(chan struct{}, 1)}
	go recv.Run(ctx, s)

	send := NewBus(rdb, "node-a")
	addr := core.NewConnAddr("node-b", "c1")
	frame := core.Frame(`{"type":"pong"}`)

	// Run subscribes asynchronously; retry until a subscriber exists.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := send.Publish(ctx, addr, frame)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrNotConnected) || time.Now().After(deadline) {
			t.Fatalf("publish: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if got := s.got[addr]; len(got) != 1 || got[0] != string(frame) {
		t.Fatalf("got %v", got)
	}
}

func TestBus_UnknownNode(t *testing.T) {
	_, rdb := newClient(t)
	b := NewBus(rdb, "node-a")
	err := b.Publish(context.Background(), "node-gone/c1", core.Frame(`{}`))
	if !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("got %v, want ErrNotConnected", err)
	}
}
