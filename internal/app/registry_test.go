package app

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

func TestRegistry_BindLookupOverwrite(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	if _, err := r.Lookup(ctx, "alice"); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("lookup before bind: err=%v, want ErrNotConnected", err)
	}

	first := core.NewConnAddr("n1", "c1")
	second := core.NewConnAddr("n2", "c2")
	if err := r.Bind(ctx, "alice", first); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := r.Bind(ctx, "alice", second); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	got, err := r.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != second {
		t.Fatalf("addr=%q, want %q (last writer wins)", got, second)
	}
}

func TestRegistry_UnbindIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	if err := r.Unbind(ctx, "ghost"); err != nil {
		t.Fatalf("unbind unknown: %v", err)
	}
	_ = r.Bind(ctx, "alice", core.NewConnAddr("n1", "c1"))
	if err := r.Unbind(ctx, "alice"); err != nil {
		t.Fatalf("unbind: %v", err)
	}
	if err := r.Unbind(ctx, "alice"); err != nil {
		t.Fatalf("second unbind: %v", err)
	}
	if _, err := r.Lookup(ctx, "alice"); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("lookup after unbind: err=%v", err)
	}
}

func TestRegistry_ReleaseKeepsNewerMapping(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	old := core.NewConnAddr("n1", "old")
	fresh := core.NewConnAddr("n1", "fresh")

	_ = r.Bind(ctx, "alice", old)
	_ = r.Bind(ctx, "alice", fresh)

	released, err := r.Release(ctx, "alice", old)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released {
		t.Fatalf("stale connection released the fresh mapping")
	}
	if got, _ := r.Lookup(ctx, "alice"); got != fresh {
		t.Fatalf("addr=%q, want %q", got, fresh)
	}

	released, _ = r.Release(ctx, "alice", fresh)
	if !released {
		t.Fatalf("current connection was not released")
	}
}

func TestRegistry_LookupManyOmitsUnbound(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	_ = r.Bind(ctx, "alice", core.NewConnAddr("n1", "a"))
	_ = r.Bind(ctx, "bob", core.NewConnAddr("n1", "b"))

	got := r.LookupMany(ctx, []domain.UserID{"alice", "bob", "carol"})
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2: %v", len(got), got)
	}
	if _, ok := got["carol"]; ok {
		t.Fatalf("carol should not be resolved")
	}
}
