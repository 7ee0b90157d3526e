package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

type fakeBus struct {
	addr core.ConnAddr
	f    core.Frame
}

func (b *fakeBus) Publish(_ context.Context, addr core.ConnAddr, f core.Frame) error {
	b.addr, b.f = addr, f
	return nil
}

func TestHub_DeliverLocal(t *testing.T) {
	h := NewHub("n1", SimplePolicy{})
	conn := &fakeConn{}
	addr := h.Attach(conn)

	if addr.Node() != "n1" || !addr.Valid() {
		t.Fatalf("addr=%q", addr)
	}
	if err := h.Deliver(context.Background(), addr, core.Frame(`{"type":"pong"}`)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(conn.frames) != 1 {
		t.Fatalf("frames=%d, want 1", len(conn.frames))
	}

	h.Detach(addr)
	if err := h.Deliver(context.Background(), addr, core.Frame(`{}`)); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("deliver after detach: err=%v", err)
	}
	if h.Count() != 0 {
		t.Fatalf("count=%d", h.Count())
	}
}

func TestHub_RemoteAddress(t *testing.T) {
	h := NewHub("n1", nil)
	remote := core.NewConnAddr("n2", "c9")

	if err := h.Deliver(context.Background(), remote, core.Frame(`{}`)); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("deliver without bus: err=%v", err)
	}

	bus := &fakeBus{}
	h.SetRemote(bus)
	if err := h.Deliver(context.Background(), remote, core.Frame(`{"type":"x"}`)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if bus.addr != remote || string(bus.f) != `{"type":"x"}` {
		t.Fatalf("bus got addr=%q f=%s", bus.addr, bus.f)
	}
}

func TestHub_BackpressureKicksSlowConnection(t *testing.T) {
	h := NewHub("n1", SimplePolicy{})
	conn := &fakeConn{full: true}
	addr := h.Attach(conn)

	err := h.Deliver(context.Background(), addr, core.Frame(`{}`))
	if !errors.Is(err, core.ErrBackpressure) {
		t.Fatalf("err=%v, want ErrBackpressure", err)
	}
	if !conn.closed {
		t.Fatalf("slow connection was not closed")
	}
}

func TestHub_InvalidAddress(t *testing.T) {
	h := NewHub("n1", nil)
	for _, addr := range []core.ConnAddr{"", "n1", "/c1", "n1/"} {
		if err := h.Deliver(context.Background(), addr, nil); !errors.Is(err, domain.ErrNotConnected) {
			t.Fatalf("addr %q: err=%v", addr, err)
		}
	}
}
