package core

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is one encoded outbound event.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// ConnAddr addresses one realtime connection across the cluster:
// "<node-id>/<conn-id>".
type ConnAddr string

func NewConnAddr(node, conn string) ConnAddr {
	return ConnAddr(node + "/" + conn)
}

// Node returns the id of the process that owns the connection.
func (a ConnAddr) Node() string {
	node, _, _ := strings.Cut(string(a), "/")
	return node
}

func (a ConnAddr) Conn() string {
	_, conn, _ := strings.Cut(string(a), "/")
	return conn
}

func (a ConnAddr) Valid() bool {
	node, conn, ok := strings.Cut(string(a), "/")
	return ok && node != "" && conn != ""
}

// Dispatcher delivers a frame to exactly one connection, local or remote.
type Dispatcher interface {
	Deliver(ctx context.Context, addr ConnAddr, f Frame) error
}
