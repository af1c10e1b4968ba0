package session_test

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/omochice/livechat/internal/transport"
)

// fakeConn is an in-memory transport.Conn fed by tests.
type fakeConn struct {
	readCh     chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	closeCount atomic.Int32
	writtenMu  sync.Mutex
	written    [][]byte
	writeErr   error
	// writeGate, when set, holds every Write until it is closed.
	writeGate chan struct{}
	// unbounded counts writes whose context had no deadline.
	unbounded atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		readCh: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.readCh:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		c.unbounded.Add(1)
	}
	if c.writeGate != nil {
		select {
		case <-c.writeGate:
		case <-c.closed:
			return net.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.writtenMu.Lock()
	defer c.writtenMu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	c.written = append(c.written, copied)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeCount.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string {
	return "127.0.0.1:8000"
}

// push delivers a frame as if the server had sent it.
func (c *fakeConn) push(raw string) {
	c.readCh <- []byte(raw)
}

// drop simulates the server closing the connection.
func (c *fakeConn) drop() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *fakeConn) Written() []string {
	c.writtenMu.Lock()
	defer c.writtenMu.Unlock()
	out := make([]string, len(c.written))
	for i, w := range c.written {
		out[i] = string(w)
	}
	return out
}

// fakeDialer hands out conns in order.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	dials int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no more connections")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

var (
	_ transport.Conn   = (*fakeConn)(nil)
	_ transport.Dialer = (*fakeDialer)(nil)
)
