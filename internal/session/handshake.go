package session

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/omochice/livechat/internal/transport"
	"github.com/omochice/livechat/pkg/protocol"
)

// Handshake sends the session token exactly once per connection.
// Completion is observed by the dispatcher (auth_success); there is no timeout.
type Handshake struct {
	token string
	sent  atomic.Bool
}

// NewHandshake creates a handshake for one connection.
func NewHandshake(token string) *Handshake {
	return &Handshake{token: token}
}

// Send writes the auth frame. Every call after the first returns ErrHandshakeSent
// without touching the connection.
func (h *Handshake) Send(ctx context.Context, conn transport.Conn) error {
	if !h.sent.CompareAndSwap(false, true) {
		return ErrHandshakeSent
	}
	data, err := protocol.NewAuth(h.token).Encode()
	if err != nil {
		return fmt.Errorf("failed to encode auth frame: %w", err)
	}
	if err := conn.Write(ctx, data); err != nil {
		return &TransportError{Op: "auth", Err: err}
	}
	return nil
}

// Sent reports whether Send has been called.
func (h *Handshake) Sent() bool {
	return h.sent.Load()
}
