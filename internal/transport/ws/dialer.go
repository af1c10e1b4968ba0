package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/omochice/livechat/internal/transport"
)

// Dialer opens WebSocket connections. The zero value is usable.
type Dialer struct {
	// Timeout bounds the TCP connect and upgrade handshake.
	Timeout time.Duration
	// Header is sent with the upgrade request.
	Header http.Header
}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	if len(d.Header) > 0 {
		dialer.Header = ws.HandshakeHeaderHTTP(d.Header)
	}

	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	// a nil *bufio.Reader must not become a non-nil io.Reader
	if br == nil {
		return NewConn(conn, nil), nil
	}
	return NewConn(conn, br), nil
}
