// Package transport defines the connection seam between the session layer
// and a concrete socket library.
package transport

//go:generate go run go.uber.org/mock/mockgen -source=conn.go -destination=../mocks/mock_conn.go -package=mocks

import "context"

// Conn abstracts one persistent, bidirectional, frame-oriented connection.
type Conn interface {
	// Read blocks until a single data frame arrives.
	// Returns an error once the connection is closed, locally or by the peer.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single data frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens connections to a server URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
