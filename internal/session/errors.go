package session

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyConnected = errors.New("session already connected")
	ErrHandshakeSent    = errors.New("auth handshake already sent on this connection")
	ErrNoToken          = errors.New("session token is required")
)

// TransportError reports a socket-level failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
