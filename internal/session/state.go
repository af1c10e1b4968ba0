// Package session owns one authenticated connection to the chat server:
// its lifecycle, the auth handshake, and the routing of inbound frames
// into the transcript.
package session

// ConnectionState is the lifecycle state of a session's connection.
type ConnectionState int

const (
	// StateDisconnected means no transport is open.
	StateDisconnected ConnectionState = iota
	// StateConnecting means the transport has just opened.
	StateConnecting
	// StateAuthPending means the auth frame was sent and no auth_success arrived yet.
	StateAuthPending
	// StateAuthenticated means auth_success was received on the current transport.
	StateAuthenticated
)

// String returns the lower-case name of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthPending:
		return "auth_pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Session is a point-in-time copy of the connection state.
type Session struct {
	// ID identifies the current connection; empty before the first connect.
	ID       string
	Token    string
	Username string
	State    ConnectionState
	// Connected reports whether the transport is open.
	Connected bool
	// Authenticated is true iff auth_success arrived since the transport opened.
	Authenticated bool
}

// UpdateKind says what changed.
type UpdateKind int

const (
	// UpdateState means the Session snapshot changed.
	UpdateState UpdateKind = iota
	// UpdateTranscript means entries were appended or replaced.
	UpdateTranscript
)

// Update notifies observers that the session or transcript changed.
// Updates coalesce: observers should re-read state instead of counting them.
type Update struct {
	Kind    UpdateKind
	Session Session
}
