// Package protocol implements the JSON wire frames exchanged with the chat server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotEncodable is returned when encoding a kind the client never sends.
var ErrNotEncodable = errors.New("envelope kind is not encodable")

// Kind identifies the type of an envelope.
type Kind int

const (
	// KindUnknown is any type the client does not route.
	KindUnknown Kind = iota
	// KindAuth carries the session token, client to server.
	KindAuth
	// KindAuthSuccess acknowledges the token.
	KindAuthSuccess
	// KindHistory carries the backlog sent after authentication.
	KindHistory
	// KindMessage is a chat message in either direction.
	KindMessage
	// KindUserJoined announces a user entering the chat.
	KindUserJoined
	// KindUserLeft announces a user leaving the chat.
	KindUserLeft
	// KindError carries a server-side error message.
	KindError
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindAuthSuccess:
		return "auth_success"
	case KindHistory:
		return "history"
	case KindMessage:
		return "message"
	case KindUserJoined:
		return "user_joined"
	case KindUserLeft:
		return "user_left"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// kindFromWire maps a `type` field onto a Kind.
// Unrecognised names map to KindUnknown so the dispatcher can ignore them.
func kindFromWire(name string) Kind {
	switch name {
	case "auth":
		return KindAuth
	case "auth_success":
		return KindAuthSuccess
	case "history":
		return KindHistory
	case "message":
		return KindMessage
	case "user_joined":
		return KindUserJoined
	case "user_left":
		return KindUserLeft
	case "error":
		return KindError
	default:
		return KindUnknown
	}
}

// ChatMessage is a single user message as sent by the server.
type ChatMessage struct {
	Username  string `json:"username"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

// Envelope is a decoded frame. Which fields are meaningful depends on Kind:
//
//	KindAuth                    Token
//	KindMessage (outbound)      Text
//	KindMessage (inbound)       Message
//	KindHistory                 History
//	KindUserJoined, KindUserLeft Username
//	KindError                   Error
//	KindUnknown                 Type holds the unrecognised wire name
//
// HasPayload is set when a decoded frame carried a payload field.
type Envelope struct {
	Kind       Kind
	Type       string
	Token      string
	Text       string
	Message    ChatMessage
	History    []ChatMessage
	Username   string
	Error      string
	HasPayload bool
}

// NewAuth builds the handshake envelope.
func NewAuth(token string) Envelope {
	return Envelope{Kind: KindAuth, Token: token}
}

// NewText builds an outbound chat message envelope.
func NewText(text string) Envelope {
	return Envelope{Kind: KindMessage, Text: text}
}

// ParseError reports a frame that could not be decoded.
type ParseError struct {
	Type string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("failed to decode frame: %v", e.Err)
	}
	return fmt.Sprintf("failed to decode %q frame: %v", e.Type, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// frame mirrors the union of every field that appears on the wire.
type frame struct {
	Type    string          `json:"type"`
	Token   string          `json:"token,omitempty"`
	Text    string          `json:"text,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

type presencePayload struct {
	Username string `json:"username"`
}

// Encode serializes the outbound kinds (auth and message).
func (e Envelope) Encode() ([]byte, error) {
	var f frame
	switch e.Kind {
	case KindAuth:
		f = frame{Type: KindAuth.String(), Token: e.Token}
	case KindMessage:
		f = frame{Type: KindMessage.String(), Text: e.Text}
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotEncodable, e.Kind)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a raw frame into the envelope.
// Unknown types decode successfully as KindUnknown; unparseable frames,
// frames without a type and known types with malformed payloads return a *ParseError.
func (e *Envelope) Decode(data []byte) error {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return &ParseError{Err: err}
	}
	if f.Type == "" {
		return &ParseError{Err: errors.New("missing type field")}
	}

	out := Envelope{Kind: kindFromWire(f.Type), Type: f.Type, HasPayload: len(f.Payload) > 0 && string(f.Payload) != "null"}
	switch out.Kind {
	case KindAuth:
		out.Token = f.Token
	case KindAuthSuccess:
	case KindHistory:
		if err := decodePayload(f.Payload, &out.History); err != nil {
			return &ParseError{Type: f.Type, Err: err}
		}
	case KindMessage:
		if len(f.Payload) == 0 {
			// client-originated shape
			out.Text = f.Text
			break
		}
		if err := decodePayload(f.Payload, &out.Message); err != nil {
			return &ParseError{Type: f.Type, Err: err}
		}
	case KindUserJoined, KindUserLeft:
		var p presencePayload
		if err := decodePayload(f.Payload, &p); err != nil {
			return &ParseError{Type: f.Type, Err: err}
		}
		out.Username = p.Username
	case KindError:
		out.Error = f.Message
	}

	*e = out
	return nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
