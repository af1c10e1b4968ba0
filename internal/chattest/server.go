// Package chattest provides a chat server that speaks the server side of
// the wire protocol. It backs the integration tests and the local
// development server.
package chattest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omochice/livechat/pkg/protocol"
)

// Handler accepts WebSocket clients, authenticates them by token and fans
// chat traffic out to every authenticated client.
type Handler struct {
	upgrader websocket.Upgrader
	hub      *hub
	now      func() time.Time
	log      *slog.Logger

	mu       sync.Mutex
	users    map[string]string
	history  []protocol.ChatMessage
	silent   bool
	received chan []byte
}

// Option configures a Handler.
type Option func(*Handler)

// WithUser accepts token and maps it to username.
func WithUser(token, username string) Option {
	return func(h *Handler) { h.users[token] = username }
}

// WithHistory sets the history sent after a successful auth.
func WithHistory(msgs ...protocol.ChatMessage) Option {
	return func(h *Handler) { h.history = append(h.history, msgs...) }
}

// WithoutAuthReply makes the server never answer auth frames.
func WithoutAuthReply() Option {
	return func(h *Handler) { h.silent = true }
}

// WithClock sets the clock used to stamp relayed messages.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithLogger sets the sink for connection events.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// NewHandler creates a protocol handler that can be mounted on any http.Server.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		hub:      newHub(),
		now:      time.Now,
		log:      slog.New(slog.DiscardHandler),
		users:    make(map[string]string),
		received: make(chan []byte, 1024),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Server is a Handler listening on a local test address.
type Server struct {
	*Handler
	srv *httptest.Server
}

// NewServer starts a server. Call Close when done.
func NewServer(opts ...Option) *Server {
	h := NewHandler(opts...)
	return &Server{Handler: h, srv: httptest.NewServer(h)}
}

// URL returns the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Close drops every client and stops the server.
func (s *Server) Close() {
	s.hub.closeAll()
	s.srv.Close()
}

// Received yields every frame read from any client, in arrival order.
// Frames are dropped once the buffer is full.
func (h *Handler) Received() <-chan []byte {
	return h.received
}

// Send writes a raw frame to every connected client, authenticated or not.
func (h *Handler) Send(raw string) {
	h.hub.each(func(p *peer) { _ = p.write([]byte(raw)) })
}

// DropAll closes every client connection without a close handshake.
func (h *Handler) DropAll() {
	h.hub.closeAll()
}

// ClientCount returns the number of connected clients.
func (h *Handler) ClientCount() int {
	return h.hub.count()
}

// ServeHTTP upgrades the request and serves one client until it disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	p := &peer{conn: conn}
	h.hub.register(p)
	h.log.Info("client connected", "remote", r.RemoteAddr, "clients", h.hub.count())
	defer func() {
		h.hub.unregister(p)
		_ = conn.Close()
		h.log.Info("client disconnected", "remote", r.RemoteAddr, "username", p.name())
		if name := p.name(); name != "" {
			h.broadcast(p, envelope{Type: "user_left", Payload: presence{Username: name}})
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case h.received <- data:
		default:
		}
		h.handleFrame(p, data)
	}
}

func (h *Handler) handleFrame(p *peer, data []byte) {
	var env protocol.Envelope
	if err := env.Decode(data); err != nil {
		_ = p.writeJSON(envelope{Type: "error", Message: "Invalid message format"})
		return
	}

	switch env.Kind {
	case protocol.KindAuth:
		h.mu.Lock()
		name, ok := h.users[env.Token]
		silent := h.silent
		history := append([]protocol.ChatMessage{}, h.history...)
		h.mu.Unlock()

		if silent {
			return
		}
		if !ok {
			h.log.Warn("rejected token")
			_ = p.writeJSON(envelope{Type: "error", Message: "Invalid token"})
			return
		}
		p.setName(name)
		h.log.Info("client authenticated", "username", name)
		_ = p.writeJSON(envelope{Type: "auth_success"})
		_ = p.writeJSON(envelope{Type: "history", Payload: history})
		h.broadcast(p, envelope{Type: "user_joined", Payload: presence{Username: name}})

	case protocol.KindMessage:
		name := p.name()
		if name == "" {
			_ = p.writeJSON(envelope{Type: "error", Message: "Not authenticated"})
			return
		}
		msg := protocol.ChatMessage{
			Username:  name,
			Text:      env.Text,
			CreatedAt: h.now().UTC().Format(time.RFC3339),
		}
		h.mu.Lock()
		h.history = append(h.history, msg)
		h.mu.Unlock()
		h.broadcast(nil, envelope{Type: "message", Payload: msg})
	}
}

// broadcast sends env to every authenticated peer except skip.
func (h *Handler) broadcast(skip *peer, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.hub.each(func(p *peer) {
		if p == skip || p.name() == "" {
			return
		}
		_ = p.write(data)
	})
}

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Message string `json:"message,omitempty"`
}

type presence struct {
	Username string `json:"username"`
}
