package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omochice/livechat/internal/transcript"
	"github.com/omochice/livechat/internal/transport"
	"github.com/omochice/livechat/pkg/protocol"
)

// Config holds connection settings for a Manager.
type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://localhost:8000.
	URL string
	// DialTimeout bounds opening the transport. Zero means no extra bound.
	DialTimeout time.Duration
	// WriteTimeout bounds a single outbound frame. Zero means defaultWriteTimeout.
	WriteTimeout time.Duration
	// InboundBuffer is the capacity of the ordered inbound frame queue.
	InboundBuffer int
}

const (
	defaultInboundBuffer = 64
	defaultWriteTimeout  = 10 * time.Second
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the operational log sink.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithClock overrides the clock used to stamp system notices.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTranscript makes the manager write into store instead of a private one.
func WithTranscript(store *transcript.Store) Option {
	return func(m *Manager) { m.transcript = store }
}

// WithOnLogout registers the callback run by Logout after the connection is closed.
func WithOnLogout(fn func()) Option {
	return func(m *Manager) { m.onLogout = fn }
}

// Manager owns the single connection of a chat session.
//
// All inbound frames of a connection are decoded and applied by one
// goroutine, in arrival order. Session and transcript are only mutated
// there, by Connect before that goroutine starts, and by teardown.
type Manager struct {
	cfg        Config
	dialer     transport.Dialer
	log        *slog.Logger
	now        func() time.Time
	onLogout   func()
	transcript *transcript.Store
	updates    chan Update

	// lifecycle serialises Connect and Close.
	lifecycle sync.Mutex
	wg        sync.WaitGroup

	mu      sync.RWMutex
	session Session
	conn    transport.Conn
	connLog *slog.Logger
	cancel  context.CancelFunc
}

// NewManager creates a disconnected Manager.
func NewManager(cfg Config, dialer transport.Dialer, opts ...Option) *Manager {
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = defaultInboundBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	m := &Manager{
		cfg:     cfg,
		dialer:  dialer,
		log:     slog.New(slog.DiscardHandler),
		now:     time.Now,
		updates: make(chan Update, 16),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.transcript == nil {
		m.transcript = transcript.NewStore()
	}
	m.connLog = m.log
	return m
}

// Connect opens the transport, sends the auth frame and starts consuming
// inbound frames. It returns once the session is AuthPending; authentication
// completes asynchronously when auth_success arrives.
//
// The connection is bound to ctx: cancelling it closes the socket.
func (m *Manager) Connect(ctx context.Context, token, username string) (Session, error) {
	if token == "" {
		return m.Snapshot(), ErrNoToken
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.isOpen() {
		return m.Snapshot(), ErrAlreadyConnected
	}

	dialCtx := ctx
	if m.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.cfg.DialTimeout)
		defer cancel()
	}
	conn, err := m.dialer.Dial(dialCtx, m.cfg.URL)
	if err != nil {
		m.log.Error("connection failed", "url", m.cfg.URL, "error", err)
		return m.Snapshot(), &TransportError{Op: "dial", Err: err}
	}

	id := uuid.NewString()
	log := m.log.With("conn_id", id)
	runCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.conn = conn
	m.connLog = log
	m.cancel = cancel
	m.session = Session{ID: id, Token: token, Username: username}
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()
	m.notify(UpdateState)
	log.Info("connected", "url", m.cfg.URL, "remote", conn.RemoteAddr(), "username", username)

	authCtx, authCancel := context.WithTimeout(runCtx, m.cfg.WriteTimeout)
	err = NewHandshake(token).Send(authCtx, conn)
	authCancel()
	if err != nil {
		log.Error("auth handshake failed", "error", err)
		m.teardown(conn, log, err)
		return m.Snapshot(), err
	}
	m.setState(conn, StateAuthPending)

	inbound := make(chan frameOrErr, m.cfg.InboundBuffer)
	dispatcher := NewDispatcher(m.transcript, func() {
		m.setState(conn, StateAuthenticated)
		log.Info("authenticated")
	}, m.now, log)

	m.wg.Add(2)
	go m.readLoop(runCtx, conn, inbound)
	go m.eventLoop(runCtx, conn, inbound, dispatcher, log)

	return m.Snapshot(), nil
}

// Send transmits a chat message once the auth frame is on the wire.
// Blank input, and input while disconnected or still connecting, is dropped
// silently; nothing is queued or retried and the transcript is never
// touched. It reports whether the frame was handed to the transport.
func (m *Manager) Send(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	m.mu.RLock()
	conn, log, state := m.conn, m.connLog, m.session.State
	m.mu.RUnlock()

	if conn == nil {
		log.Debug("dropping outbound message: transport not open")
		return false
	}
	// nothing may precede the auth frame
	if state == StateConnecting {
		log.Debug("dropping outbound message: auth frame not sent yet")
		return false
	}

	data, err := protocol.NewText(text).Encode()
	if err != nil {
		log.Error("failed to encode message", "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, data); err != nil {
		log.Warn("dropping outbound message", "error", err)
		return false
	}
	return true
}

// Close closes the connection, if any, and waits for its goroutines to exit.
// Safe to call any number of times.
func (m *Manager) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.RLock()
	cancel := m.cancel
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	return nil
}

// Logout closes the session and signals the credentials owner.
func (m *Manager) Logout() error {
	err := m.Close()
	if m.onLogout != nil {
		m.onLogout()
	}
	return err
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Transcript returns a copy of the transcript in display order.
func (m *Manager) Transcript() []transcript.Entry {
	return m.transcript.Entries()
}

// Updates delivers change notifications. The channel is never closed.
func (m *Manager) Updates() <-chan Update {
	return m.updates
}

type frameOrErr struct {
	data []byte
	err  error
}

func (m *Manager) readLoop(ctx context.Context, conn transport.Conn, out chan<- frameOrErr) {
	defer m.wg.Done()
	defer close(out)

	for {
		data, err := conn.Read(ctx)
		select {
		case out <- frameOrErr{data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (m *Manager) eventLoop(ctx context.Context, conn transport.Conn, in <-chan frameOrErr, d *Dispatcher, log *slog.Logger) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.teardown(conn, log, ctx.Err())
			return
		case f, ok := <-in:
			if !ok {
				m.teardown(conn, log, ctx.Err())
				return
			}
			if f.err != nil {
				m.teardown(conn, log, &TransportError{Op: "read", Err: f.err})
				return
			}
			m.handleFrame(f.data, d, log)
		}
	}
}

func (m *Manager) handleFrame(data []byte, d *Dispatcher, log *slog.Logger) {
	var env protocol.Envelope
	if err := env.Decode(data); err != nil {
		log.Error("dropping undecodable frame", "error", err, "size", len(data))
		return
	}
	log.Debug("frame received", "type", env.Type)
	if d.Dispatch(env) {
		m.notify(UpdateTranscript)
	}
}

// teardown closes conn and, if it is still the current connection, resets
// the session to Disconnected. Runs exactly once per connection.
func (m *Manager) teardown(conn transport.Conn, log *slog.Logger, cause error) {
	if err := conn.Close(); err != nil {
		log.Debug("error closing transport", "error", err)
	}

	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.setStateLocked(StateDisconnected)
	}
	m.mu.Unlock()
	m.notify(UpdateState)

	if cause == nil || errors.Is(cause, context.Canceled) {
		log.Info("disconnected")
	} else {
		log.Warn("connection lost", "error", cause)
	}
}

func (m *Manager) isOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil
}

// setState moves to state if conn is still the current connection.
func (m *Manager) setState(conn transport.Conn, state ConnectionState) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(state)
	m.mu.Unlock()
	m.notify(UpdateState)
}

func (m *Manager) setStateLocked(state ConnectionState) {
	m.session.State = state
	m.session.Connected = state != StateDisconnected
	m.session.Authenticated = state == StateAuthenticated
}

func (m *Manager) notify(kind UpdateKind) {
	select {
	case m.updates <- Update{Kind: kind, Session: m.Snapshot()}:
	default:
	}
}
