package session

import (
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/omochice/livechat/internal/transcript"
	"github.com/omochice/livechat/pkg/protocol"
)

// Dispatcher routes decoded envelopes of one connection to the auth state
// or the transcript. It is not safe for concurrent use; the manager calls
// it from a single goroutine.
type Dispatcher struct {
	transcript *transcript.Store
	onAuth     func()
	now        func() time.Time
	log        *slog.Logger

	histories int
	live      int
}

// NewDispatcher creates a dispatcher. onAuth runs on every auth_success.
func NewDispatcher(store *transcript.Store, onAuth func(), now func() time.Time, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		transcript: store,
		onAuth:     onAuth,
		now:        now,
		log:        log,
	}
}

// Dispatch applies env and reports whether the transcript changed.
func (d *Dispatcher) Dispatch(env protocol.Envelope) bool {
	switch env.Kind {
	case protocol.KindAuthSuccess:
		d.onAuth()
		return false

	case protocol.KindHistory:
		d.histories++
		if d.histories > 1 || d.live > 0 {
			// Repeated history is not rejected; it overwrites again.
			d.log.Warn("history replaced transcript mid-session",
				"history_count", d.histories, "live_entries_dropped", d.live)
		}
		d.live = 0
		d.transcript.ReplaceAll(lo.Map(env.History, func(m protocol.ChatMessage, _ int) transcript.Entry {
			return transcript.FromMessage(m)
		}))
		return true

	case protocol.KindMessage:
		if !env.HasPayload {
			d.log.Warn("ignoring message frame without payload")
			return false
		}
		d.append(transcript.FromMessage(env.Message))
		return true

	case protocol.KindUserJoined:
		d.append(transcript.JoinedNotice(env.Username, d.now()))
		return true

	case protocol.KindUserLeft:
		d.append(transcript.LeftNotice(env.Username, d.now()))
		return true

	case protocol.KindError:
		d.log.Warn("server reported an error", "message", env.Error)
		return false

	default:
		d.log.Debug("ignoring unroutable frame", "type", env.Type)
		return false
	}
}

func (d *Dispatcher) append(e transcript.Entry) {
	d.live++
	d.transcript.Append(e)
}
