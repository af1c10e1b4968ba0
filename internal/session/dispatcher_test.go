package session_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/livechat/internal/session"
	"github.com/omochice/livechat/internal/transcript"
	"github.com/omochice/livechat/pkg/protocol"
)

var fixedNow = time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)

func newDispatcher(t *testing.T) (*session.Dispatcher, *transcript.Store, *int) {
	t.Helper()
	store := transcript.NewStore()
	auths := 0
	d := session.NewDispatcher(store, func() { auths++ }, func() time.Time { return fixedNow },
		logs.GetLoggerFromLevel(slog.LevelDebug))
	return d, store, &auths
}

func decode(t *testing.T, raw string) protocol.Envelope {
	t.Helper()
	var env protocol.Envelope
	require.NoError(t, env.Decode([]byte(raw)))
	return env
}

func TestDispatcher_Scenario(t *testing.T) {
	d, store, auths := newDispatcher(t)

	assert.False(t, d.Dispatch(decode(t, `{"type":"auth_success"}`)))
	assert.Equal(t, 1, *auths)

	assert.True(t, d.Dispatch(decode(t, `{"type":"history","payload":[{"username":"alice","text":"hi","createdAt":"2024-01-01T00:00:00Z"}]}`)))
	assert.True(t, d.Dispatch(decode(t, `{"type":"message","payload":{"username":"bob","text":"yo","createdAt":"2024-01-01T00:00:05Z"}}`)))
	assert.True(t, d.Dispatch(decode(t, `{"type":"user_left","payload":{"username":"alice"}}`)))

	got := store.Entries()
	require.Len(t, got, 3)
	assert.Equal(t, transcript.Entry{ChatMessage: protocol.ChatMessage{Username: "alice", Text: "hi", CreatedAt: "2024-01-01T00:00:00Z"}}, got[0])
	assert.Equal(t, transcript.Entry{ChatMessage: protocol.ChatMessage{Username: "bob", Text: "yo", CreatedAt: "2024-01-01T00:00:05Z"}}, got[1])
	assert.Equal(t, transcript.Entry{
		ChatMessage: protocol.ChatMessage{Username: "System", Text: "alice left the chat.", CreatedAt: "2024-01-01T00:01:00.000Z"},
		System:      true,
	}, got[2])
}

func TestDispatcher_HistoryThenMessages(t *testing.T) {
	for _, n := range []int{0, 1, 5, 20} {
		d, store, _ := newDispatcher(t)
		d.Dispatch(decode(t, `{"type":"history","payload":[{"username":"a","text":"h1","createdAt":"x"},{"username":"b","text":"h2","createdAt":"x"}]}`))
		for i := 0; i < n; i++ {
			d.Dispatch(protocol.Envelope{Kind: protocol.KindMessage, HasPayload: true, Message: protocol.ChatMessage{
				Username: "c", Text: string(rune('a' + i)), CreatedAt: "2000-01-01T00:00:00Z",
			}})
		}

		got := store.Entries()
		require.Len(t, got, 2+n)
		assert.Equal(t, "h1", got[0].Text)
		assert.Equal(t, "h2", got[1].Text)
		for i := 0; i < n; i++ {
			assert.Equal(t, string(rune('a'+i)), got[2+i].Text)
		}
	}
}

func TestDispatcher_SecondHistoryOverwrites(t *testing.T) {
	d, store, _ := newDispatcher(t)

	d.Dispatch(decode(t, `{"type":"history","payload":[{"username":"a","text":"old","createdAt":"x"}]}`))
	d.Dispatch(decode(t, `{"type":"user_joined","payload":{"username":"z"}}`))
	d.Dispatch(decode(t, `{"type":"history","payload":[{"username":"a","text":"new","createdAt":"y"}]}`))

	got := store.Entries()
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Text)
	assert.Equal(t, uint64(2), store.Generation())
}

func TestDispatcher_PresenceNotices(t *testing.T) {
	d, store, _ := newDispatcher(t)
	d.Dispatch(decode(t, `{"type":"message","payload":{"username":"bob","text":"yo","createdAt":"t"}}`))
	before := store.Entries()

	d.Dispatch(decode(t, `{"type":"user_joined","payload":{"username":"carol"}}`))
	d.Dispatch(decode(t, `{"type":"user_left","payload":{"username":"carol"}}`))

	got := store.Entries()
	require.Len(t, got, 3)
	assert.Equal(t, before[0], got[0])
	assert.Equal(t, "carol joined the chat.", got[1].Text)
	assert.Equal(t, "carol left the chat.", got[2].Text)
	assert.True(t, got[1].System)
	assert.True(t, got[2].System)
}

func TestDispatcher_EmptyMessagePayloadIsAppended(t *testing.T) {
	d, store, _ := newDispatcher(t)

	assert.True(t, d.Dispatch(decode(t, `{"type":"message","payload":{}}`)))

	got := store.Entries()
	require.Len(t, got, 1)
	assert.Equal(t, transcript.Entry{}, got[0])
}

func TestDispatcher_NoTranscriptEffect(t *testing.T) {
	tests := []struct {
		name string
		env  protocol.Envelope
	}{
		{"error envelope", protocol.Envelope{Kind: protocol.KindError, Type: "error", Error: "Invalid token"}},
		{"unknown kind", protocol.Envelope{Kind: protocol.KindUnknown, Type: "typing"}},
		{"auth echoed by server", protocol.Envelope{Kind: protocol.KindAuth, Type: "auth", Token: "t"}},
		{"message without payload", protocol.Envelope{Kind: protocol.KindMessage, Type: "message", Text: "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, store, auths := newDispatcher(t)
			store.Append(transcript.FromMessage(protocol.ChatMessage{Username: "a", Text: "keep", CreatedAt: "t"}))

			assert.False(t, d.Dispatch(tt.env))
			assert.Equal(t, 0, *auths)
			assert.Len(t, store.Entries(), 1)
		})
	}
}
