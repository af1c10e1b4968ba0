package transcript_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/livechat/internal/transcript"
	"github.com/omochice/livechat/pkg/protocol"
)

func msg(user, text, at string) transcript.Entry {
	return transcript.FromMessage(protocol.ChatMessage{Username: user, Text: text, CreatedAt: at})
}

func TestStore_AppendPreservesArrivalOrder(t *testing.T) {
	s := transcript.NewStore()

	// out-of-order and duplicate timestamps are kept as received
	s.Append(msg("bob", "second", "2024-01-01T00:00:05Z"))
	s.Append(msg("alice", "first", "2024-01-01T00:00:00Z"))
	s.Append(msg("alice", "first", "2024-01-01T00:00:00Z"))

	got := s.Entries()
	require.Len(t, got, 3)
	assert.Equal(t, "second", got[0].Text)
	assert.Equal(t, "first", got[1].Text)
	assert.Equal(t, got[1], got[2])
}

func TestStore_ReplaceAll(t *testing.T) {
	s := transcript.NewStore()
	s.Append(msg("x", "stale", ""))
	require.Equal(t, uint64(0), s.Generation())

	history := []transcript.Entry{msg("alice", "hi", "t0"), msg("bob", "yo", "t1")}
	s.ReplaceAll(history)

	assert.Equal(t, history, s.Entries())
	assert.Equal(t, uint64(1), s.Generation())

	history[0].Text = "mutated by caller"
	assert.Equal(t, "hi", s.Entries()[0].Text, "store must not alias the caller's slice")

	s.ReplaceAll(nil)
	assert.Empty(t, s.Entries())
	assert.Equal(t, uint64(2), s.Generation())
}

func TestStore_EntriesReturnsCopy(t *testing.T) {
	s := transcript.NewStore()
	s.Append(msg("alice", "hi", "t0"))

	view := s.Entries()
	view[0].Text = "changed"

	assert.Equal(t, "hi", s.Entries()[0].Text)
}

func TestStore_AppendDoesNotAlterPriorEntries(t *testing.T) {
	s := transcript.NewStore()
	s.Append(msg("alice", "hi", "t0"))
	s.Append(msg("bob", "yo", "t1"))
	before := s.Entries()

	s.Append(transcript.LeftNotice("alice", time.Now()))

	after := s.Entries()
	require.Len(t, after, 3)
	assert.Equal(t, before, after[:2])
}

func TestStore_Since(t *testing.T) {
	s := transcript.NewStore()
	for i := 0; i < 4; i++ {
		s.Append(msg("u", fmt.Sprint(i), ""))
	}

	tests := []struct {
		name  string
		from  int
		texts []string
	}{
		{"from start", 0, []string{"0", "1", "2", "3"}},
		{"from middle", 2, []string{"2", "3"}},
		{"past end", 4, nil},
		{"negative", -1, []string{"0", "1", "2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var texts []string
			for _, e := range s.Since(tt.from) {
				texts = append(texts, e.Text)
			}
			assert.Equal(t, tt.texts, texts)
		})
	}
}

func TestNotices(t *testing.T) {
	at := time.Date(2024, 1, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	joined := transcript.JoinedNotice("carol", at)
	assert.True(t, joined.System)
	assert.Equal(t, transcript.SystemUsername, joined.Username)
	assert.Equal(t, "carol joined the chat.", joined.Text)
	assert.Equal(t, "2024-01-01T08:30:00.000Z", joined.CreatedAt)

	left := transcript.LeftNotice("alice", at)
	assert.Equal(t, "alice left the chat.", left.Text)
	assert.Equal(t, "System", left.Username)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := transcript.NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Entries()
				_ = s.Len()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		s.Append(msg("u", fmt.Sprint(i), ""))
	}
	wg.Wait()

	assert.Equal(t, 100, s.Len())
}
