package transcript_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/livechat/internal/transcript"
)

func TestSnapshot(t *testing.T) {
	entries := []transcript.Entry{
		msg("alice", "hi", "2024-01-01T00:00:00Z"),
		msg("bob", "yo", "2024-01-01T00:00:05Z"),
		transcript.LeftNotice("alice", time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)),
	}

	data, err := transcript.MarshalSnapshot(entries)
	require.NoError(t, err)

	got, err := transcript.UnmarshalSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestSnapshot_Empty(t *testing.T) {
	data, err := transcript.MarshalSnapshot(nil)
	require.NoError(t, err)

	got, err := transcript.UnmarshalSnapshot(data)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnmarshalSnapshot_Garbage(t *testing.T) {
	_, err := transcript.UnmarshalSnapshot([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
