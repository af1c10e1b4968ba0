// Package transcript holds the ordered log of chat messages and system
// notices shown to the user.
//
// Entries are kept in arrival order. The store never sorts or deduplicates:
// server timestamps are metadata, not an ordering key.
package transcript

import (
	"fmt"
	"sync"
	"time"

	"github.com/omochice/livechat/pkg/protocol"
)

// SystemUsername is the author shown for synthesized notices.
const SystemUsername = "System"

// Entry is either a chat message or a system notice.
type Entry struct {
	protocol.ChatMessage
	System bool
}

// FromMessage wraps a server-issued chat message.
func FromMessage(m protocol.ChatMessage) Entry {
	return Entry{ChatMessage: m}
}

// JoinedNotice builds the notice appended when a user joins.
func JoinedNotice(username string, at time.Time) Entry {
	return notice(fmt.Sprintf("%s joined the chat.", username), at)
}

// LeftNotice builds the notice appended when a user leaves.
func LeftNotice(username string, at time.Time) Entry {
	return notice(fmt.Sprintf("%s left the chat.", username), at)
}

func notice(text string, at time.Time) Entry {
	return Entry{
		ChatMessage: protocol.ChatMessage{
			Username:  SystemUsername,
			Text:      text,
			CreatedAt: at.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		},
		System: true,
	}
}

// Store is an append-biased, ordered log of entries.
// Safe for concurrent use; readers always receive copies.
type Store struct {
	mu         sync.RWMutex
	entries    []Entry
	generation uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Append adds an entry after all existing ones.
func (s *Store) Append(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

// ReplaceAll discards the current entries and installs the given ones.
// The generation counter is bumped so observers can tell a replacement
// apart from appends.
func (s *Store) ReplaceAll(entries []Entry) {
	fresh := make([]Entry, len(entries))
	copy(fresh, entries)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = fresh
	s.generation++
}

// Entries returns a copy of the log in arrival order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Since returns a copy of the entries at index i and after.
func (s *Store) Since(i int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 {
		i = 0
	}
	if i >= len(s.entries) {
		return nil
	}
	out := make([]Entry, len(s.entries)-i)
	copy(out, s.entries[i:])
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Generation returns how many times ReplaceAll has been called.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}
