// Package session implements per-conversation history: the Session type and
// the Manager that owns persistence, dirty tracking, and TTL eviction.
package session

import (
	"sync"
	"time"

	"github.com/crystaldolphin/crystaldolphin/internal/schema"
)

// MaxMessages is the hard cap on a session's message history. Appending past
// this evicts the oldest non-system message (FIFO).
const MaxMessages = 50

// Session holds one conversation's messages and metadata.
//
// Invariants (enforced here, never by external mutation):
//   - len(Messages) <= MaxMessages
//   - LastAccessed >= CreatedAt
//   - Messages sorted by non-decreasing Timestamp
type Session struct {
	ID           string // "{channel}_{chat_id}"
	Channel      string
	ChatID       string
	CreatedAt    time.Time
	LastAccessed time.Time
	Messages     schema.Messages

	mu sync.Mutex
}

func newSession(id, channel, chatID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           id,
		Channel:      channel,
		ChatID:       chatID,
		CreatedAt:    now,
		LastAccessed: now,
		Messages:     schema.NewMessages(),
	}
}

// Append adds msg to the session, evicting the oldest non-system message
// (FIFO) if the cap is exceeded, and refreshes LastAccessed.
func (s *Session) Append(msg schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Messages.Add(msg)
	s.evictLocked()
	s.LastAccessed = time.Now().UTC()
}

func (s *Session) evictLocked() {
	msgs := s.Messages.Messages
	for len(msgs) > MaxMessages {
		idx := -1
		for i, m := range msgs {
			if m.Role != "system" {
				idx = i
				break
			}
		}
		if idx < 0 {
			break // only system messages left; nothing evictable
		}
		msgs = append(msgs[:idx], msgs[idx+1:]...)
	}
	s.Messages.Messages = msgs
}

// History returns a snapshot copy of the session's messages and refreshes
// LastAccessed, per the spec's "updated on any read or append" invariant.
func (s *Session) History() schema.Messages {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastAccessed = time.Now().UTC()
	return s.Messages.Clone()
}

// Len returns the number of messages currently held.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Messages.Messages)
}

// snapshot returns a consistent copy of the session's state for persistence.
func (s *Session) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Session{
		ID:           s.ID,
		Channel:      s.Channel,
		ChatID:       s.ChatID,
		CreatedAt:    s.CreatedAt,
		LastAccessed: s.LastAccessed,
		Messages:     s.Messages.Clone(),
	}
}
