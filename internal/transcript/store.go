// Package transcript maintains the append-only conversation log for a
// tutoring session.
//
// Entries are immutable once appended and strictly ordered: a user entry
// always precedes its corresponding assistant entry. Only the session
// orchestrator appends; everything else reads.
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unamentis/unamentis/pkg/provider/llm"
)

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is a single immutable transcript entry.
type Entry struct {
	// ID is a unique entry identifier.
	ID string

	// SessionID is the owning session.
	SessionID string

	// Role is the entry author.
	Role Role

	// Text is the entry content.
	Text string

	// Timestamp is when the entry was appended.
	Timestamp time.Time

	// Metadata holds optional per-entry attributes (turn index, provider, …).
	Metadata map[string]string
}

// Store is the append-only transcript log for one session.
// Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	entries   []Entry
	now       func() time.Time
}

// NewStore returns an empty transcript store for the given session.
func NewStore(sessionID string) *Store {
	return &Store{
		sessionID: sessionID,
		now:       time.Now,
	}
}

// Append adds a new entry and returns it. The metadata map is copied; the
// caller may reuse it.
func (s *Store) Append(role Role, text string, metadata map[string]string) Entry {
	var meta map[string]string
	if metadata != nil {
		meta = make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entry{
		ID:        uuid.NewString(),
		SessionID: s.sessionID,
		Role:      role,
		Text:      text,
		Timestamp: s.now(),
		Metadata:  meta,
	}
	s.entries = append(s.entries, e)
	return e
}

// Entries returns a copy of all entries in append order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Messages renders the transcript as conversation history for prompt
// construction.
func (s *Store) Messages() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]llm.Message, len(s.entries))
	for i, e := range s.entries {
		out[i] = llm.Message{Role: string(e.Role), Content: e.Text}
	}
	return out
}
