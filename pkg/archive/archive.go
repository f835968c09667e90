// Package archive defines post-session persistence for completed tutoring
// sessions. An Archiver receives a finished session record — metadata plus
// the full transcript — and stores it durably. Archiving happens after the
// session ends and is never on the real-time audio path.
package archive

import (
	"context"
	"time"
)

// Entry is a single transcript entry within an archived session.
type Entry struct {
	// ID is the transcript entry identifier.
	ID string

	// Role is "user" or "assistant".
	Role string

	// Text is the entry content.
	Text string

	// Timestamp is when the entry was appended.
	Timestamp time.Time

	// Metadata holds optional per-entry attributes (turn index, provider, …).
	Metadata map[string]string
}

// Record is a completed session ready for archival.
type Record struct {
	// SessionID is the unique session identifier.
	SessionID string

	// TopicID identifies the curriculum topic covered, if any.
	TopicID string

	// StartedAt and EndedAt bound the session.
	StartedAt time.Time
	EndedAt   time.Time

	// TurnCount is the number of completed conversation turns.
	TurnCount int

	// TotalCost is the accumulated provider cost in USD.
	TotalCost float64

	// Entries is the ordered transcript.
	Entries []Entry
}

// Archiver stores completed session records.
//
// Implementations must be safe for concurrent use.
type Archiver interface {
	// Save persists the record. Saving a record whose SessionID already
	// exists replaces the stored copy.
	Save(ctx context.Context, rec *Record) error

	// Get retrieves a record by session ID. It returns (nil, nil) if no
	// record with the given ID exists.
	Get(ctx context.Context, sessionID string) (*Record, error)

	// List returns up to limit records ordered by EndedAt descending.
	// A non-positive limit returns all records.
	List(ctx context.Context, limit int) ([]Record, error)
}
