// Package memory defines the assistant's conversation journal.
//
// The attention state machine keeps only a few messages of context in memory
// and forgets them when the assistant falls asleep. The journal is the durable
// record: every accepted utterance and every spoken reply is appended to a
// [SessionStore], keyed by a per-process session ID, so conversations can be
// reviewed and searched after the fact.
//
// All interfaces are public so that external packages can supply alternative
// storage backends without depending on chica internals.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SearchOpts configures a full-text search over journal entries.
// All non-zero fields are applied as AND conditions.
type SearchOpts struct {
	// SessionID restricts the search to a single session.
	// An empty string searches across all sessions.
	SessionID string

	// After filters entries recorded after this instant (exclusive).
	// A zero Time disables the lower bound.
	After time.Time

	// Before filters entries recorded before this instant (exclusive).
	// A zero Time disables the upper bound.
	Before time.Time

	// Role restricts results to one speaker role. Empty matches both.
	Role Role

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// SessionStore is the conversation journal: a time-ordered log of
// [TranscriptEntry] values grouped by session.
type SessionStore interface {
	// WriteEntry appends entry to the journal for the given session.
	// sessionID must be non-empty.
	// Returns an error only on persistent storage failure.
	WriteEntry(ctx context.Context, sessionID string, entry TranscriptEntry) error

	// GetRecent returns all entries for the given session whose Timestamp is
	// no earlier than time.Now()-duration, oldest first.
	// Returns an empty (non-nil) slice when no matching entries exist.
	GetRecent(ctx context.Context, sessionID string, duration time.Duration) ([]TranscriptEntry, error)

	// Search performs full-text search over the Text field.
	// Returns an empty (non-nil) slice when no entries match.
	Search(ctx context.Context, query string, opts SearchOpts) ([]TranscriptEntry, error)
}

// NewSessionID returns a fresh random session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NewEntryID returns a fresh random entry identifier.
func NewEntryID() string {
	return uuid.NewString()
}
