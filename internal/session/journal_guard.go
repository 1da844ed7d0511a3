// Package session holds the per-process conversation session plumbing that
// sits between the turn pipeline and the durable journal.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/chica/pkg/memory"
)

// ErrDegraded is returned by [JournalGuard.Check] while the journal is
// failing.
var ErrDegraded = errors.New("session: journal degraded")

// JournalGuard wraps a [memory.SessionStore] and makes all operations
// non-fatal. If the underlying store fails, operations return defaults and
// the guard enters degraded mode instead of propagating errors, so a
// database outage never interrupts a conversation.
//
// The transition into degraded mode is logged at warn level and the recovery
// at info level; repeated failures while degraded are logged at debug level.
//
// JournalGuard implements [memory.SessionStore].
//
// All methods are safe for concurrent use.
type JournalGuard struct {
	store memory.SessionStore
	now   func() time.Time

	mu       sync.Mutex
	since    time.Time
	failures int
	lastErr  error
}

var _ memory.SessionStore = (*JournalGuard)(nil)

// NewJournalGuard creates a new [JournalGuard] wrapping store.
func NewJournalGuard(store memory.SessionStore) *JournalGuard {
	return &JournalGuard{store: store, now: time.Now}
}

// WriteEntry appends entry to the underlying store. Failures are swallowed.
func (g *JournalGuard) WriteEntry(ctx context.Context, sessionID string, entry memory.TranscriptEntry) error {
	g.observe("WriteEntry", g.store.WriteEntry(ctx, sessionID, entry), "session_id", sessionID)
	return nil
}

// GetRecent reads recent entries. On failure an empty slice is returned.
func (g *JournalGuard) GetRecent(ctx context.Context, sessionID string, duration time.Duration) ([]memory.TranscriptEntry, error) {
	entries, err := g.store.GetRecent(ctx, sessionID, duration)
	if g.observe("GetRecent", err, "session_id", sessionID, "duration", duration) {
		return []memory.TranscriptEntry{}, nil
	}
	return entries, nil
}

// Search performs a full-text search. On failure an empty slice is returned.
func (g *JournalGuard) Search(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.TranscriptEntry, error) {
	entries, err := g.store.Search(ctx, query, opts)
	if g.observe("Search", err, "query", query) {
		return []memory.TranscriptEntry{}, nil
	}
	return entries, nil
}

// IsDegraded reports whether the most recent operation on the underlying
// store failed.
func (g *JournalGuard) IsDegraded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures > 0
}

// Failures returns the number of consecutive failed operations.
func (g *JournalGuard) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}

// Check is a health check. It pings the store when it supports Ping and
// otherwise reports the degraded state of the last operation.
func (g *JournalGuard) Check(ctx context.Context) error {
	if p, ok := g.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failures == 0 {
		return nil
	}
	return errors.Join(ErrDegraded, g.lastErr)
}

// observe records the outcome of one store operation and reports whether it
// failed.
func (g *JournalGuard) observe(op string, err error, attrs ...any) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		if g.failures > 0 {
			slog.Info("journal recovered", "op", op, "failures", g.failures, "degraded_for", g.now().Sub(g.since))
		}
		g.failures, g.lastErr = 0, nil
		return false
	}

	attrs = append(attrs, "op", op, "err", err)
	if g.failures == 0 {
		g.since = g.now()
		slog.Warn("journal degraded, continuing without it", attrs...)
	} else {
		slog.Debug("journal still failing", attrs...)
	}
	g.failures++
	g.lastErr = err
	return true
}
