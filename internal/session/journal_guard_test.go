package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/chica/pkg/memory"
	memorymock "github.com/MrWong99/chica/pkg/memory/mock"
)

func TestJournalGuard_WriteEntry(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		store := &memorymock.SessionStore{}
		g := NewJournalGuard(store)

		if err := g.WriteEntry(context.Background(), "s1", memory.TranscriptEntry{Text: "olá"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if g.IsDegraded() {
			t.Error("should not be degraded after successful write")
		}
		if store.CallCount("WriteEntry") != 1 {
			t.Errorf("expected 1 WriteEntry call, got %d", store.CallCount("WriteEntry"))
		}
	})

	t.Run("write failure is swallowed", func(t *testing.T) {
		store := &memorymock.SessionStore{WriteEntryErr: errors.New("disk full")}
		g := NewJournalGuard(store)

		if err := g.WriteEntry(context.Background(), "s1", memory.TranscriptEntry{Text: "olá"}); err != nil {
			t.Fatalf("expected nil error (swallowed), got %v", err)
		}
		if !g.IsDegraded() {
			t.Error("should be degraded after failed write")
		}
	})

	t.Run("recovers after successful write", func(t *testing.T) {
		store := &memorymock.SessionStore{WriteEntryErr: errors.New("temporary failure")}
		g := NewJournalGuard(store)

		_ = g.WriteEntry(context.Background(), "s1", memory.TranscriptEntry{Text: "a"})
		_ = g.WriteEntry(context.Background(), "s1", memory.TranscriptEntry{Text: "b"})
		if got := g.Failures(); got != 2 {
			t.Errorf("Failures() = %d, want 2", got)
		}

		store.WriteEntryErr = nil
		_ = g.WriteEntry(context.Background(), "s1", memory.TranscriptEntry{Text: "c"})
		if g.IsDegraded() {
			t.Error("should have recovered from degraded state")
		}
		if got := g.Failures(); got != 0 {
			t.Errorf("Failures() after recovery = %d, want 0", got)
		}
	})
}

func TestJournalGuard_Reads(t *testing.T) {
	entries := []memory.TranscriptEntry{{Text: "olá"}, {Text: "tchau"}}

	t.Run("successful reads pass through", func(t *testing.T) {
		store := &memorymock.SessionStore{GetRecentResult: entries, SearchResult: entries[:1]}
		g := NewJournalGuard(store)

		got, err := g.GetRecent(context.Background(), "s1", time.Hour)
		if err != nil || len(got) != 2 {
			t.Errorf("GetRecent() = %v, %v; want 2 entries", got, err)
		}
		got, err = g.Search(context.Background(), "olá", memory.SearchOpts{})
		if err != nil || len(got) != 1 {
			t.Errorf("Search() = %v, %v; want 1 entry", got, err)
		}
	})

	t.Run("failures return empty slices", func(t *testing.T) {
		store := &memorymock.SessionStore{
			GetRecentErr: errors.New("timeout"),
			SearchErr:    errors.New("timeout"),
		}
		g := NewJournalGuard(store)

		got, err := g.GetRecent(context.Background(), "s1", time.Hour)
		if err != nil || got == nil || len(got) != 0 {
			t.Errorf("GetRecent() = %v, %v; want empty non-nil slice", got, err)
		}
		got, err = g.Search(context.Background(), "x", memory.SearchOpts{})
		if err != nil || got == nil || len(got) != 0 {
			t.Errorf("Search() = %v, %v; want empty non-nil slice", got, err)
		}
		if !g.IsDegraded() {
			t.Error("should be degraded after failed reads")
		}
	})
}

type pingStore struct {
	memorymock.SessionStore
	pingErr error
}

func (p *pingStore) Ping(context.Context) error { return p.pingErr }

func TestJournalGuard_Check(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		g := NewJournalGuard(&memorymock.SessionStore{})
		if err := g.Check(context.Background()); err != nil {
			t.Errorf("Check() = %v, want nil", err)
		}
	})

	t.Run("degraded after failure", func(t *testing.T) {
		g := NewJournalGuard(&memorymock.SessionStore{WriteEntryErr: errors.New("disk full")})
		_ = g.WriteEntry(context.Background(), "s1", memory.TranscriptEntry{})
		err := g.Check(context.Background())
		if !errors.Is(err, ErrDegraded) {
			t.Errorf("Check() = %v, want ErrDegraded", err)
		}
	})

	t.Run("ping failure", func(t *testing.T) {
		pingErr := errors.New("connection refused")
		g := NewJournalGuard(&pingStore{pingErr: pingErr})
		if err := g.Check(context.Background()); !errors.Is(err, pingErr) {
			t.Errorf("Check() = %v, want the ping error", err)
		}
	})
}
