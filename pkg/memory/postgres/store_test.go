package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/chica/pkg/memory"
	"github.com/MrWong99/chica/pkg/memory/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if CHICA_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CHICA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHICA_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] on a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS journal_entries CASCADE"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_WriteAndGetRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID := memory.NewSessionID()
	now := time.Now()
	entries := []memory.TranscriptEntry{
		{
			Role:      memory.RoleUser,
			Text:      "olá chica",
			Decision:  "woken",
			Timestamp: now.Add(-10 * time.Minute),
			Duration:  1200 * time.Millisecond,
		},
		{
			Role:        memory.RoleAssistant,
			Text:        "Eu sou a Chica, sua assistente.",
			RawText:     "Eu sou a Chica, sua assistente! 😀",
			Interrupted: true,
			Timestamp:   now.Add(-9 * time.Minute),
			Duration:    3 * time.Second,
		},
		{
			Role:      memory.RoleUser,
			Text:      "como está o tempo hoje",
			Decision:  "converse",
			Timestamp: now.Add(-1 * time.Minute),
		},
	}
	for _, e := range entries {
		if err := store.WriteEntry(ctx, sessionID, e); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	}

	recent, err := store.GetRecent(ctx, sessionID, 30*time.Minute)
	if err != nil {
		t.Fatalf("GetRecent(30m): %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("GetRecent(30m): want 3, got %d", len(recent))
	}
	if _, err := uuid.Parse(recent[0].ID); err != nil {
		t.Errorf("generated ID %q is not a UUID", recent[0].ID)
	}
	if got := recent[1]; got.Role != memory.RoleAssistant || !got.Interrupted || got.RawText != entries[1].RawText || got.Duration != entries[1].Duration {
		t.Errorf("assistant entry not round-tripped: %+v", got)
	}

	narrow, err := store.GetRecent(ctx, sessionID, 5*time.Minute)
	if err != nil {
		t.Fatalf("GetRecent(5m): %v", err)
	}
	if len(narrow) != 1 || narrow[0].Text != entries[2].Text {
		t.Errorf("GetRecent(5m) = %+v", narrow)
	}

	other, err := store.GetRecent(ctx, memory.NewSessionID(), 30*time.Minute)
	if err != nil {
		t.Fatalf("GetRecent other: %v", err)
	}
	if other == nil || len(other) != 0 {
		t.Errorf("GetRecent other: want empty non-nil slice, got %v", other)
	}
}

func TestStore_WriteEntryValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.WriteEntry(ctx, "", memory.TranscriptEntry{Text: "x"}); err == nil {
		t.Error("expected error for empty session id")
	}
	if err := store.WriteEntry(ctx, "s", memory.TranscriptEntry{ID: "not-a-uuid", Text: "x"}); err == nil {
		t.Error("expected error for invalid id")
	}
}

func TestStore_Search(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sessionID := memory.NewSessionID()
	base := time.Now().Add(-5 * time.Minute)
	for i, e := range []memory.TranscriptEntry{
		{Role: memory.RoleUser, Text: "qual é a previsão do tempo para amanhã"},
		{Role: memory.RoleAssistant, Text: "Amanhã o tempo fica ensolarado."},
		{Role: memory.RoleUser, Text: "conte uma piada sobre gatos"},
	} {
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if err := store.WriteEntry(ctx, sessionID, e); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	}

	tests := []struct {
		name      string
		query     string
		opts      memory.SearchOpts
		wantCount int
	}{
		{"stemmed match", "tempos", memory.SearchOpts{SessionID: sessionID}, 2},
		{"role filter", "tempo", memory.SearchOpts{SessionID: sessionID, Role: memory.RoleAssistant}, 1},
		{"limit", "tempo", memory.SearchOpts{SessionID: sessionID, Limit: 1}, 1},
		{"after filter", "tempo", memory.SearchOpts{SessionID: sessionID, After: base.Add(30 * time.Second)}, 1},
		{"no match", "dinossauro", memory.SearchOpts{SessionID: sessionID}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Search(ctx, tt.query, tt.opts)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(got) != tt.wantCount {
				t.Errorf("Search(%q) returned %d entries, want %d", tt.query, len(got), tt.wantCount)
			}
		})
	}
}
