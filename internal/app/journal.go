package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/chica/pkg/memory"
)

// Journal query defaults for GET /journal.
const (
	defaultJournalWindow = time.Hour
	defaultJournalLimit  = 50
	maxJournalLimit      = 500
)

// journalEntry is the JSON form of a [memory.TranscriptEntry].
type journalEntry struct {
	ID          string        `json:"id"`
	Role        memory.Role   `json:"role"`
	Text        string        `json:"text"`
	RawText     string        `json:"raw_text,omitempty"`
	Decision    string        `json:"decision,omitempty"`
	Interrupted bool          `json:"interrupted,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration_ns"`
}

type journalResponse struct {
	SessionID string         `json:"session_id,omitempty"`
	Query     string         `json:"query,omitempty"`
	Entries   []journalEntry `json:"entries"`
}

// journalHandler serves a read-only view of the conversation journal.
//
//	GET /journal?since=30m           recent entries of this session
//	GET /journal?q=tempo&limit=10    full-text search in this session
//	GET /journal?q=tempo&session=all full-text search across sessions
//
// Search also accepts role=user|assistant. Journal failures are absorbed by
// the guard and show up as an empty list.
func (a *App) journalHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	sessionID := a.SessionID()
	switch s := params.Get("session"); s {
	case "":
	case "all":
		sessionID = ""
	default:
		sessionID = s
	}

	var (
		entries []memory.TranscriptEntry
		resp    = journalResponse{SessionID: sessionID}
	)
	if q := params.Get("q"); q != "" {
		opts, err := searchOpts(params.Get("limit"), params.Get("role"))
		if err != nil {
			writeJournalError(w, err)
			return
		}
		opts.SessionID = sessionID
		resp.Query = q
		entries, _ = a.guard.Search(r.Context(), q, opts)
	} else {
		if sessionID == "" {
			writeJournalError(w, fmt.Errorf("session=all requires a search query"))
			return
		}
		window := defaultJournalWindow
		if s := params.Get("since"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				writeJournalError(w, fmt.Errorf("since %q is not a positive duration", s))
				return
			}
			window = d
		}
		entries, _ = a.guard.GetRecent(r.Context(), sessionID, window)
	}

	resp.Entries = make([]journalEntry, 0, len(entries))
	for _, e := range entries {
		resp.Entries = append(resp.Entries, journalEntry{
			ID:          e.ID,
			Role:        e.Role,
			Text:        e.Text,
			RawText:     e.RawText,
			Decision:    e.Decision,
			Interrupted: e.Interrupted,
			Timestamp:   e.Timestamp,
			Duration:    e.Duration,
		})
	}
	writeJournalJSON(w, http.StatusOK, resp)
}

func searchOpts(limit, role string) (memory.SearchOpts, error) {
	opts := memory.SearchOpts{Limit: defaultJournalLimit}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("limit %q is not a positive integer", limit)
		}
		opts.Limit = min(n, maxJournalLimit)
	}
	switch memory.Role(role) {
	case "", memory.RoleUser, memory.RoleAssistant:
		opts.Role = memory.Role(role)
	default:
		return opts, fmt.Errorf("role %q is not user or assistant", role)
	}
	return opts, nil
}

func writeJournalError(w http.ResponseWriter, err error) {
	writeJournalJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func writeJournalJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
