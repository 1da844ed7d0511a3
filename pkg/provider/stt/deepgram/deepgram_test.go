package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.Request{Audio: audio.Clip{SampleRate: 16000}})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "pt-BR", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_RequestLanguageWins(t *testing.T) {
	p, _ := New("key", WithModel("nova-2"), WithLanguage("en"))
	rawURL, err := p.buildURL(stt.Request{Language: "pt", Audio: audio.Clip{SampleRate: 48000}})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	q := mustQuery(t, rawURL)
	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "pt", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// ---- response parsing ----

func TestParseDeepgramResponse(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"final", `{"type":"Results","is_final":true,"duration":1.5,"channel":{"alternatives":[{"transcript":"olá chica","confidence":0.93}]}}`, "olá chica", true},
		{"interim skipped", `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"olá"}]}}`, "", false},
		{"metadata skipped", `{"type":"Metadata","request_id":"x"}`, "", false},
		{"no alternatives", `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`, "", false},
		{"garbage", `not json`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseDeepgramResponse([]byte(tt.in))
			if ok != tt.wantOK || got.Text != tt.want {
				t.Errorf("parseDeepgramResponse() = (%q, %v), want (%q, %v)", got.Text, ok, tt.want, tt.wantOK)
			}
			if ok && got.Duration != 1500*time.Millisecond {
				t.Errorf("Duration = %v, want 1.5s", got.Duration)
			}
		})
	}
}

// ---- end-to-end against a fake server ----

func TestTranscribe_StreamsAndJoinsFinals(t *testing.T) {
	var gotBytes atomic.Int64
	var gotAuth atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		for {
			typ, msg, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				gotBytes.Add(int64(len(msg)))
				continue
			}
			if strings.Contains(string(msg), "CloseStream") {
				break
			}
		}
		for _, m := range []string{
			`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"por"}]}}`,
			`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"por que o céu","confidence":0.8}]}}`,
			`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"é azul","confidence":0.9}]}}`,
		} {
			_ = c.Write(ctx, websocket.MessageText, []byte(m))
		}
		c.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	p, _ := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	clip := audio.Clip{Samples: make([]int16, 4000), SampleRate: 16000}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := p.Transcribe(ctx, stt.Request{Audio: clip, Language: "pt"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "por que o céu é azul" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", got.Confidence)
	}
	if gotBytes.Load() != 8000 {
		t.Errorf("server received %d audio bytes, want 8000", gotBytes.Load())
	}
	if gotAuth.Load() != "Token secret" {
		t.Errorf("Authorization = %v", gotAuth.Load())
	}
}

// ---- helpers ----

func mustQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	return u.Query()
}

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}
