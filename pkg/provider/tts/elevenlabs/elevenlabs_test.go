package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/provider/tts"
)

func TestNew(t *testing.T) {
	t.Run("empty api key", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Fatal("expected error for empty API key")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		p, err := New("key")
		if err != nil {
			t.Fatal(err)
		}
		if p.model != defaultModel || p.outputFormat != defaultOutputFmt {
			t.Errorf("defaults = %q %q", p.model, p.outputFormat)
		}
	})

	t.Run("options", func(t *testing.T) {
		p, err := New("key", WithModel("eleven_multilingual_v2"), WithOutputFormat("pcm_24000"))
		if err != nil {
			t.Fatal(err)
		}
		if got := p.wsURL("voz"); got != "wss://api.elevenlabs.io/v1/text-to-speech/voz/stream-input?model_id=eleven_multilingual_v2&output_format=pcm_24000" {
			t.Errorf("wsURL = %q", got)
		}
	})

	t.Run("non pcm format rejected", func(t *testing.T) {
		if _, err := New("key", WithOutputFormat("mp3_44100_128")); err == nil {
			t.Fatal("expected error for mp3 output")
		}
	})
}

func TestSynthesize(t *testing.T) {
	gotCh := make(chan []textMessage, 1)
	pcm := audio.SamplesToBytes([]int16{1, 2, 3, 4})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/text-to-speech/voz123/stream-input") {
			http.NotFound(w, r)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		var msgs []textMessage
		for range 3 {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m textMessage
			_ = json.Unmarshal(data, &m)
			msgs = append(msgs, m)
		}
		gotCh <- msgs
		for _, half := range [][]byte{pcm[:4], pcm[4:]} {
			msg, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(half)})
			_ = conn.Write(ctx, websocket.MessageText, msg)
		}
		msg, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = conn.Write(ctx, websocket.MessageText, msg)
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	p, err := New("secret", WithBaseURLs("ws"+strings.TrimPrefix(srv.URL, "http"), srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	clip, err := p.Synthesize(context.Background(), "Olá!", tts.VoiceProfile{ID: "voz123", Speed: 1.2})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 16000 || len(clip.Samples) != 4 || clip.Samples[3] != 4 {
		t.Errorf("clip = %+v", clip)
	}

	received := <-gotCh
	if len(received) != 3 {
		t.Fatalf("received %d messages, want 3", len(received))
	}
	if received[0].XiAPIKey != "secret" || received[0].VoiceSettings == nil || received[0].VoiceSettings.Speed != 1.2 {
		t.Errorf("first message = %+v", received[0])
	}
	if received[1].Text != "Olá! " || received[1].XiAPIKey != "" {
		t.Errorf("text message = %+v", received[1])
	}
	if received[2].Text != "" {
		t.Errorf("flush message = %+v", received[2])
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		_, _, _ = conn.Read(r.Context())
		msg, _ := json.Marshal(audioResponse{Error: "quota_exceeded", Message: "out of credits"})
		_ = conn.Write(r.Context(), websocket.MessageText, msg)
	}))
	defer srv.Close()

	p, err := New("secret", WithBaseURLs("ws"+strings.TrimPrefix(srv.URL, "http"), srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Synthesize(context.Background(), "Olá!", tts.VoiceProfile{ID: "v"})
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Errorf("err = %v, want quota error", err)
	}
}

func TestSynthesize_Validation(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Synthesize(context.Background(), "oi", tts.VoiceProfile{}); err == nil {
		t.Error("expected error for empty voice ID")
	}
	if clip, err := p.Synthesize(context.Background(), " ", tts.VoiceProfile{ID: "v"}); err != nil || !clip.IsEmpty() {
		t.Errorf("Synthesize(blank) = %v, %v", clip, err)
	}
}

func TestListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != voicesPath || r.Header.Get("xi-api-key") != "key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"abc","name":"Bia","category":"premade","labels":{"accent":"brazilian"}},{"voice_id":"def","name":"Leo"}]}`))
	}))
	defer srv.Close()

	p, err := New("key", WithBaseURLs("ws://unused", srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].ID != "abc" || voices[0].Metadata["accent"] != "brazilian" || voices[0].Metadata["category"] != "premade" {
		t.Errorf("voices[0] = %+v", voices[0])
	}
	if voices[1].Provider != "elevenlabs" || len(voices[1].Metadata) != 0 {
		t.Errorf("voices[1] = %+v", voices[1])
	}

	bad, _ := New("wrong", WithBaseURLs("ws://unused", srv.URL))
	if _, err := bad.ListVoices(context.Background()); err == nil {
		t.Error("expected error for unauthorized key")
	}
}
