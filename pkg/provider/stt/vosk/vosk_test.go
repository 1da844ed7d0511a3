package vosk

import (
	"context"
	"os"
	"testing"

	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/provider/stt"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{`{"text" : "olá chica"}`, "olá chica", false},
		{`{"text" : ""}`, "", false},
		{"{\n  \"text\" : \" silêncio \"\n}", "silêncio", false},
		{`not json`, "", true},
	}
	for _, tt := range tests {
		got, err := parseResult(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseResult(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseResult(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNew_EmptyPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty model path")
	}
}

// TestTranscribe_Model runs against a real model when VOSK_MODEL_PATH is set.
func TestTranscribe_Model(t *testing.T) {
	path := os.Getenv("VOSK_MODEL_PATH")
	if path == "" {
		t.Skip("VOSK_MODEL_PATH not set; skipping vosk model test")
	}
	p, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	got, err := p.Transcribe(context.Background(), stt.Request{
		Audio: audio.Clip{Samples: make([]int16, 16000), SampleRate: 16000},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "" {
		t.Errorf("silence transcribed as %q", got.Text)
	}
}
