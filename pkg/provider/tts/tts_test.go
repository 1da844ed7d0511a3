package tts_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/chica/pkg/audio"
	"github.com/MrWong99/chica/pkg/provider/tts"
	"github.com/MrWong99/chica/pkg/provider/tts/mock"
)

func TestParseBlend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		wantID    string
		wantBlend []tts.VoiceWeight
		wantErr   bool
	}{
		{in: "pf_dora", wantID: "pf_dora"},
		{in: "  PF_Dora 100% ", wantID: "pf_dora"},
		{
			in:     "pf_dora 80% mais if_sara 20%",
			wantID: "pf_dora(0.8)+if_sara(0.2)",
			wantBlend: []tts.VoiceWeight{
				{Voice: "pf_dora", Weight: 0.8},
				{Voice: "if_sara", Weight: 0.2},
			},
		},
		{
			in:     "af_bella 30% + af_sky 10%",
			wantID: "af_bella(0.75)+af_sky(0.25)",
			wantBlend: []tts.VoiceWeight{
				{Voice: "af_bella", Weight: 0.75},
				{Voice: "af_sky", Weight: 0.25},
			},
		},
		{
			in:     "pf_dora 50% mais if_sara",
			wantID: "pf_dora(0.5)+if_sara(0.5)",
			wantBlend: []tts.VoiceWeight{
				{Voice: "pf_dora", Weight: 0.5},
				{Voice: "if_sara", Weight: 0.5},
			},
		},
		{in: "", wantErr: true},
		{in: "pf_dora 80% mais", wantErr: true},
		{in: "voz? 10%", wantErr: true},
		{in: "a 0% mais b 0%", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			id, blend, err := tts.ParseBlend(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseBlend(%q) = %q, want error", tt.in, id)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBlend(%q): %v", tt.in, err)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
			if len(blend) != len(tt.wantBlend) {
				t.Fatalf("blend = %v, want %v", blend, tt.wantBlend)
			}
			for i := range blend {
				if blend[i].Voice != tt.wantBlend[i].Voice || math.Abs(blend[i].Weight-tt.wantBlend[i].Weight) > 1e-9 {
					t.Errorf("blend[%d] = %+v, want %+v", i, blend[i], tt.wantBlend[i])
				}
			}
		})
	}
}

func TestVoiceProfile_Voices(t *testing.T) {
	t.Parallel()
	single := tts.VoiceProfile{ID: "pf_dora"}
	if got := single.Voices(); len(got) != 1 || got[0].Voice != "pf_dora" || got[0].Weight != 1 {
		t.Errorf("Voices() = %v", got)
	}
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"Olá.", []string{"Olá."}},
		{"Olá! Tudo bem? Sim.", []string{"Olá!", "Tudo bem?", "Sim."}},
		{"Custa 3.14 reais. Ok", []string{"Custa 3.14 reais.", "Ok."}},
		{"Sério?! Nossa...", []string{"Sério?!", "Nossa..."}},
		{"... !", nil},
	}

	for _, tt := range tests {
		if got := tts.SplitSentences(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func clipOf(n int, v int16) audio.Clip {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return audio.Clip{Samples: s, SampleRate: 24000}
}

func TestCache(t *testing.T) {
	t.Parallel()

	t.Run("hit skips backend", func(t *testing.T) {
		t.Parallel()
		backend := &mock.Provider{Clip: clipOf(10, 1)}
		c := tts.NewCache(backend)
		voice := tts.VoiceProfile{ID: "pf_dora", Language: "p"}

		for range 3 {
			if _, err := c.Synthesize(context.Background(), "Olá.", voice); err != nil {
				t.Fatal(err)
			}
		}
		if n := len(backend.Calls()); n != 1 {
			t.Errorf("backend calls = %d, want 1", n)
		}
		if hits, misses := c.Stats(); hits != 2 || misses != 1 {
			t.Errorf("Stats() = %d, %d", hits, misses)
		}
	})

	t.Run("voice and language are part of the key", func(t *testing.T) {
		t.Parallel()
		backend := &mock.Provider{Clip: clipOf(10, 1)}
		c := tts.NewCache(backend)
		ctx := context.Background()
		_, _ = c.Synthesize(ctx, "Olá.", tts.VoiceProfile{ID: "a", Language: "p"})
		_, _ = c.Synthesize(ctx, "Olá.", tts.VoiceProfile{ID: "b", Language: "p"})
		_, _ = c.Synthesize(ctx, "Olá.", tts.VoiceProfile{ID: "a", Language: "e"})
		if n := len(backend.Calls()); n != 3 {
			t.Errorf("backend calls = %d, want 3", n)
		}
	})

	t.Run("long text bypasses", func(t *testing.T) {
		t.Parallel()
		backend := &mock.Provider{Clip: clipOf(10, 1)}
		c := tts.NewCache(backend)
		long := strings.Repeat("á", tts.DefaultCacheMaxText)
		for range 2 {
			_, _ = c.Synthesize(context.Background(), long, tts.VoiceProfile{ID: "a"})
		}
		if n := len(backend.Calls()); n != 2 {
			t.Errorf("backend calls = %d, want 2", n)
		}
		if c.Len() != 0 {
			t.Errorf("Len() = %d, want 0", c.Len())
		}
	})

	t.Run("evicts oldest", func(t *testing.T) {
		t.Parallel()
		backend := &mock.Provider{Clip: clipOf(10, 1)}
		c := tts.NewCache(backend, tts.WithCacheSize(2))
		ctx := context.Background()
		voice := tts.VoiceProfile{ID: "a"}
		for _, s := range []string{"um", "dois", "três"} {
			_, _ = c.Synthesize(ctx, s, voice)
		}
		if c.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", c.Len())
		}
		backend.Reset()
		_, _ = c.Synthesize(ctx, "dois", voice)
		_, _ = c.Synthesize(ctx, "um", voice)
		calls := backend.Calls()
		if len(calls) != 1 || calls[0].Text != "um" {
			t.Errorf("backend calls after eviction = %+v, want only %q", calls, "um")
		}
	})

	t.Run("errors not cached", func(t *testing.T) {
		t.Parallel()
		backend := &mock.Provider{SynthesizeErr: errors.New("boom")}
		c := tts.NewCache(backend)
		for range 2 {
			if _, err := c.Synthesize(context.Background(), "oi", tts.VoiceProfile{}); err == nil {
				t.Fatal("expected error")
			}
		}
		if c.Len() != 0 {
			t.Errorf("Len() = %d, want 0", c.Len())
		}
	})
}

func TestSentenceSynthesizer(t *testing.T) {
	t.Parallel()

	t.Run("joins sentences in order", func(t *testing.T) {
		t.Parallel()
		backend := &mock.Provider{
			SynthesizeFunc: func(_ context.Context, text string, _ tts.VoiceProfile) (audio.Clip, error) {
				return clipOf(1000, int16(len(text))), nil
			},
		}
		s := tts.NewSentenceSynthesizer(backend, tts.WithCrossfade(0))
		clip, err := s.Synthesize(context.Background(), "Oi. Tudo bem? Sim!", tts.VoiceProfile{})
		if err != nil {
			t.Fatal(err)
		}
		if len(clip.Samples) != 3000 {
			t.Fatalf("len = %d, want 3000", len(clip.Samples))
		}
		for i, want := range []int16{3, 9, 4} {
			if got := clip.Samples[i*1000]; got != want {
				t.Errorf("sentence %d starts with %d, want %d", i, got, want)
			}
		}
	})

	t.Run("crossfade overlaps", func(t *testing.T) {
		t.Parallel()
		backend := &mock.Provider{Clip: clipOf(2400, 100)}
		s := tts.NewSentenceSynthesizer(backend)
		clip, err := s.Synthesize(context.Background(), "Um. Dois.", tts.VoiceProfile{})
		if err != nil {
			t.Fatal(err)
		}
		// 20 ms at 24 kHz.
		if want := 2*2400 - 480; len(clip.Samples) != want {
			t.Errorf("len = %d, want %d", len(clip.Samples), want)
		}
	})

	t.Run("bounded parallelism", func(t *testing.T) {
		t.Parallel()
		var cur, peak atomic.Int32
		backend := &mock.Provider{
			SynthesizeFunc: func(context.Context, string, tts.VoiceProfile) (audio.Clip, error) {
				n := cur.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				defer cur.Add(-1)
				return clipOf(10, 1), nil
			},
		}
		s := tts.NewSentenceSynthesizer(backend, tts.WithParallelism(2))
		var text strings.Builder
		for i := range 8 {
			fmt.Fprintf(&text, "Frase %d. ", i)
		}
		if _, err := s.Synthesize(context.Background(), text.String(), tts.VoiceProfile{}); err != nil {
			t.Fatal(err)
		}
		if p := peak.Load(); p > 2 {
			t.Errorf("peak concurrency = %d, want <= 2", p)
		}
	})

	t.Run("first error wins", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		backend := &mock.Provider{SynthesizeErr: boom}
		s := tts.NewSentenceSynthesizer(backend)
		if _, err := s.Synthesize(context.Background(), "Um. Dois.", tts.VoiceProfile{}); !errors.Is(err, boom) {
			t.Errorf("err = %v, want %v", err, boom)
		}
	})

	t.Run("blank text", func(t *testing.T) {
		t.Parallel()
		backend := &mock.Provider{}
		s := tts.NewSentenceSynthesizer(backend)
		clip, err := s.Synthesize(context.Background(), "  ", tts.VoiceProfile{})
		if err != nil || !clip.IsEmpty() {
			t.Errorf("Synthesize(blank) = %v, %v", clip, err)
		}
		if len(backend.Calls()) != 0 {
			t.Error("backend called for blank text")
		}
	})
}
