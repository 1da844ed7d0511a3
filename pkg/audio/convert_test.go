package audio_test

import (
	"testing"

	"github.com/MrWong99/chica/pkg/audio"
)

func TestStereoToMono(t *testing.T) {
	t.Parallel()

	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := audio.SamplesToBytes([]int16{100, 200, -100, -200})
	got := audio.BytesToSamples(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	t.Parallel()

	stereo := audio.SamplesToBytes([]int16{32767, 32767})
	got := audio.BytesToSamples(audio.StereoToMono(stereo))
	if len(got) != 1 || got[0] != 32767 {
		t.Errorf("got %v, want [32767]", got)
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	t.Parallel()

	pcm := audio.SamplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 48000, 48000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	t.Parallel()

	// 2 samples at 16kHz → 6 samples at 48kHz (3x)
	pcm := audio.SamplesToBytes([]int16{1000, 2000})
	got := audio.BytesToSamples(audio.ResampleMono16(pcm, 16000, 48000))
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	t.Parallel()

	pcm := audio.SamplesToBytes([]int16{1, 2, 3})
	if out := audio.ResampleMono16(pcm, 0, 16000); len(out) != len(pcm) {
		t.Errorf("zero source rate should return input unchanged, got %d bytes", len(out))
	}
}

func TestResample_Clip(t *testing.T) {
	t.Parallel()

	c := audio.Clip{Samples: make([]int16, 24000), SampleRate: 24000}
	got := audio.Resample(c, 16000)
	if got.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", got.SampleRate)
	}
	if len(got.Samples) != 16000 {
		t.Errorf("len(Samples) = %d, want 16000", len(got.Samples))
	}
	if got.Duration() != c.Duration() {
		t.Errorf("Duration changed: got %v, want %v", got.Duration(), c.Duration())
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []int16
		want    float64
	}{
		{name: "empty", samples: nil, want: 0},
		{name: "silence", samples: []int16{0, 0, 0, 0}, want: 0},
		{name: "constant half scale", samples: []int16{16384, -16384, 16384, -16384}, want: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := audio.RMS(tt.samples)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("RMS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFloat32Roundtrip_Clamps(t *testing.T) {
	t.Parallel()

	got := audio.Float32ToSamples([]float32{2, -2, 0})
	want := []int16{32767, -32767, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}
