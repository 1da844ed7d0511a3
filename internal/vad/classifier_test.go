package vad_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/chica/internal/vad"
	vadmock "github.com/MrWong99/chica/pkg/provider/vad/mock"
)

// squareFrame returns a frame whose RMS on the normalised scale is rms.
func squareFrame(n int, rms float64) []int16 {
	a := int16(rms * 32768)
	f := make([]int16, n)
	for i := range f {
		if i%2 == 0 {
			f[i] = a
		} else {
			f[i] = -a
		}
	}
	return f
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-4 && d > -1e-4
}

func TestClassifier_SpeechAndSilence(t *testing.T) {
	t.Parallel()

	c := vad.NewClassifier(vad.DefaultClassifierConfig())

	if d := c.Classify(squareFrame(1024, 0.1)); !d.IsSpeech {
		t.Errorf("loud frame: IsSpeech = false, want true (rms=%v threshold=%v)", d.RMS, d.Threshold)
	}
	if d := c.Classify(make([]int16, 1024)); d.IsSpeech {
		t.Error("silent frame: IsSpeech = true, want false")
	}
}

func TestClassifier_NoiseFloorOnlyAdaptsBelowGate(t *testing.T) {
	t.Parallel()

	c := vad.NewClassifier(vad.DefaultClassifierConfig())
	initial := c.NoiseFloor()

	// 0.1 is far above the 0.0075 update gate.
	c.Classify(squareFrame(1024, 0.1))
	if got := c.NoiseFloor(); got != initial {
		t.Errorf("floor changed on speech frame: got %v, want %v", got, initial)
	}

	// A silent frame pulls the floor towards 0: 0.001*0.8 + 0*0.2.
	c.Classify(make([]int16, 1024))
	if got := c.NoiseFloor(); !approx(got, 0.0008) {
		t.Errorf("floor after silent frame = %v, want 0.0008", got)
	}
}

func TestClassifier_DynamicThresholdFollowsFloor(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultClassifierConfig()
	cfg.InitialNoiseFloor = 0.01 // dynamic threshold = max(0.005, 0.02) = 0.02
	c := vad.NewClassifier(cfg)

	d := c.Classify(squareFrame(1024, 0.015))
	if d.IsSpeech {
		t.Errorf("rms 0.015 under dynamic threshold %v classified as speech", d.Threshold)
	}
	if !approx(d.Threshold, 0.02) {
		t.Errorf("Threshold = %v, want 0.02", d.Threshold)
	}
	if d := c.Classify(squareFrame(1024, 0.03)); !d.IsSpeech {
		t.Error("rms 0.03 over dynamic threshold classified as silence")
	}
}

func TestClassifier_FloorPropertyRandomFrames(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultClassifierConfig()
	c := vad.NewClassifier(cfg)
	gate := cfg.FixedThreshold * cfg.NoiseUpdateMultiplier
	rng := rand.New(rand.NewPCG(1, 2))

	for i := range 2000 {
		rms := rng.Float64() * 0.02
		before := c.NoiseFloor()
		d := c.Classify(squareFrame(256, rms))
		after := c.NoiseFloor()

		if after < 0 {
			t.Fatalf("frame %d: floor went negative: %v", i, after)
		}
		if d.RMS >= gate && after != before {
			t.Fatalf("frame %d: floor changed on rms %v >= gate %v", i, d.RMS, gate)
		}
	}
}

func TestClassifier_DetectorVeto(t *testing.T) {
	t.Parallel()

	det := &vadmock.Detector{Result: false}
	c := vad.NewClassifier(vad.DefaultClassifierConfig(), vad.WithDetector(det, 16000))

	if d := c.Classify(squareFrame(1024, 0.1)); d.IsSpeech {
		t.Error("detector veto ignored")
	}
	// Silent frames never reach the detector.
	c.Classify(make([]int16, 1024))
	if got := det.CallCount(); got != 1 {
		t.Errorf("detector calls = %d, want 1", got)
	}
}

func TestClassifier_DetectorErrorFallsBack(t *testing.T) {
	t.Parallel()

	det := &vadmock.Detector{Err: errors.New("bad frame size")}
	c := vad.NewClassifier(vad.DefaultClassifierConfig(), vad.WithDetector(det, 16000))

	if d := c.Classify(squareFrame(1024, 0.1)); !d.IsSpeech {
		t.Error("detector error should fall back to energy decision")
	}
}
