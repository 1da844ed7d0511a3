package audio

import "time"

// Concat joins clips into one waveform at the sample rate of the first clip,
// overlapping consecutive clips by a linear crossfade of length fade. Clips
// with a different rate are resampled first. A fade longer than either
// neighbour is shortened to fit.
func Concat(clips []Clip, fade time.Duration) Clip {
	var out Clip
	for _, c := range clips {
		if c.IsEmpty() {
			continue
		}
		if out.SampleRate == 0 {
			out.SampleRate = c.SampleRate
			out.Samples = append([]int16(nil), c.Samples...)
			continue
		}
		c = Resample(c, out.SampleRate)

		n := int(int64(fade) * int64(out.SampleRate) / int64(time.Second))
		n = min(n, len(out.Samples), len(c.Samples))

		start := len(out.Samples) - n
		for i := range n {
			w := float64(i+1) / float64(n+1)
			mixed := float64(out.Samples[start+i])*(1-w) + float64(c.Samples[i])*w
			out.Samples[start+i] = int16(clamp16(int32(mixed)))
		}
		out.Samples = append(out.Samples, c.Samples[n:]...)
	}
	return out
}
