package audio

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MP3 stream into a mono clip. The decoder always yields
// 16-bit stereo, which is downmixed.
func DecodeMP3(r io.Reader) (Clip, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: mp3 decoder: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode mp3: %w", err)
	}
	return Clip{Samples: BytesToSamples(StereoToMono(pcm)), SampleRate: d.SampleRate()}, nil
}
