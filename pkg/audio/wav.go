package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
)

const bitsPerSample = 16

// ErrNotWAV is returned by [DecodeWAV] when the input is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// EncodeWAV wraps c in a canonical 44-byte-header mono 16-bit PCM WAV file.
func EncodeWAV(c Clip) []byte {
	const channels = 1
	byteRate := c.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(c.Samples) * 2

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(c.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range c.Samples {
		binary.LittleEndian.PutUint16(buf[44+i*2:], uint16(s))
	}
	return buf
}

// DecodeWAV parses a 16-bit PCM WAV file. Stereo input is downmixed to mono.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(wav []byte) (Clip, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return Clip{}, ErrNotWAV
	}

	var (
		channels   int
		sampleRate int
		bits       int
		foundFmt   bool
	)

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(wav) {
				return Clip{}, errors.New("audio: truncated fmt chunk")
			}
			channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(wav[body+14 : body+16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return Clip{}, errors.New("audio: data chunk before fmt chunk")
			}
			if bits != bitsPerSample {
				return Clip{}, fmt.Errorf("audio: unsupported bit depth %d", bits)
			}
			end := min(body+chunkSize, len(wav))
			pcm := wav[body:end]
			switch channels {
			case 1:
			case 2:
				pcm = StereoToMono(pcm)
			default:
				return Clip{}, fmt.Errorf("audio: unsupported channel count %d", channels)
			}
			return Clip{Samples: BytesToSamples(pcm), SampleRate: sampleRate}, nil
		}

		// Chunks are word-aligned.
		offset = body + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return Clip{}, errors.New("audio: missing data chunk")
}

// WriteTempWAV writes c to a new temporary WAV file in dir (the system temp
// directory when empty) and returns its path. The caller owns the file and
// must remove it.
func WriteTempWAV(dir, pattern string, c Clip) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", fmt.Errorf("audio: create temp wav: %w", err)
	}
	if _, err := f.Write(EncodeWAV(c)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("audio: write temp wav: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("audio: close temp wav: %w", err)
	}
	return f.Name(), nil
}

// ReadWAVFile loads and decodes the WAV file at path.
func ReadWAVFile(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: read wav: %w", err)
	}
	c, err := DecodeWAV(data)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode %s: %w", path, err)
	}
	return c, nil
}
