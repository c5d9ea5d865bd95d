package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MP3 stream into a buffer. The decoder always
// emits 16-bit stereo; the two channels are averaged down to mono.
func DecodeMP3(data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3 data: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to read mp3 samples: %w", err)
	}

	// 4 bytes per frame: left int16 LE, right int16 LE.
	frames := len(pcm) / 4
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		left := int16(uint16(pcm[i*4]) | uint16(pcm[i*4+1])<<8)
		right := int16(uint16(pcm[i*4+2]) | uint16(pcm[i*4+3])<<8)
		samples[i] = int16((int(left) + int(right)) / 2)
	}

	return &Buffer{samples: samples, sampleRate: dec.SampleRate()}, nil
}
