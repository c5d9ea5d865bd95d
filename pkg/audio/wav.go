package audio

import (
	"bytes"
	"fmt"
	"io"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// EncodeWAV writes the buffer as a 16-bit mono PCM WAV stream.
func EncodeWAV(w io.WriteSeeker, b *Buffer) error {
	enc := wav.NewEncoder(w, b.sampleRate, wavBitDepth, 1, 1)

	data := make([]int, len(b.samples))
	for i, s := range b.samples {
		data[i] = int(s)
	}

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: b.sampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav stream: %w", err)
	}
	return nil
}

// DecodeWAV reads a 16-bit PCM WAV stream into a buffer. Multi-channel
// audio is downmixed to mono by averaging.
func DecodeWAV(r io.ReadSeeker) (*Buffer, error) {
	dec := wav.NewDecoder(r)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav data: %w", err)
	}
	if dec.BitDepth != wavBitDepth {
		return nil, fmt.Errorf("unsupported wav bit depth: %d", dec.BitDepth)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		return nil, fmt.Errorf("invalid wav channel count: %d", channels)
	}

	frames := len(buf.Data) / channels
	samples := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += buf.Data[i*channels+c]
		}
		samples[i] = clampSample(float64(sum / channels))
	}

	return &Buffer{samples: samples, sampleRate: int(dec.SampleRate)}, nil
}

// EncodeWAVBytes renders the buffer as an in-memory WAV file.
func EncodeWAVBytes(b *Buffer) ([]byte, error) {
	var ws writeSeekBuffer
	if err := EncodeWAV(&ws, b); err != nil {
		return nil, err
	}
	return ws.data, nil
}

// DecodeWAVBytes parses an in-memory WAV file.
func DecodeWAVBytes(data []byte) (*Buffer, error) {
	return DecodeWAV(bytes.NewReader(data))
}

// writeSeekBuffer is an in-memory io.WriteSeeker. The wav encoder seeks
// back to patch RIFF sizes after writing samples.
type writeSeekBuffer struct {
	data []byte
	pos  int
}

func (w *writeSeekBuffer) Write(p []byte) (int, error) {
	if needed := w.pos + len(p); needed > len(w.data) {
		grown := make([]byte, needed)
		copy(grown, w.data)
		w.data = grown
	}
	copy(w.data[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

func (w *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(w.pos) + offset
	case io.SeekEnd:
		pos = int64(len(w.data)) + offset
	default:
		return 0, fmt.Errorf("invalid seek whence: %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position: %d", pos)
	}
	w.pos = int(pos)
	return pos, nil
}
