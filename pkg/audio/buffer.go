package audio

import (
	"fmt"
	"math"
)

// maxAmplitude is the largest magnitude a 16-bit sample can carry.
const maxAmplitude = 32768.0

// Buffer holds mono 16-bit PCM audio at a fixed sample rate. All
// duration arithmetic is millisecond-addressable and floors partial
// milliseconds, so a buffer one sample short of a second reports 999ms.
type Buffer struct {
	samples    []int16
	sampleRate int
}

// NewBuffer creates a buffer from raw samples. The sample slice is not
// copied; callers hand over ownership.
func NewBuffer(samples []int16, sampleRate int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	return &Buffer{samples: samples, sampleRate: sampleRate}, nil
}

// NewSilence creates a silent buffer of the given duration.
func NewSilence(durationMS, sampleRate int) (*Buffer, error) {
	if durationMS < 0 {
		return nil, fmt.Errorf("duration must be non-negative, got %dms", durationMS)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	return &Buffer{
		samples:    make([]int16, msToSamples(durationMS, sampleRate)),
		sampleRate: sampleRate,
	}, nil
}

// SampleRate returns the buffer's sample rate in Hz.
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// Samples returns the underlying sample slice. Mutating it mutates the
// buffer.
func (b *Buffer) Samples() []int16 {
	return b.samples
}

// SampleCount returns the number of samples.
func (b *Buffer) SampleCount() int {
	return len(b.samples)
}

// DurationMS returns the duration in whole milliseconds.
func (b *Buffer) DurationMS() int {
	return int(int64(len(b.samples)) * 1000 / int64(b.sampleRate))
}

// DurationSeconds returns the duration in seconds.
func (b *Buffer) DurationSeconds() float64 {
	return float64(len(b.samples)) / float64(b.sampleRate)
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	samples := make([]int16, len(b.samples))
	copy(samples, b.samples)
	return &Buffer{samples: samples, sampleRate: b.sampleRate}
}

// DBFS returns the RMS loudness relative to full scale. A silent buffer
// reports negative infinity.
func (b *Buffer) DBFS() float64 {
	if len(b.samples) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range b.samples {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(b.samples)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/maxAmplitude)
}

// ApplyGain returns a copy with the given gain in dB applied, clamping
// at the 16-bit range.
func (b *Buffer) ApplyGain(gainDB float64) *Buffer {
	factor := math.Pow(10, gainDB/20)
	samples := make([]int16, len(b.samples))
	for i, s := range b.samples {
		samples[i] = clampSample(float64(s) * factor)
	}
	return &Buffer{samples: samples, sampleRate: b.sampleRate}
}

// SliceMS returns the audio between two millisecond offsets, clamped to
// the buffer bounds.
func (b *Buffer) SliceMS(fromMS, toMS int) *Buffer {
	from := msToSamples(fromMS, b.sampleRate)
	to := msToSamples(toMS, b.sampleRate)
	if from < 0 {
		from = 0
	}
	if to > len(b.samples) {
		to = len(b.samples)
	}
	if from > to {
		from = to
	}
	samples := make([]int16, to-from)
	copy(samples, b.samples[from:to])
	return &Buffer{samples: samples, sampleRate: b.sampleRate}
}

func (b *Buffer) resize(sampleCount int) *Buffer {
	samples := make([]int16, sampleCount)
	copy(samples, b.samples)
	return &Buffer{samples: samples, sampleRate: b.sampleRate}
}

func msToSamples(ms, sampleRate int) int {
	return int(int64(ms) * int64(sampleRate) / 1000)
}

func clampSample(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
