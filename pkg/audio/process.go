package audio

import (
	"fmt"
	"math"
)

// RoundDownToSecond rounds milliseconds down to the previous whole
// second. Exact multiples of 1000 are unchanged.
func RoundDownToSecond(ms int) int {
	return (ms / 1000) * 1000
}

// RoundUpToSecond rounds milliseconds up to the next whole second.
// Exact multiples of 1000 are unchanged.
func RoundUpToSecond(ms int) int {
	return int(math.Ceil(float64(ms)/1000)) * 1000
}

// TrimToWholeSeconds adjusts audio to the next whole-second boundary:
// short audio is padded with silence, audio past the boundary is cut.
func TrimToWholeSeconds(b *Buffer) *Buffer {
	targetMS := RoundUpToSecond(b.DurationMS())
	return b.resize(msToSamples(targetMS, b.sampleRate))
}

// PadToWholeSeconds appends silence up to the next whole second. It
// never cuts audio.
func PadToWholeSeconds(b *Buffer) *Buffer {
	targetMS := RoundUpToSecond(b.DurationMS())
	target := msToSamples(targetMS, b.sampleRate)
	if len(b.samples) >= target {
		return b
	}
	return b.resize(target)
}

// Stitch concatenates segments in order. A positive gapMS inserts
// silence between consecutive segments; a positive crossfadeMS overlaps
// them with linear fades instead. Crossfade wins when both are set.
func Stitch(segments []*Buffer, gapMS, crossfadeMS int) (*Buffer, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("cannot stitch empty segment list")
	}
	if len(segments) == 1 {
		return segments[0], nil
	}

	rate := segments[0].sampleRate
	for i, seg := range segments {
		if seg.sampleRate != rate {
			return nil, fmt.Errorf("sample rate mismatch at segment %d: %d != %d", i, seg.sampleRate, rate)
		}
	}

	result := segments[0].Clone()
	for _, seg := range segments[1:] {
		if crossfadeMS > 0 {
			result = appendCrossfade(result, seg, msToSamples(crossfadeMS, rate))
			continue
		}
		if gapMS > 0 {
			result.samples = append(result.samples, make([]int16, msToSamples(gapMS, rate))...)
		}
		result.samples = append(result.samples, seg.samples...)
	}
	return result, nil
}

func appendCrossfade(a, b *Buffer, overlap int) *Buffer {
	if overlap > len(a.samples) {
		overlap = len(a.samples)
	}
	if overlap > len(b.samples) {
		overlap = len(b.samples)
	}

	samples := make([]int16, 0, len(a.samples)+len(b.samples)-overlap)
	samples = append(samples, a.samples[:len(a.samples)-overlap]...)

	tail := a.samples[len(a.samples)-overlap:]
	for i := 0; i < overlap; i++ {
		t := float64(i) / float64(overlap)
		mixed := float64(tail[i])*(1-t) + float64(b.samples[i])*t
		samples = append(samples, clampSample(mixed))
	}

	samples = append(samples, b.samples[overlap:]...)
	return &Buffer{samples: samples, sampleRate: a.sampleRate}
}

// TrimSilence removes silence from both ends, scanning loudness in
// chunkMS windows against thresholdDBFS and keeping keepMS of edge
// padding. Audio with no non-silent window is returned unchanged.
func TrimSilence(b *Buffer, thresholdDBFS float64, chunkMS, keepMS int) *Buffer {
	durMS := b.DurationMS()
	if chunkMS <= 0 || durMS < chunkMS {
		return b
	}

	firstMS := -1
	lastEndMS := -1
	for start := 0; start+chunkMS <= durMS; start++ {
		if windowDBFS(b, start, start+chunkMS) > thresholdDBFS {
			if firstMS < 0 {
				firstMS = start
			}
			lastEndMS = start + chunkMS
		}
	}

	if firstMS < 0 {
		return b
	}

	from := firstMS - keepMS
	if from < 0 {
		from = 0
	}
	to := lastEndMS + keepMS
	if to > durMS {
		to = durMS
	}
	return b.SliceMS(from, to)
}

func windowDBFS(b *Buffer, fromMS, toMS int) float64 {
	from := msToSamples(fromMS, b.sampleRate)
	to := msToSamples(toMS, b.sampleRate)
	if to > len(b.samples) {
		to = len(b.samples)
	}
	if from >= to {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range b.samples[from:to] {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(to-from))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/maxAmplitude)
}

// NormalizeVolume scales audio to the target RMS level in dBFS. Silent
// audio is returned unchanged.
func NormalizeVolume(b *Buffer, targetDBFS float64) *Buffer {
	current := b.DBFS()
	if math.IsInf(current, -1) {
		return b
	}
	return b.ApplyGain(targetDBFS - current)
}

// MixWithBackground overlays background audio under a voice track. The
// background is looped up to the voice duration and truncated, then
// both are mixed after their gain adjustments.
func MixWithBackground(voice, background *Buffer, voiceGainDB, backgroundGainDB float64) (*Buffer, error) {
	if voice.sampleRate != background.sampleRate {
		return nil, fmt.Errorf("sample rate mismatch: voice %d, background %d", voice.sampleRate, background.sampleRate)
	}
	if len(background.samples) == 0 {
		return nil, fmt.Errorf("background audio is empty")
	}

	v := voice.ApplyGain(voiceGainDB)
	bg := background.ApplyGain(backgroundGainDB)

	mixed := make([]int16, len(v.samples))
	for i := range v.samples {
		sum := int(v.samples[i]) + int(bg.samples[i%len(bg.samples)])
		mixed[i] = clampSample(float64(sum))
	}
	return &Buffer{samples: mixed, sampleRate: voice.sampleRate}, nil
}
