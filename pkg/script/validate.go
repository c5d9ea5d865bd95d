package script

import (
	"fmt"
	"math"
)

// Validation thresholds.
const (
	maxExerciseDurationSeconds       = 3600
	durationMismatchToleranceSeconds = 30
	minBreathingCycleMS              = 1000
	maxBreathingCycleMS              = 60000
	maxRepetitions                   = 100
	maxFragmentsPerSegment           = 20
	maxSegmentChars                  = 1000
	maxFragmentChars                 = 500

	// Aggressive TTS speech rate, used as the lower bound when
	// estimating how long synthesized audio could run.
	charsPerSecondFast = 20
)

// ValidationResult carries the outcome of business-rule validation.
// Warnings never affect Valid.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks business rules beyond the structural schema: duration
// reasonableness, breathing pattern timing, text length, and whether
// audio can fit inside its breathing cycle. It never mutates the script.
func Validate(s *Script) ValidationResult {
	v := &validator{errors: []string{}, warnings: []string{}}
	v.checkExerciseDuration(s)
	v.checkSegments(s)
	v.checkTimingFeasibility(s)
	return ValidationResult{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
}

type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) errorf(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) warnf(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) checkExerciseDuration(s *Script) {
	estimatedS := float64(s.EstimateTotalDurationMS()) / 1000

	if estimatedS > maxExerciseDurationSeconds {
		v.errorf("Exercise duration too long: %.0fs (max: %ds)", estimatedS, maxExerciseDurationSeconds)
	}

	if s.Exercise.DurationSeconds != nil && *s.Exercise.DurationSeconds != 0 {
		specified := *s.Exercise.DurationSeconds
		diff := math.Abs(float64(specified) - estimatedS)
		if diff > durationMismatchToleranceSeconds {
			v.warnf("Exercise duration mismatch: specified %ds, estimated %.0fs (diff: %.0fs)",
				specified, estimatedS, diff)
		}
	}
}

func (v *validator) checkSegments(s *Script) {
	seen := make(map[string]bool)

	for idx := range s.Segments {
		seg := &s.Segments[idx]
		if seen[seg.ID] {
			v.errorf("Duplicate segment ID: '%s'", seg.ID)
		}
		seen[seg.ID] = true

		if seg.Breathing != nil {
			v.checkBreathingPattern(idx, seg)
		}
		v.checkAudioConfig(idx, seg)
	}
}

func (v *validator) checkBreathingPattern(idx int, seg *Segment) {
	b := seg.Breathing

	if b.IsNatural() {
		if *b.DurationMS < minBreathingCycleMS {
			v.errorf("Segment %d (%s): breathing duration too short (%dms, min: %dms)",
				idx, seg.ID, *b.DurationMS, minBreathingCycleMS)
		}
		if *b.DurationMS > maxBreathingCycleMS {
			v.warnf("Segment %d (%s): breathing duration very long (%dms, typical max: %dms)",
				idx, seg.ID, *b.DurationMS, maxBreathingCycleMS)
		}
		return
	}

	cycleMS := b.TotalCycleDurationMS()

	if cycleMS < minBreathingCycleMS {
		v.errorf("Segment %d (%s): total breathing cycle too short (%dms, min: %dms)",
			idx, seg.ID, cycleMS, minBreathingCycleMS)
	}
	if cycleMS > maxBreathingCycleMS {
		v.warnf("Segment %d (%s): total breathing cycle very long (%dms, typical max: %dms)",
			idx, seg.ID, cycleMS, maxBreathingCycleMS)
	}
	if b.Repetitions > maxRepetitions {
		v.warnf("Segment %d (%s): very high repetition count (%d)", idx, seg.ID, b.Repetitions)
	}
}

func (v *validator) checkAudioConfig(idx int, seg *Segment) {
	audio := &seg.Audio

	if len(audio.Fragments) > maxFragmentsPerSegment {
		v.warnf("Segment %d (%s): many audio fragments (%d), consider consolidating",
			idx, seg.ID, len(audio.Fragments))
	}

	if total := audio.TotalCharacters(); total > maxSegmentChars {
		v.warnf("Segment %d (%s): long text (%d chars), may take significant time to generate",
			idx, seg.ID, total)
	}

	for fragIdx, frag := range audio.Fragments {
		if len(frag) > maxFragmentChars {
			v.warnf("Segment %d (%s), fragment %d: long text (%d chars), consider splitting",
				idx, seg.ID, fragIdx, len(frag))
		}
	}
}

// checkTimingFeasibility estimates whether synthesized audio can fit
// inside each breathing cycle. Narration segments have no timing
// constraint and are skipped.
func (v *validator) checkTimingFeasibility(s *Script) {
	for idx := range s.Segments {
		seg := &s.Segments[idx]
		if seg.Type == TypeNarration {
			continue
		}
		if seg.Breathing == nil || seg.Audio.MaxDurationMS == nil {
			continue
		}

		maxDurMS := *seg.Audio.MaxDurationMS
		minDurationMS := float64(seg.Audio.TotalCharacters()) / charsPerSecondFast * 1000

		if minDurationMS > float64(maxDurMS) {
			if seg.Audio.AllowShortening {
				v.warnf("Segment %d (%s): audio likely to exceed max_duration (%.0fms > %dms), will require text shortening",
					idx, seg.ID, minDurationMS, maxDurMS)
			} else {
				v.errorf("Segment %d (%s): audio will exceed max_duration (%.0fms > %dms) and shortening is disabled",
					idx, seg.ID, minDurationMS, maxDurMS)
			}
		}

		if cycleMS := seg.Breathing.TotalCycleDurationMS(); maxDurMS > cycleMS {
			v.warnf("Segment %d (%s): max_duration (%dms) exceeds breathing cycle duration (%dms)",
				idx, seg.ID, maxDurMS, cycleMS)
		}
	}
}
