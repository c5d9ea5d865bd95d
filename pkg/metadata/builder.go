package metadata

import (
	"fmt"
	"path/filepath"

	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/script"
)

// Audio key prefix and mix levels expected by the mobile app.
const (
	programKeyPrefix = "program_panic"
	voiceSoundLevel  = 75
	guideSoundLevel  = 60
)

// SegmentResult describes one exported audio file.
type SegmentResult struct {
	SegmentID     string
	SegmentIndex  int
	FragmentCount int
	DurationMS    int64
	AudioPath     string
	WasShortened  bool
	OriginalText  string
	ShortenedText string
}

// Document is the exported metadata JSON.
type Document struct {
	ExerciseTitle string                   `json:"exercise_title"`
	ExerciseID    string                   `json:"exercise_id"`
	Category      *string                  `json:"category"`
	Tags          []string                 `json:"tags"`
	Description   *string                  `json:"description"`
	Segments      map[string][]SegmentMeta `json:"segments"`
	BreathCycles  []BreathCycle            `json:"breath_cycles"`
}

// SegmentMeta records how one segment's audio was produced. The
// shortening fields appear only when the text was rewritten to fit.
type SegmentMeta struct {
	SegmentIndex  int    `json:"segment_index"`
	FragmentCount int    `json:"fragment_count"`
	DurationMS    int64  `json:"duration_ms"`
	AudioFile     string `json:"audio_file"`
	WasShortened  bool   `json:"was_shortened,omitempty"`
	OriginalText  string `json:"original_text,omitempty"`
	ShortenedText string `json:"shortened_text,omitempty"`
}

// BreathCycle is one breathing step of the exercise in the player
// format: phase durations in milliseconds, the narration audio, and
// optional guide recordings. Natural cycles carry a total duration
// instead of phases.
type BreathCycle struct {
	BreatheIn            int        `json:"breathe_in"`
	BreatheOut           int        `json:"breathe_out"`
	HoldIn               int        `json:"hold_in"`
	HoldOut              int        `json:"hold_out"`
	Repetitions          int        `json:"repetitions"`
	Natural              int        `json:"natural"`
	Voices               []Voice    `json:"voices"`
	AudioBreathingGuides []GuideSet `json:"audio_breathing_guides"`
	AudioBiofeedbacks    []any      `json:"audio_biofeedbacks"`
	CommandsText         []string   `json:"commands_text"`
}

// Voice references a narration audio file by its app-relative key.
type Voice struct {
	Key         string `json:"key"`
	Repetitions int    `json:"repetitions"`
	SoundLevel  int    `json:"sound_level"`
	Timeout     int    `json:"timeout"`
}

// GuideSet pairs the inhale and exhale guide recordings of one cycle.
type GuideSet struct {
	AudioBreathingGuideSet GuidePair `json:"audio_breathing_guide_set"`
}

type GuidePair struct {
	BreatheIn  *Guide `json:"breathe_in,omitempty"`
	BreatheOut *Guide `json:"breathe_out,omitempty"`
}

type Guide struct {
	Key        string `json:"key"`
	SoundLevel int    `json:"sound_level"`
}

// Builder assembles metadata documents using a guide table.
type Builder struct {
	guides GuideTable
	log    logger.Logger
}

func NewBuilder(guides GuideTable, log logger.Logger) *Builder {
	return &Builder{guides: guides, log: log}
}

// Build assembles the full metadata document for a generated exercise.
func (b *Builder) Build(s *script.Script, results []SegmentResult, exerciseDir string) *Document {
	doc := &Document{
		ExerciseTitle: s.Exercise.Title,
		ExerciseID:    s.Exercise.ID,
		Category:      s.Exercise.Category,
		Tags:          s.Exercise.Tags,
		Description:   s.Exercise.Description,
		Segments:      b.buildSegments(results),
		BreathCycles:  b.buildBreathCycles(s, results, exerciseDir),
	}

	b.log.Info("built metadata", "exercise_id", s.Exercise.ID, "segments", len(results))
	return doc
}

func (b *Builder) buildSegments(results []SegmentResult) map[string][]SegmentMeta {
	segments := make(map[string][]SegmentMeta)

	for _, r := range results {
		meta := SegmentMeta{
			SegmentIndex:  r.SegmentIndex,
			FragmentCount: r.FragmentCount,
			DurationMS:    r.DurationMS,
			AudioFile:     filepath.Base(r.AudioPath),
		}
		if r.WasShortened {
			meta.WasShortened = true
			meta.OriginalText = r.OriginalText
			meta.ShortenedText = r.ShortenedText
		}
		segments[r.SegmentID] = append(segments[r.SegmentID], meta)
	}

	return segments
}

// buildBreathCycles emits one cycle per breathing segment, in script
// order. Segments that produced no audio are skipped with a warning.
func (b *Builder) buildBreathCycles(s *script.Script, results []SegmentResult, exerciseDir string) []BreathCycle {
	cycles := []BreathCycle{}

	for i := range s.Segments {
		seg := &s.Segments[i]
		if seg.Breathing == nil {
			continue
		}

		result, found := findResult(results, seg.ID)
		if !found {
			b.log.Warn("no result for segment, skipping breath cycle", "segment_id", seg.ID)
			continue
		}

		cycles = append(cycles, b.buildBreathCycle(seg, result, exerciseDir))
	}

	b.log.Info("created breath cycles", "count", len(cycles))
	return cycles
}

func (b *Builder) buildBreathCycle(seg *script.Segment, result SegmentResult, exerciseDir string) BreathCycle {
	breathing := seg.Breathing

	return BreathCycle{
		BreatheIn:            orZero(breathing.InhaleMS),
		BreatheOut:           orZero(breathing.ExhaleMS),
		HoldIn:               breathing.HoldInMS,
		HoldOut:              breathing.HoldOutMS,
		Repetitions:          breathing.Repetitions,
		Natural:              orZero(breathing.DurationMS),
		Voices:               b.buildVoices(result, exerciseDir),
		AudioBreathingGuides: b.buildGuides(breathing),
		AudioBiofeedbacks:    []any{},
		CommandsText:         []string{},
	}
}

// buildVoices references the narration audio by the key the app
// resolves against its program root.
func (b *Builder) buildVoices(result SegmentResult, exerciseDir string) []Voice {
	key := fmt.Sprintf("%s/%s/%s", programKeyPrefix, filepath.Base(exerciseDir), filepath.Base(result.AudioPath))
	return []Voice{{
		Key:         key,
		Repetitions: 1,
		SoundLevel:  voiceSoundLevel,
		Timeout:     0,
	}}
}

// buildGuides resolves guide recordings for structured cycles. Natural
// breathing carries no guides.
func (b *Builder) buildGuides(breathing *script.BreathingPattern) []GuideSet {
	if breathing.IsNatural() {
		return []GuideSet{}
	}

	inhaleKey := closestGuide(orZero(breathing.InhaleMS), b.guides.Inhale)
	exhaleKey := closestGuide(orZero(breathing.ExhaleMS), b.guides.Exhale)

	if inhaleKey == "" && exhaleKey == "" {
		return []GuideSet{}
	}

	var pair GuidePair
	if inhaleKey != "" {
		pair.BreatheIn = &Guide{Key: inhaleKey, SoundLevel: guideSoundLevel}
	}
	if exhaleKey != "" {
		pair.BreatheOut = &Guide{Key: exhaleKey, SoundLevel: guideSoundLevel}
	}
	return []GuideSet{{AudioBreathingGuideSet: pair}}
}

func findResult(results []SegmentResult, segmentID string) (SegmentResult, bool) {
	for _, r := range results {
		if r.SegmentID == segmentID {
			return r, true
		}
	}
	return SegmentResult{}, false
}

func orZero(v *int) int {
	if v != nil {
		return *v
	}
	return 0
}
