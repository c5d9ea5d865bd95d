// Package script defines the narration script model: exercise metadata,
// ordered segments with audio fragments and breathing patterns, and the
// voice configuration used for synthesis.
package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// Segment types.
const (
	TypeNarration      = "narration"
	TypeBreathingCycle = "breathing_cycle"
)

// Audio timing values relative to the breathing cycle.
const (
	TimingInhalePhase = "inhale_phase"
	TimingExhalePhase = "exhale_phase"
	TimingFullCycle   = "full_cycle"
)

// Breathing pattern presets and their total cycle durations.
const (
	PatternBox     = "box"
	PatternNatural = "natural"
	Pattern478     = "4-7-8"
	PatternCalm    = "calm"

	boxCycleMS     = 4000 + 4000 + 4000 + 4000
	fourSevenEight = 4000 + 7000 + 8000
	calmCycleMS    = 4000 + 6000
	defaultCycleMS = 10000
)

// Exercise carries the exercise-level metadata.
type Exercise struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     *string  `json:"description,omitempty"`
	Category        *string  `json:"category,omitempty"`
	Tags            []string `json:"tags"`
	DurationSeconds *int     `json:"duration_seconds,omitempty"`
}

// UnmarshalJSON applies defaults before decoding.
func (e *Exercise) UnmarshalJSON(data []byte) error {
	type alias Exercise
	tmp := alias{Tags: []string{}}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*e = Exercise(tmp)
	return nil
}

// AudioConfig describes the narration audio of one segment.
type AudioConfig struct {
	Fragments       []string `json:"fragments"`
	MaxDurationMS   *int     `json:"max_duration_ms,omitempty"`
	AllowShortening bool     `json:"allow_shortening"`
	Timing          string   `json:"timing"`
}

// UnmarshalJSON applies defaults before decoding.
func (a *AudioConfig) UnmarshalJSON(data []byte) error {
	type alias AudioConfig
	tmp := alias{AllowShortening: true, Timing: TimingFullCycle}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*a = AudioConfig(tmp)
	return nil
}

// TotalCharacters returns the combined length of all fragments.
func (a *AudioConfig) TotalCharacters() int {
	total := 0
	for _, f := range a.Fragments {
		total += len(f)
	}
	return total
}

// BreathingPattern describes one breath cycle, either as a preset name,
// explicit phase durations, or a natural free-breathing duration.
type BreathingPattern struct {
	Pattern     string `json:"pattern,omitempty"`
	InhaleMS    *int   `json:"inhale_ms,omitempty"`
	ExhaleMS    *int   `json:"exhale_ms,omitempty"`
	HoldInMS    int    `json:"hold_in_ms"`
	HoldOutMS   int    `json:"hold_out_ms"`
	DurationMS  *int   `json:"duration_ms,omitempty"`
	Repetitions int    `json:"repetitions"`
}

// UnmarshalJSON applies defaults before decoding.
func (b *BreathingPattern) UnmarshalJSON(data []byte) error {
	type alias BreathingPattern
	tmp := alias{Repetitions: 1}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*b = BreathingPattern(tmp)
	return nil
}

// TotalCycleDurationMS computes the duration of one breath cycle. An
// explicit duration wins, then explicit phases plus holds, then the
// preset table; anything else falls back to ten seconds.
func (b *BreathingPattern) TotalCycleDurationMS() int {
	if b.DurationMS != nil {
		return *b.DurationMS
	}
	if b.InhaleMS != nil && b.ExhaleMS != nil {
		return *b.InhaleMS + b.HoldInMS + *b.ExhaleMS + b.HoldOutMS
	}
	switch b.Pattern {
	case PatternBox:
		return boxCycleMS
	case Pattern478:
		return fourSevenEight
	case PatternCalm:
		return calmCycleMS
	}
	return defaultCycleMS
}

// IsNatural reports whether the pattern is a free-breathing duration
// rather than structured phases.
func (b *BreathingPattern) IsNatural() bool {
	return b.DurationMS != nil && *b.DurationMS != 0
}

// Segment is one ordered step of the exercise.
type Segment struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Audio     AudioConfig       `json:"audio"`
	Breathing *BreathingPattern `json:"breathing,omitempty"`
}

// VoiceConfig selects the TTS provider and voice parameters.
type VoiceConfig struct {
	Provider        string  `json:"provider"`
	VoiceID         string  `json:"voice_id,omitempty"`
	Model           string  `json:"model"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// UnmarshalJSON applies defaults before decoding.
func (v *VoiceConfig) UnmarshalJSON(data []byte) error {
	type alias VoiceConfig
	tmp := alias(DefaultVoiceConfig())
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	*v = VoiceConfig(tmp)
	return nil
}

// DefaultVoiceConfig returns the voice defaults applied when fields are
// absent from the script.
func DefaultVoiceConfig() VoiceConfig {
	return VoiceConfig{
		Provider:        "elevenlabs",
		Model:           "eleven_multilingual_v2",
		Stability:       0.6,
		SimilarityBoost: 0.7,
		Style:           0.15,
		UseSpeakerBoost: true,
	}
}

// Script is a complete narration script for one breathing exercise.
type Script struct {
	Exercise    Exercise    `json:"exercise"`
	Segments    []Segment   `json:"segments"`
	VoiceConfig VoiceConfig `json:"voice_config"`
}

// EstimateTotalDurationMS estimates the exercise duration: breathing
// segments contribute cycle duration times repetitions, narration
// segments their max duration when set, otherwise a speech-rate
// estimate of one word per ten characters at 500ms per word.
func (s *Script) EstimateTotalDurationMS() int {
	total := 0
	for _, seg := range s.Segments {
		if seg.Breathing != nil {
			total += seg.Breathing.TotalCycleDurationMS() * seg.Breathing.Repetitions
			continue
		}
		if seg.Audio.MaxDurationMS != nil {
			total += *seg.Audio.MaxDurationMS
			continue
		}
		total += seg.Audio.TotalCharacters() * 50
	}
	return total
}

// ValidationError reports every violated constraint of a script, not
// just the first.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "validation failed with %d error(s):", len(e.Errors))
	for _, msg := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(msg)
	}
	return sb.String()
}

var topLevelFields = map[string]bool{
	"exercise":     true,
	"segments":     true,
	"voice_config": true,
}

// Parse decodes and structurally validates a narration script. Unknown
// top-level fields are rejected; defaults are applied to absent fields.
func Parse(data []byte) (*Script, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid script JSON: %w", err)
	}

	var errs []string
	unknown := make([]string, 0)
	for key := range raw {
		if !topLevelFields[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		errs = append(errs, fmt.Sprintf("unknown field '%s'", key))
	}
	for _, key := range []string{"exercise", "segments", "voice_config"} {
		if _, ok := raw[key]; !ok {
			errs = append(errs, fmt.Sprintf("'%s' is required", key))
		}
	}

	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("invalid script JSON: %w", err)
	}

	errs = append(errs, s.structuralErrors()...)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return &s, nil
}

// ParseFile loads and validates a narration script from a JSON file.
func ParseFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}
	return Parse(data)
}

// WriteFile serializes the script back to JSON. A parse, write, parse
// round trip yields an identical script.
func (s *Script) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create script directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal script: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write script file: %w", err)
	}
	return nil
}

// structuralErrors collects every schema-level violation.
func (s *Script) structuralErrors() []string {
	var errs []string

	if s.Exercise.ID == "" {
		errs = append(errs, "exercise: id is required")
	} else if !isURLSafeID(s.Exercise.ID) {
		errs = append(errs, fmt.Sprintf("exercise: id must be alphanumeric with hyphens/underscores only: '%s'", s.Exercise.ID))
	}
	if s.Exercise.Title == "" {
		errs = append(errs, "exercise: title is required")
	}
	if s.Exercise.DurationSeconds != nil && *s.Exercise.DurationSeconds < 0 {
		errs = append(errs, "exercise: duration_seconds must be >= 0")
	}

	errs = append(errs, s.VoiceConfig.structuralErrors()...)

	if len(s.Segments) == 0 {
		errs = append(errs, "at least one segment is required")
	}
	for i := range s.Segments {
		errs = append(errs, s.Segments[i].structuralErrors(i)...)
	}
	return errs
}

func (v *VoiceConfig) structuralErrors() []string {
	var errs []string
	if v.Provider != "elevenlabs" {
		errs = append(errs, fmt.Sprintf("voice_config: unsupported provider '%s'", v.Provider))
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"stability", v.Stability},
		{"similarity_boost", v.SimilarityBoost},
		{"style", v.Style},
	} {
		if f.value < 0 || f.value > 1 {
			errs = append(errs, fmt.Sprintf("voice_config: %s must be between 0 and 1", f.name))
		}
	}
	return errs
}

func (seg *Segment) structuralErrors(idx int) []string {
	var errs []string

	if seg.ID == "" {
		errs = append(errs, fmt.Sprintf("segment %d: id is required", idx))
	}
	if seg.Type != TypeNarration && seg.Type != TypeBreathingCycle {
		errs = append(errs, fmt.Sprintf("segment %d (%s): type must be '%s' or '%s'", idx, seg.ID, TypeNarration, TypeBreathingCycle))
	}
	if seg.Type == TypeBreathingCycle && seg.Breathing == nil {
		errs = append(errs, fmt.Sprintf("segment '%s' of type 'breathing_cycle' requires breathing configuration", seg.ID))
	}

	if len(seg.Audio.Fragments) == 0 {
		errs = append(errs, fmt.Sprintf("segment %d (%s): at least one audio fragment is required", idx, seg.ID))
	}
	for _, frag := range seg.Audio.Fragments {
		if strings.TrimSpace(frag) == "" {
			errs = append(errs, fmt.Sprintf("segment %d (%s): audio fragments cannot be empty strings", idx, seg.ID))
			break
		}
	}
	if seg.Audio.MaxDurationMS != nil && *seg.Audio.MaxDurationMS <= 0 {
		errs = append(errs, fmt.Sprintf("segment %d (%s): max_duration_ms must be positive", idx, seg.ID))
	}
	switch seg.Audio.Timing {
	case TimingInhalePhase, TimingExhalePhase, TimingFullCycle:
	default:
		errs = append(errs, fmt.Sprintf("segment %d (%s): invalid timing '%s'", idx, seg.ID, seg.Audio.Timing))
	}

	if seg.Breathing != nil {
		errs = append(errs, seg.Breathing.structuralErrors(idx, seg.ID)...)
	}
	return errs
}

func (b *BreathingPattern) structuralErrors(idx int, segID string) []string {
	var errs []string

	switch b.Pattern {
	case "", PatternBox, PatternNatural, Pattern478, PatternCalm:
	default:
		errs = append(errs, fmt.Sprintf("segment %d (%s): invalid breathing pattern '%s'", idx, segID, b.Pattern))
	}

	for _, f := range []struct {
		name  string
		value *int
	}{
		{"inhale_ms", b.InhaleMS},
		{"exhale_ms", b.ExhaleMS},
		{"duration_ms", b.DurationMS},
	} {
		if f.value != nil && *f.value < 0 {
			errs = append(errs, fmt.Sprintf("segment %d (%s): %s must be >= 0", idx, segID, f.name))
		}
	}
	if b.HoldInMS < 0 {
		errs = append(errs, fmt.Sprintf("segment %d (%s): hold_in_ms must be >= 0", idx, segID))
	}
	if b.HoldOutMS < 0 {
		errs = append(errs, fmt.Sprintf("segment %d (%s): hold_out_ms must be >= 0", idx, segID))
	}
	if b.Repetitions < 1 {
		errs = append(errs, fmt.Sprintf("segment %d (%s): repetitions must be >= 1", idx, segID))
	}

	hasPattern := b.Pattern != ""
	hasExplicit := b.InhaleMS != nil && b.ExhaleMS != nil
	hasNatural := b.DurationMS != nil
	if !hasPattern && !hasExplicit && !hasNatural {
		errs = append(errs, fmt.Sprintf(
			"segment %d (%s): must specify either 'pattern' (box/natural/4-7-8/calm), explicit 'inhale_ms' + 'exhale_ms', or 'duration_ms' for natural breathing",
			idx, segID))
	}
	if b.Pattern == PatternNatural && !hasNatural {
		errs = append(errs, fmt.Sprintf("segment %d (%s): pattern 'natural' requires 'duration_ms'", idx, segID))
	}

	return errs
}

// isURLSafeID reports whether the id contains only letters, digits,
// hyphens and underscores, with at least one letter or digit.
func isURLSafeID(id string) bool {
	stripped := strings.NewReplacer("-", "", "_", "").Replace(id)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
