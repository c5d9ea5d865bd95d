package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/script"
)

func intPtr(v int) *int { return &v }

func testScript(segments ...script.Segment) *script.Script {
	return &script.Script{
		Exercise: script.Exercise{
			ID:    "calm-breathing",
			Title: "Calm Breathing",
			Tags:  []string{},
		},
		Segments:    segments,
		VoiceConfig: script.DefaultVoiceConfig(),
	}
}

func breathingSegment(id string, breathing *script.BreathingPattern) script.Segment {
	return script.Segment{
		ID:        id,
		Type:      script.TypeBreathingCycle,
		Audio:     script.AudioConfig{Fragments: []string{"Breathe with me."}},
		Breathing: breathing,
	}
}

func testResult(segmentID string, index int) SegmentResult {
	return SegmentResult{
		SegmentID:     segmentID,
		SegmentIndex:  index,
		FragmentCount: 1,
		DurationMS:    4000,
		AudioPath:     "/tmp/out/calm-breathing/" + segmentID + "_0.wav",
	}
}

func newTestBuilder() *Builder {
	return NewBuilder(DefaultGuideTable(), logger.NewNop())
}

func TestClosestGuideExactMatch(t *testing.T) {
	table := DefaultGuideTable()

	got := closestGuide(4000, table.Inhale)
	if got != "audio_guide/breathing/4in_minimal.mp3" {
		t.Fatalf("closestGuide(4000) = %q", got)
	}
}

func TestClosestGuideNearestWithinTolerance(t *testing.T) {
	table := DefaultGuideTable()

	got := closestGuide(9500, table.Exhale)
	if got != "audio_guide/breathing/8out_minimal.mp3" {
		t.Fatalf("closestGuide(9500) = %q, want 8s recording", got)
	}
}

func TestClosestGuideTieBreakPrefersShorter(t *testing.T) {
	table := DefaultGuideTable()

	got := closestGuide(4500, table.Inhale)
	if got != "audio_guide/breathing/4in_minimal.mp3" {
		t.Fatalf("closestGuide(4500) = %q, want 4s recording", got)
	}
}

func TestClosestGuideOutOfTolerance(t *testing.T) {
	table := DefaultGuideTable()

	if got := closestGuide(11000, table.Inhale); got != "" {
		t.Fatalf("closestGuide(11000) = %q, want no guide", got)
	}
}

func TestClosestGuideZeroDuration(t *testing.T) {
	table := DefaultGuideTable()

	if got := closestGuide(0, table.Inhale); got != "" {
		t.Fatalf("closestGuide(0) = %q, want no guide", got)
	}
}

func TestClosestGuideEmptyTable(t *testing.T) {
	if got := closestGuide(4000, nil); got != "" {
		t.Fatalf("closestGuide with empty table = %q, want no guide", got)
	}
}

func TestLoadGuideTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guides.yaml")
	content := `inhale:
  3000: custom/3in.mp3
exhale:
  3000: custom/3out.mp3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write guide table: %v", err)
	}

	table, err := LoadGuideTable(path)
	if err != nil {
		t.Fatalf("LoadGuideTable failed: %v", err)
	}
	if got := closestGuide(3000, table.Inhale); got != "custom/3in.mp3" {
		t.Errorf("inhale lookup = %q", got)
	}
	if got := closestGuide(4000, table.Inhale); got != "custom/3in.mp3" {
		t.Errorf("inhale tolerance lookup = %q", got)
	}
	if got := closestGuide(3000, table.Exhale); got != "custom/3out.mp3" {
		t.Errorf("exhale lookup = %q", got)
	}
}

func TestLoadGuideTableMissingFile(t *testing.T) {
	if _, err := LoadGuideTable(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing guide table")
	}
}

func TestLoadGuideTableEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guides.yaml")
	if err := os.WriteFile(path, []byte("inhale: {}\nexhale: {}\n"), 0o644); err != nil {
		t.Fatalf("write guide table: %v", err)
	}

	_, err := LoadGuideTable(path)
	if err == nil {
		t.Fatal("expected error for empty guide table")
	}
	if !strings.Contains(err.Error(), "no recordings") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildDocumentFields(t *testing.T) {
	s := testScript(breathingSegment("practice", &script.BreathingPattern{
		Pattern:     script.PatternBox,
		InhaleMS:    intPtr(4000),
		ExhaleMS:    intPtr(4000),
		HoldInMS:    4000,
		HoldOutMS:   4000,
		Repetitions: 4,
	}))
	s.Exercise.Tags = []string{"calm", "sleep"}

	doc := newTestBuilder().Build(s, []SegmentResult{testResult("practice", 0)}, "/tmp/out/calm-breathing")

	if doc.ExerciseTitle != "Calm Breathing" {
		t.Errorf("ExerciseTitle = %q", doc.ExerciseTitle)
	}
	if doc.ExerciseID != "calm-breathing" {
		t.Errorf("ExerciseID = %q", doc.ExerciseID)
	}
	if doc.Category != nil {
		t.Errorf("Category = %v, want nil", *doc.Category)
	}
	if len(doc.Tags) != 2 {
		t.Errorf("Tags = %v", doc.Tags)
	}
	if len(doc.BreathCycles) != 1 {
		t.Fatalf("BreathCycles count = %d", len(doc.BreathCycles))
	}
}

func TestBuildDocumentNullFieldsInJSON(t *testing.T) {
	doc := newTestBuilder().Build(testScript(), nil, "/tmp/out/calm-breathing")

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal document: %v", err)
	}
	if !strings.Contains(string(data), `"category":null`) {
		t.Errorf("category should marshal as null: %s", data)
	}
	if !strings.Contains(string(data), `"description":null`) {
		t.Errorf("description should marshal as null: %s", data)
	}
	if !strings.Contains(string(data), `"breath_cycles":[]`) {
		t.Errorf("breath_cycles should marshal as empty array: %s", data)
	}
}

func TestBuildGroupsSegmentResults(t *testing.T) {
	results := []SegmentResult{
		testResult("intro", 0),
		testResult("practice", 1),
		testResult("practice", 2),
	}

	doc := newTestBuilder().Build(testScript(), results, "/tmp/out/calm-breathing")

	if len(doc.Segments["intro"]) != 1 {
		t.Errorf("intro entries = %d", len(doc.Segments["intro"]))
	}
	if len(doc.Segments["practice"]) != 2 {
		t.Fatalf("practice entries = %d", len(doc.Segments["practice"]))
	}
	first := doc.Segments["practice"][0]
	if first.SegmentIndex != 1 {
		t.Errorf("SegmentIndex = %d", first.SegmentIndex)
	}
	if first.AudioFile != "practice_0.wav" {
		t.Errorf("AudioFile = %q, want basename only", first.AudioFile)
	}
}

func TestBuildShortenedFieldsOnlyWhenShortened(t *testing.T) {
	shortened := testResult("intro", 0)
	shortened.WasShortened = true
	shortened.OriginalText = "A very long introduction text."
	shortened.ShortenedText = "A short intro."

	doc := newTestBuilder().Build(testScript(), []SegmentResult{shortened, testResult("practice", 1)}, "/tmp/out")

	data, err := json.Marshal(doc.Segments["intro"][0])
	if err != nil {
		t.Fatalf("marshal segment meta: %v", err)
	}
	if !strings.Contains(string(data), `"was_shortened":true`) {
		t.Errorf("shortened entry missing was_shortened: %s", data)
	}
	if !strings.Contains(string(data), `"original_text"`) {
		t.Errorf("shortened entry missing original_text: %s", data)
	}

	data, err = json.Marshal(doc.Segments["practice"][0])
	if err != nil {
		t.Fatalf("marshal segment meta: %v", err)
	}
	if strings.Contains(string(data), "was_shortened") {
		t.Errorf("unshortened entry should omit was_shortened: %s", data)
	}
	if strings.Contains(string(data), "original_text") {
		t.Errorf("unshortened entry should omit original_text: %s", data)
	}
}

func TestBuildBreathCycleStructured(t *testing.T) {
	s := testScript(breathingSegment("practice", &script.BreathingPattern{
		InhaleMS:    intPtr(4000),
		ExhaleMS:    intPtr(6000),
		HoldInMS:    4000,
		HoldOutMS:   2000,
		Repetitions: 4,
	}))

	doc := newTestBuilder().Build(s, []SegmentResult{testResult("practice", 0)}, "/tmp/out/calm-breathing")

	if len(doc.BreathCycles) != 1 {
		t.Fatalf("BreathCycles count = %d", len(doc.BreathCycles))
	}
	cycle := doc.BreathCycles[0]
	if cycle.BreatheIn != 4000 || cycle.BreatheOut != 6000 {
		t.Errorf("phases = %d/%d", cycle.BreatheIn, cycle.BreatheOut)
	}
	if cycle.HoldIn != 4000 || cycle.HoldOut != 2000 {
		t.Errorf("holds = %d/%d", cycle.HoldIn, cycle.HoldOut)
	}
	if cycle.Repetitions != 4 {
		t.Errorf("Repetitions = %d", cycle.Repetitions)
	}
	if cycle.Natural != 0 {
		t.Errorf("Natural = %d, want 0", cycle.Natural)
	}

	if len(cycle.Voices) != 1 {
		t.Fatalf("Voices count = %d", len(cycle.Voices))
	}
	voice := cycle.Voices[0]
	if voice.Key != "program_panic/calm-breathing/practice_0.wav" {
		t.Errorf("voice key = %q", voice.Key)
	}
	if voice.Repetitions != 1 || voice.SoundLevel != 75 || voice.Timeout != 0 {
		t.Errorf("voice = %+v", voice)
	}

	if len(cycle.AudioBreathingGuides) != 1 {
		t.Fatalf("guides count = %d", len(cycle.AudioBreathingGuides))
	}
	pair := cycle.AudioBreathingGuides[0].AudioBreathingGuideSet
	if pair.BreatheIn == nil || pair.BreatheIn.Key != "audio_guide/breathing/4in_minimal.mp3" {
		t.Errorf("breathe_in guide = %+v", pair.BreatheIn)
	}
	if pair.BreatheOut == nil || pair.BreatheOut.Key != "audio_guide/breathing/6out_minimal.mp3" {
		t.Errorf("breathe_out guide = %+v", pair.BreatheOut)
	}
	if pair.BreatheIn.SoundLevel != 60 {
		t.Errorf("guide sound level = %d", pair.BreatheIn.SoundLevel)
	}
}

func TestBuildBreathCyclePartialGuides(t *testing.T) {
	s := testScript(breathingSegment("practice", &script.BreathingPattern{
		InhaleMS: intPtr(4000),
		ExhaleMS: intPtr(15000),
	}))

	doc := newTestBuilder().Build(s, []SegmentResult{testResult("practice", 0)}, "/tmp/out/calm-breathing")

	cycle := doc.BreathCycles[0]
	if len(cycle.AudioBreathingGuides) != 1 {
		t.Fatalf("guides count = %d", len(cycle.AudioBreathingGuides))
	}
	pair := cycle.AudioBreathingGuides[0].AudioBreathingGuideSet
	if pair.BreatheIn == nil {
		t.Error("breathe_in guide should resolve")
	}
	if pair.BreatheOut != nil {
		t.Errorf("breathe_out guide = %+v, want none for 15s exhale", pair.BreatheOut)
	}
}

func TestBuildBreathCycleNatural(t *testing.T) {
	s := testScript(breathingSegment("rest", &script.BreathingPattern{
		Pattern:    script.PatternNatural,
		DurationMS: intPtr(60000),
	}))

	doc := newTestBuilder().Build(s, []SegmentResult{testResult("rest", 0)}, "/tmp/out/calm-breathing")

	cycle := doc.BreathCycles[0]
	if cycle.Natural != 60000 {
		t.Errorf("Natural = %d", cycle.Natural)
	}
	if cycle.BreatheIn != 0 || cycle.BreatheOut != 0 {
		t.Errorf("natural cycle phases = %d/%d, want zero", cycle.BreatheIn, cycle.BreatheOut)
	}
	if len(cycle.AudioBreathingGuides) != 0 {
		t.Errorf("natural cycle guides = %+v, want none", cycle.AudioBreathingGuides)
	}

	data, err := json.Marshal(cycle)
	if err != nil {
		t.Fatalf("marshal cycle: %v", err)
	}
	for _, field := range []string{`"audio_breathing_guides":[]`, `"audio_biofeedbacks":[]`, `"commands_text":[]`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("cycle JSON missing %s: %s", field, data)
		}
	}
}

func TestBuildSkipsNarrationSegments(t *testing.T) {
	s := testScript(
		script.Segment{
			ID:    "intro",
			Type:  script.TypeNarration,
			Audio: script.AudioConfig{Fragments: []string{"Welcome."}},
		},
		breathingSegment("practice", &script.BreathingPattern{InhaleMS: intPtr(4000), ExhaleMS: intPtr(4000)}),
	)
	results := []SegmentResult{testResult("intro", 0), testResult("practice", 1)}

	doc := newTestBuilder().Build(s, results, "/tmp/out/calm-breathing")

	if len(doc.BreathCycles) != 1 {
		t.Fatalf("BreathCycles count = %d, want 1", len(doc.BreathCycles))
	}
	if len(doc.Segments) != 2 {
		t.Errorf("Segments count = %d, want both segment entries", len(doc.Segments))
	}
}

func TestBuildSkipsBreathCycleWithoutResult(t *testing.T) {
	s := testScript(breathingSegment("practice", &script.BreathingPattern{InhaleMS: intPtr(4000), ExhaleMS: intPtr(4000)}))

	doc := newTestBuilder().Build(s, []SegmentResult{testResult("other", 0)}, "/tmp/out/calm-breathing")

	if len(doc.BreathCycles) != 0 {
		t.Fatalf("BreathCycles count = %d, want 0", len(doc.BreathCycles))
	}
}
