package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/creastat/voicegen-go/pkg/audio"
	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/metadata"
	"github.com/creastat/voicegen-go/pkg/script"
	"github.com/creastat/voicegen-go/pkg/storage"
	"github.com/creastat/voicegen-go/pkg/tts"
)

const generatorScriptJSON = `{
  "exercise": {
    "id": "calm-breathing",
    "title": "Calm Breathing"
  },
  "segments": [
    {
      "id": "intro",
      "type": "narration",
      "audio": {
        "fragments": ["Welcome to this exercise.", "Find a comfortable position."]
      }
    },
    {
      "id": "practice",
      "type": "breathing_cycle",
      "audio": {
        "fragments": ["Breathe in slowly."]
      },
      "breathing": {
        "pattern": "box",
        "inhale_ms": 4000,
        "exhale_ms": 4000,
        "hold_in_ms": 4000,
        "hold_out_ms": 4000,
        "repetitions": 4
      }
    }
  ],
  "voice_config": {
    "provider": "elevenlabs",
    "voice_id": "test-voice"
  }
}`

type fakeCall struct {
	text         string
	previousText string
	nextText     string
}

// fakeTTS returns silence of a fixed duration and records every call.
type fakeTTS struct {
	calls      []fakeCall
	durationMS int
	failOn     string
	stats      tts.Stats
}

func (f *fakeTTS) GenerateAudio(ctx context.Context, text, previousText, nextText string) (*audio.Buffer, error) {
	f.calls = append(f.calls, fakeCall{text: text, previousText: previousText, nextText: nextText})
	if f.failOn != "" && text == f.failOn {
		return nil, fmt.Errorf("synthesis rejected")
	}
	duration := f.durationMS
	if duration == 0 {
		duration = 1500
	}
	return audio.NewSilence(duration, 22050)
}

func (f *fakeTTS) EstimateCost(text string) float64 {
	return float64(len(text)) / 1000 * 0.30
}

func (f *fakeTTS) Stats() tts.Stats { return f.stats }

func parseTestScript(t *testing.T) *script.Script {
	t.Helper()
	s, err := script.Parse([]byte(generatorScriptJSON))
	if err != nil {
		t.Fatalf("parse test script: %v", err)
	}
	return s
}

func newTestGenerator(t *testing.T, client tts.Client) (*Generator, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFilesystem(dir, logger.NewNop())
	if err != nil {
		t.Fatalf("storage setup: %v", err)
	}
	g, err := New(Config{TTS: client, Storage: store, Logger: logger.NewNop()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g, dir
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without tts client")
	}
	if _, err := New(Config{TTS: &fakeTTS{}}); err == nil {
		t.Error("expected error without storage")
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	client := &fakeTTS{}
	g, dir := newTestGenerator(t, client)

	result, err := g.Generate(context.Background(), parseTestScript(t))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if result.ExerciseID != "calm-breathing" {
		t.Errorf("ExerciseID = %q", result.ExerciseID)
	}
	if result.SegmentCount != 2 {
		t.Errorf("SegmentCount = %d", result.SegmentCount)
	}
	if result.OutputDir != filepath.Join(dir, "calm-breathing") {
		t.Errorf("OutputDir = %q", result.OutputDir)
	}

	// Each 1500ms fragment quantizes up to 2000ms before stitching.
	if result.TotalDurationMS != 6000 {
		t.Errorf("TotalDurationMS = %d, want 6000", result.TotalDurationMS)
	}
	if result.TotalDurationSeconds() != 6.0 {
		t.Errorf("TotalDurationSeconds = %v", result.TotalDurationSeconds())
	}

	wantFiles := []string{
		filepath.Join(dir, "calm-breathing", "intro_0.wav"),
		filepath.Join(dir, "calm-breathing", "practice_1.wav"),
	}
	if len(result.AudioFiles) != 2 {
		t.Fatalf("AudioFiles = %v", result.AudioFiles)
	}
	for i, want := range wantFiles {
		if result.AudioFiles[i] != want {
			t.Errorf("AudioFiles[%d] = %q, want %q", i, result.AudioFiles[i], want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Errorf("audio file missing: %v", err)
		}
	}

	if result.MetadataPath != filepath.Join(dir, "calm-breathing", "calm-breathing_metadata.json") {
		t.Errorf("MetadataPath = %q", result.MetadataPath)
	}
	if _, err := os.Stat(result.MetadataPath); err != nil {
		t.Fatalf("metadata file missing: %v", err)
	}
}

func TestGeneratePassesProsodyContext(t *testing.T) {
	client := &fakeTTS{}
	g, _ := newTestGenerator(t, client)

	if _, err := g.Generate(context.Background(), parseTestScript(t)); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	want := []fakeCall{
		{text: "Welcome to this exercise.", nextText: "Find a comfortable position."},
		{text: "Find a comfortable position.", previousText: "Welcome to this exercise."},
		{text: "Breathe in slowly."},
	}
	if len(client.calls) != len(want) {
		t.Fatalf("call count = %d, want %d", len(client.calls), len(want))
	}
	for i, call := range client.calls {
		if call != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, call, want[i])
		}
	}
}

func TestGenerateWritesMetadataDocument(t *testing.T) {
	g, dir := newTestGenerator(t, &fakeTTS{})

	result, err := g.Generate(context.Background(), parseTestScript(t))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	store, err := storage.NewFilesystem(dir, logger.NewNop())
	if err != nil {
		t.Fatalf("storage setup: %v", err)
	}
	var doc metadata.Document
	if err := store.ReadJSON(result.MetadataPath, &doc); err != nil {
		t.Fatalf("read metadata: %v", err)
	}

	if doc.ExerciseID != "calm-breathing" {
		t.Errorf("ExerciseID = %q", doc.ExerciseID)
	}
	if len(doc.Segments) != 2 {
		t.Errorf("Segments = %d entries", len(doc.Segments))
	}
	intro := doc.Segments["intro"]
	if len(intro) != 1 || intro[0].FragmentCount != 2 || intro[0].DurationMS != 4000 {
		t.Errorf("intro meta = %+v", intro)
	}

	if len(doc.BreathCycles) != 1 {
		t.Fatalf("BreathCycles = %d", len(doc.BreathCycles))
	}
	cycle := doc.BreathCycles[0]
	if cycle.BreatheIn != 4000 || cycle.Repetitions != 4 {
		t.Errorf("cycle = %+v", cycle)
	}
	if len(cycle.Voices) != 1 || cycle.Voices[0].Key != "program_panic/calm-breathing/practice_1.wav" {
		t.Errorf("voices = %+v", cycle.Voices)
	}
}

func TestGenerateValidationFailure(t *testing.T) {
	g, _ := newTestGenerator(t, &fakeTTS{})

	s := parseTestScript(t)
	s.Segments[1].Breathing.InhaleMS = intPtr(100)
	s.Segments[1].Breathing.ExhaleMS = intPtr(100)
	s.Segments[1].Breathing.HoldInMS = 0
	s.Segments[1].Breathing.HoldOutMS = 0

	_, err := g.Generate(context.Background(), s)
	var vErr *script.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(vErr.Errors) == 0 {
		t.Error("ValidationError carries no errors")
	}
	if !strings.Contains(vErr.Error(), "breathing cycle too short") {
		t.Errorf("unexpected message: %v", vErr)
	}
}

func TestGenerateSegmentErrorAborts(t *testing.T) {
	client := &fakeTTS{failOn: "Breathe in slowly."}
	g, dir := newTestGenerator(t, client)

	_, err := g.Generate(context.Background(), parseTestScript(t))
	var segErr *SegmentError
	if !errors.As(err, &segErr) {
		t.Fatalf("expected SegmentError, got %v", err)
	}
	if segErr.SegmentID != "practice" || segErr.Index != 1 {
		t.Errorf("SegmentError = %+v", segErr)
	}
	if !strings.Contains(segErr.Error(), "failed to process segment 'practice'") {
		t.Errorf("unexpected message: %v", segErr)
	}

	if _, err := os.Stat(filepath.Join(dir, "calm-breathing", "practice_1.wav")); err == nil {
		t.Error("failed segment should not leave audio behind")
	}
	if _, err := os.Stat(filepath.Join(dir, "calm-breathing", "calm-breathing_metadata.json")); err == nil {
		t.Error("aborted run should not write metadata")
	}
}

func TestGenerateReportsProgress(t *testing.T) {
	var stages []string
	client := &fakeTTS{}
	dir := t.TempDir()
	store, err := storage.NewFilesystem(dir, logger.NewNop())
	if err != nil {
		t.Fatalf("storage setup: %v", err)
	}
	g, err := New(Config{
		TTS:     client,
		Storage: store,
		Logger:  logger.NewNop(),
		OnProgress: func(p Progress) {
			stages = append(stages, p.Stage)
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := g.Generate(context.Background(), parseTestScript(t)); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	want := []string{StageValidating, StageSynthesizing, StageSynthesizing, StageMetadata, StageComplete}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v", stages)
	}
	for i, stage := range stages {
		if stage != want[i] {
			t.Errorf("stage %d = %q, want %q", i, stage, want[i])
		}
	}
}

func TestGenerateCarriesCacheCounters(t *testing.T) {
	client := &fakeTTS{stats: tts.Stats{CacheHits: 2, CacheMisses: 1}}
	g, _ := newTestGenerator(t, client)

	result, err := g.Generate(context.Background(), parseTestScript(t))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if result.CacheHitCount != 2 || result.CacheMissCount != 1 {
		t.Errorf("cache counters = %d/%d", result.CacheHitCount, result.CacheMissCount)
	}
	rate := result.CacheHitRate()
	if rate < 66.6 || rate > 66.7 {
		t.Errorf("CacheHitRate = %v", rate)
	}
}

func TestCacheHitRateZeroWhenUnused(t *testing.T) {
	result := &Result{}
	if rate := result.CacheHitRate(); rate != 0 {
		t.Errorf("CacheHitRate = %v, want 0", rate)
	}
}

func TestEstimateCost(t *testing.T) {
	g, _ := newTestGenerator(t, &fakeTTS{})

	s := parseTestScript(t)
	estimate := g.EstimateCost(s)

	wantChars := 0
	for _, seg := range s.Segments {
		for _, frag := range seg.Audio.Fragments {
			wantChars += len(frag)
		}
	}
	if estimate.TotalCharacters != wantChars {
		t.Errorf("TotalCharacters = %d, want %d", estimate.TotalCharacters, wantChars)
	}
	wantUSD := float64(wantChars) / 1000 * 0.30
	if diff := estimate.EstimatedUSD - wantUSD; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("EstimatedUSD = %v, want %v", estimate.EstimatedUSD, wantUSD)
	}
	if estimate.Currency != "USD" {
		t.Errorf("Currency = %q", estimate.Currency)
	}
}

func intPtr(v int) *int { return &v }
