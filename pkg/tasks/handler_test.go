package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/creastat/voicegen-go/pkg/audio"
	"github.com/creastat/voicegen-go/pkg/generate"
	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/storage"
	"github.com/creastat/voicegen-go/pkg/tts"
)

const handlerScriptJSON = `{
  "exercise": {
    "id": "calm-breathing",
    "title": "Calm Breathing"
  },
  "segments": [
    {
      "id": "intro",
      "type": "narration",
      "audio": {
        "fragments": ["Welcome to this exercise."]
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

const shortCycleScriptJSON = `{
  "exercise": {
    "id": "calm-breathing",
    "title": "Calm Breathing"
  },
  "segments": [
    {
      "id": "practice",
      "type": "breathing_cycle",
      "audio": {
        "fragments": ["Breathe."]
      },
      "breathing": {
        "inhale_ms": 100,
        "exhale_ms": 100
      }
    }
  ],
  "voice_config": {
    "provider": "elevenlabs",
    "voice_id": "test-voice"
  }
}`

type fakeTTS struct {
	failWith error
}

func (f *fakeTTS) GenerateAudio(ctx context.Context, text, previousText, nextText string) (*audio.Buffer, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return audio.NewSilence(1000, 22050)
}

func (f *fakeTTS) EstimateCost(text string) float64 { return 0 }

type recordingPublisher struct {
	events []Event
}

func (r *recordingPublisher) Publish(_ context.Context, e Event) {
	r.events = append(r.events, e)
}

func newTestHandler(t *testing.T, client tts.Client, pub ProgressPublisher) (*Handler, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFilesystem(dir, logger.NewNop())
	if err != nil {
		t.Fatalf("storage setup: %v", err)
	}
	h, err := NewHandler(HandlerConfig{
		APIKey:    "test-key",
		Storage:   store,
		Publisher: pub,
		Logger:    logger.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	h.newClient = func(ctx context.Context, provider string, cfg tts.ClientConfig, log logger.Logger) (tts.Client, error) {
		return client, nil
	}
	return h, dir
}

func makeTask(t *testing.T, jobID, scriptJSON string) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(GeneratePayload{JobID: jobID, Script: json.RawMessage(scriptJSON)})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(TypeGenerate, data)
}

func TestNewHandlerRequiresStorageAndKey(t *testing.T) {
	if _, err := NewHandler(HandlerConfig{APIKey: "k"}); err == nil {
		t.Error("expected error without storage")
	}
	store, err := storage.NewFilesystem(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("storage setup: %v", err)
	}
	if _, err := NewHandler(HandlerConfig{Storage: store}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	pub := &recordingPublisher{}
	h, dir := newTestHandler(t, &fakeTTS{}, pub)

	err := h.ProcessTask(context.Background(), makeTask(t, "job-1", handlerScriptJSON))
	if err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	wantStages := []string{
		generate.StageValidating,
		generate.StageSynthesizing,
		generate.StageSynthesizing,
		generate.StageMetadata,
		generate.StageComplete,
	}
	if len(pub.events) != len(wantStages) {
		t.Fatalf("event count = %d, events %+v", len(pub.events), pub.events)
	}
	for i, e := range pub.events {
		if e.Stage != wantStages[i] {
			t.Errorf("event %d stage = %q, want %q", i, e.Stage, wantStages[i])
		}
		if e.JobID != "job-1" {
			t.Errorf("event %d job id = %q", i, e.JobID)
		}
	}

	terminal := pub.events[len(pub.events)-1]
	if !terminal.Terminal() {
		t.Error("last event should be terminal")
	}
	if terminal.Result == nil || terminal.Result.SegmentCount != 2 {
		t.Fatalf("terminal result = %+v", terminal.Result)
	}

	if _, err := os.Stat(filepath.Join(dir, "calm-breathing", "intro_0.wav")); err != nil {
		t.Errorf("audio output missing: %v", err)
	}
}

func TestProcessTaskMalformedPayload(t *testing.T) {
	pub := &recordingPublisher{}
	h, _ := newTestHandler(t, &fakeTTS{}, pub)

	err := h.ProcessTask(context.Background(), asynq.NewTask(TypeGenerate, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Errorf("unexpected events: %+v", pub.events)
	}
}

func TestProcessTaskInvalidScript(t *testing.T) {
	pub := &recordingPublisher{}
	h, _ := newTestHandler(t, &fakeTTS{}, pub)

	err := h.ProcessTask(context.Background(), makeTask(t, "job-2", `{"exercise": {"id": "x", "title": "X"}}`))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for invalid script, got %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("events = %+v", pub.events)
	}
	if pub.events[0].Stage != StageFailed || pub.events[0].Error == "" {
		t.Errorf("terminal event = %+v", pub.events[0])
	}
}

func TestProcessTaskBusinessValidationFailure(t *testing.T) {
	pub := &recordingPublisher{}
	h, _ := newTestHandler(t, &fakeTTS{}, pub)

	err := h.ProcessTask(context.Background(), makeTask(t, "job-3", shortCycleScriptJSON))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for validation failure, got %v", err)
	}

	terminal := pub.events[len(pub.events)-1]
	if terminal.Stage != StageFailed {
		t.Errorf("terminal stage = %q", terminal.Stage)
	}
}

func TestProcessTaskTransientFailureRetries(t *testing.T) {
	pub := &recordingPublisher{}
	client := &fakeTTS{failWith: &tts.Error{Message: "upstream unavailable", StatusCode: 503}}
	h, _ := newTestHandler(t, client, pub)

	err := h.ProcessTask(context.Background(), makeTask(t, "job-4", handlerScriptJSON))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("server errors should stay retryable")
	}

	terminal := pub.events[len(pub.events)-1]
	if terminal.Stage != StageFailed || terminal.Error == "" {
		t.Errorf("terminal event = %+v", terminal)
	}
}

func TestProcessTaskClientErrorNoRetry(t *testing.T) {
	client := &fakeTTS{failWith: &tts.Error{Message: "bad request", StatusCode: 401}}
	h, _ := newTestHandler(t, client, &recordingPublisher{})

	err := h.ProcessTask(context.Background(), makeTask(t, "job-5", handlerScriptJSON))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for 4xx, got %v", err)
	}
}

func TestRunJobAppliesDefaultVoice(t *testing.T) {
	store, err := storage.NewFilesystem(t.TempDir(), logger.NewNop())
	if err != nil {
		t.Fatalf("storage setup: %v", err)
	}
	h, err := NewHandler(HandlerConfig{
		APIKey:         "test-key",
		DefaultVoiceID: "fallback-voice",
		Storage:        store,
		Logger:         logger.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}

	var gotVoiceID string
	h.newClient = func(ctx context.Context, provider string, cfg tts.ClientConfig, log logger.Logger) (tts.Client, error) {
		gotVoiceID = cfg.Voice.VoiceID
		return &fakeTTS{}, nil
	}

	noVoice := `{
  "exercise": {"id": "calm-breathing", "title": "Calm Breathing"},
  "segments": [{"id": "intro", "type": "narration", "audio": {"fragments": ["Hello."]}}],
  "voice_config": {"provider": "elevenlabs"}
}`
	if err := h.ProcessTask(context.Background(), makeTask(t, "job-6", noVoice)); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}
	if gotVoiceID != "fallback-voice" {
		t.Errorf("voice id = %q, want fallback", gotVoiceID)
	}
}

func TestProgressChannelName(t *testing.T) {
	if got := ProgressChannel("abc"); got != "voicegen:progress:abc" {
		t.Errorf("ProgressChannel = %q", got)
	}
}
