package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/creastat/voicegen-go/pkg/cache"
	"github.com/creastat/voicegen-go/pkg/generate"
	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/metadata"
	"github.com/creastat/voicegen-go/pkg/script"
	"github.com/creastat/voicegen-go/pkg/storage"
	"github.com/creastat/voicegen-go/pkg/tts"
)

// HandlerConfig assembles the worker-side collaborators. Storage and
// APIKey are required; a nil Cache disables caching and a nil Publisher
// disables progress events.
type HandlerConfig struct {
	APIKey             string
	DefaultVoiceID     string
	MaxRetries         int
	RetryBackoffFactor float64
	Cache              cache.Cache
	Storage            storage.Storage
	Guides             metadata.GuideTable
	Publisher          ProgressPublisher
	Logger             logger.Logger
}

// Handler processes tts:generate tasks: it parses the script payload,
// assembles a generator for the script's voice and publishes progress
// until the terminal event.
type Handler struct {
	apiKey         string
	defaultVoiceID string
	maxRetries     int
	backoffFactor  float64
	cache          cache.Cache
	storage        storage.Storage
	guides         metadata.GuideTable
	publisher      ProgressPublisher
	log            logger.Logger

	// newClient is swapped in tests.
	newClient func(ctx context.Context, provider string, cfg tts.ClientConfig, log logger.Logger) (tts.Client, error)
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("TTS API key is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	guides := cfg.Guides
	if len(guides.Inhale) == 0 && len(guides.Exhale) == 0 {
		guides = metadata.DefaultGuideTable()
	}

	return &Handler{
		apiKey:         cfg.APIKey,
		defaultVoiceID: cfg.DefaultVoiceID,
		maxRetries:     cfg.MaxRetries,
		backoffFactor:  cfg.RetryBackoffFactor,
		cache:          cfg.Cache,
		storage:        cfg.Storage,
		guides:         guides,
		publisher:      cfg.Publisher,
		log:            log,
		newClient:      tts.New,
	}, nil
}

// ProcessTask implements asynq.Handler. Script and validation failures
// are not retried; transient synthesis failures are left to asynq's
// retry policy.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal generate payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.log.With("job_id", payload.JobID)
	log.Info("processing generation job", "type", t.Type())

	result, err := h.runJob(ctx, payload, log)
	if err != nil {
		log.Error("generation job failed", "error", err)
		h.publish(ctx, Event{JobID: payload.JobID, Stage: StageFailed, Error: err.Error()})
		if permanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	h.publish(ctx, Event{
		JobID:        payload.JobID,
		Stage:        generate.StageComplete,
		SegmentIndex: result.SegmentCount,
		SegmentCount: result.SegmentCount,
		Result:       result,
	})
	log.Info("generation job complete", "segments", result.SegmentCount, "total_duration_ms", result.TotalDurationMS)
	return nil
}

func (h *Handler) runJob(ctx context.Context, payload GeneratePayload, log logger.Logger) (*generate.Result, error) {
	s, err := script.Parse(payload.Script)
	if err != nil {
		return nil, err
	}

	voice := s.VoiceConfig
	if voice.VoiceID == "" {
		voice.VoiceID = h.defaultVoiceID
	}

	client, err := h.newClient(ctx, voice.Provider, tts.ClientConfig{
		APIKey:             h.apiKey,
		Voice:              voice,
		Cache:              h.cache,
		MaxRetries:         h.maxRetries,
		RetryBackoffFactor: h.backoffFactor,
	}, log)
	if err != nil {
		return nil, err
	}

	store := h.storage
	if payload.OutputDir != "" {
		store, err = storage.NewFilesystem(payload.OutputDir, log)
		if err != nil {
			return nil, err
		}
	}

	gen, err := generate.New(generate.Config{
		TTS:      client,
		Storage:  store,
		Metadata: metadata.NewBuilder(h.guides, log),
		Logger:   log,
		OnProgress: func(p generate.Progress) {
			// The terminal event is published by ProcessTask with the
			// result attached.
			if p.Stage == generate.StageComplete {
				return
			}
			h.publish(ctx, Event{
				JobID:        payload.JobID,
				Stage:        p.Stage,
				SegmentID:    p.SegmentID,
				SegmentIndex: p.SegmentsDone,
				SegmentCount: p.SegmentsTotal,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	return gen.Generate(ctx, s)
}

func (h *Handler) publish(ctx context.Context, event Event) {
	if h.publisher != nil {
		h.publisher.Publish(ctx, event)
	}
}

// permanent reports errors that retrying cannot fix: malformed or
// invalid scripts and synthesis rejections with 4xx status codes.
func permanent(err error) bool {
	var vErr *script.ValidationError
	if errors.As(err, &vErr) {
		return true
	}
	var tErr *tts.Error
	if errors.As(err, &tErr) {
		return tErr.IsClientError()
	}
	return false
}
