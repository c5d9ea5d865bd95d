// Package generate orchestrates narration generation: it validates the
// script, synthesizes each fragment with prosody context, quantizes and
// stitches the audio, and writes the exercise files with metadata.
package generate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/creastat/voicegen-go/pkg/audio"
	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/metadata"
	"github.com/creastat/voicegen-go/pkg/script"
	"github.com/creastat/voicegen-go/pkg/storage"
	"github.com/creastat/voicegen-go/pkg/tts"
)

// Progress stages reported to the OnProgress observer.
const (
	StageValidating   = "validating"
	StageSynthesizing = "synthesizing"
	StageMetadata     = "metadata"
	StageComplete     = "complete"
)

// Progress reports generation advancement.
type Progress struct {
	Stage         string `json:"stage"`
	SegmentID     string `json:"segment_id,omitempty"`
	SegmentsDone  int    `json:"segments_done"`
	SegmentsTotal int    `json:"segments_total"`
}

// Config assembles the generator's collaborators. TTS and Storage are
// required; Metadata and Logger fall back to defaults.
type Config struct {
	TTS      tts.Client
	Storage  storage.Storage
	Metadata *metadata.Builder
	Logger   logger.Logger

	// OnProgress, when set, receives stage updates during Generate.
	OnProgress func(Progress)
}

// Generator coordinates synthesis, audio processing and metadata
// creation for one script at a time. It is not safe for concurrent use.
type Generator struct {
	tts        tts.Client
	storage    storage.Storage
	metadata   *metadata.Builder
	log        logger.Logger
	onProgress func(Progress)
}

func New(cfg Config) (*Generator, error) {
	if cfg.TTS == nil {
		return nil, fmt.Errorf("tts client is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	builder := cfg.Metadata
	if builder == nil {
		builder = metadata.NewBuilder(metadata.DefaultGuideTable(), log)
	}

	return &Generator{
		tts:        cfg.TTS,
		storage:    cfg.Storage,
		metadata:   builder,
		log:        log,
		onProgress: cfg.OnProgress,
	}, nil
}

// Validate checks the script's business rules without making API calls.
func (g *Generator) Validate(s *script.Script) script.ValidationResult {
	g.log.Info("validating narration script", "exercise_id", s.Exercise.ID)
	return script.Validate(s)
}

// EstimateCost projects the synthesis cost for every fragment in the
// script, without making API calls.
func (g *Generator) EstimateCost(s *script.Script) CostEstimate {
	totalChars := 0
	for _, seg := range s.Segments {
		totalChars += seg.Audio.TotalCharacters()
	}

	estimated := g.tts.EstimateCost(strings.Repeat(" ", totalChars))
	g.log.Info("estimated generation cost", "characters", totalChars, "usd", estimated)

	return CostEstimate{TotalCharacters: totalChars, EstimatedUSD: estimated, Currency: "USD"}
}

// Generate synthesizes all segments and writes audio plus metadata to
// storage. Validation errors surface as *script.ValidationError, and a
// failed segment aborts the run with a *SegmentError.
func (g *Generator) Generate(ctx context.Context, s *script.Script) (*Result, error) {
	g.log.Info("starting generation", "exercise_id", s.Exercise.ID)
	g.progress(Progress{Stage: StageValidating, SegmentsTotal: len(s.Segments)})

	validation := g.Validate(s)
	if !validation.Valid {
		return nil, &script.ValidationError{Errors: validation.Errors}
	}
	for _, warning := range validation.Warnings {
		g.log.Warn(warning)
	}

	exerciseDir, err := g.storage.CreateExerciseDir(s.Exercise.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	g.log.Info("output directory ready", "dir", exerciseDir)

	results := make([]metadata.SegmentResult, 0, len(s.Segments))
	for i := range s.Segments {
		seg := &s.Segments[i]
		g.log.Info("processing segment", "segment_id", seg.ID, "index", i+1, "total", len(s.Segments))
		g.progress(Progress{Stage: StageSynthesizing, SegmentID: seg.ID, SegmentsDone: i, SegmentsTotal: len(s.Segments)})

		result, err := g.processSegment(ctx, seg, i, exerciseDir)
		if err != nil {
			return nil, &SegmentError{SegmentID: seg.ID, Index: i, Err: err}
		}
		results = append(results, result)
		g.log.Info("segment complete", "segment_id", seg.ID, "duration_ms", result.DurationMS, "fragments", result.FragmentCount)
	}

	g.progress(Progress{Stage: StageMetadata, SegmentsDone: len(s.Segments), SegmentsTotal: len(s.Segments)})
	doc := g.metadata.Build(s, results, exerciseDir)

	metadataPath := filepath.Join(exerciseDir, fmt.Sprintf("%s_metadata.json", s.Exercise.ID))
	if err := g.storage.WriteJSON(metadataPath, doc); err != nil {
		return nil, fmt.Errorf("failed to write metadata: %w", err)
	}
	g.log.Info("wrote metadata", "path", metadataPath)

	var totalDuration int64
	audioFiles := make([]string, 0, len(results))
	for _, r := range results {
		totalDuration += r.DurationMS
		audioFiles = append(audioFiles, r.AudioPath)
	}

	result := &Result{
		ExerciseID:      s.Exercise.ID,
		OutputDir:       exerciseDir,
		SegmentCount:    len(results),
		TotalDurationMS: totalDuration,
		MetadataPath:    metadataPath,
		AudioFiles:      audioFiles,
	}
	if reporter, ok := g.tts.(tts.StatsReporter); ok {
		stats := reporter.Stats()
		result.CacheHitCount = stats.CacheHits
		result.CacheMissCount = stats.CacheMisses
	}

	g.progress(Progress{Stage: StageComplete, SegmentsDone: len(s.Segments), SegmentsTotal: len(s.Segments)})
	g.log.Info("generation complete",
		"exercise_id", result.ExerciseID,
		"segments", result.SegmentCount,
		"total_duration_ms", result.TotalDurationMS)
	return result, nil
}

// processSegment synthesizes each fragment with its surrounding text as
// prosody context, quantizes every fragment to whole seconds, stitches
// them gaplessly and exports the segment WAV.
func (g *Generator) processSegment(ctx context.Context, seg *script.Segment, index int, exerciseDir string) (metadata.SegmentResult, error) {
	fragments := seg.Audio.Fragments
	buffers := make([]*audio.Buffer, 0, len(fragments))

	for i, text := range fragments {
		g.log.Debug("generating fragment", "segment_id", seg.ID, "fragment", i+1, "total", len(fragments))

		var previousText, nextText string
		if i > 0 {
			previousText = strings.Join(fragments[:i], " ")
		}
		if i < len(fragments)-1 {
			nextText = strings.Join(fragments[i+1:], " ")
		}

		buf, err := g.tts.GenerateAudio(ctx, text, previousText, nextText)
		if err != nil {
			return metadata.SegmentResult{}, fmt.Errorf("failed to generate audio for fragment %d: %w", i, err)
		}

		buf = audio.PadToWholeSeconds(audio.TrimToWholeSeconds(buf))
		buffers = append(buffers, buf)
	}

	segmentAudio, err := audio.Stitch(buffers, 0, 0)
	if err != nil {
		return metadata.SegmentResult{}, fmt.Errorf("failed to stitch fragments: %w", err)
	}

	// TODO: shorten text via LLM and regenerate when the audio exceeds
	// max_duration_ms and shortening is allowed.
	if limit := seg.Audio.MaxDurationMS; limit != nil && *limit > 0 && segmentAudio.DurationMS() > *limit {
		g.log.Warn("audio exceeds max duration, text shortening not implemented",
			"segment_id", seg.ID,
			"duration_ms", segmentAudio.DurationMS(),
			"max_duration_ms", *limit)
	}

	audioPath := filepath.Join(exerciseDir, fmt.Sprintf("%s_%d.wav", seg.ID, index))
	if err := g.storage.WriteAudio(audioPath, segmentAudio); err != nil {
		return metadata.SegmentResult{}, fmt.Errorf("failed to write audio: %w", err)
	}

	return metadata.SegmentResult{
		SegmentID:     seg.ID,
		SegmentIndex:  index,
		FragmentCount: len(fragments),
		DurationMS:    int64(segmentAudio.DurationMS()),
		AudioPath:     audioPath,
	}, nil
}

func (g *Generator) progress(p Progress) {
	if g.onProgress != nil {
		g.onProgress(p)
	}
}
