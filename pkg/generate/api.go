package generate

import (
	"context"
	"fmt"
	"os"

	"github.com/creastat/voicegen-go/pkg/cache"
	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/metadata"
	"github.com/creastat/voicegen-go/pkg/script"
	"github.com/creastat/voicegen-go/pkg/storage"
	"github.com/creastat/voicegen-go/pkg/tts"
)

// Defaults for Run when the corresponding option is unset.
const (
	DefaultOutputDir    = "audio_out"
	DefaultCacheDir     = ".audio_cache"
	DefaultCacheTTLDays = 30
)

// Options configures Run. Zero values fall back to the defaults above;
// credentials fall back to the XI_API_KEY and VOICE_ID environment
// variables.
type Options struct {
	InputPath    string
	OutputDir    string
	CacheDir     string
	DisableCache bool
	CacheTTLDays int

	// APIKey overrides the XI_API_KEY environment variable.
	APIKey string

	// VoiceID overrides the script's voice_config and the VOICE_ID
	// environment variable.
	VoiceID string

	// GuideTablePath replaces the built-in breathing guide recordings.
	GuideTablePath string

	Logger     logger.Logger
	OnProgress func(Progress)
}

// Run loads a script file and generates its narration end to end. It is
// the simplest way to use the library; for finer control assemble a
// Generator directly.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	log.Info("loading narration script", "path", opts.InputPath)
	s, err := script.ParseFile(opts.InputPath)
	if err != nil {
		return nil, err
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("XI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ElevenLabs API key required, provide the api-key option or the XI_API_KEY environment variable")
	}

	voiceID := opts.VoiceID
	if voiceID == "" {
		voiceID = s.VoiceConfig.VoiceID
	}
	if voiceID == "" {
		voiceID = os.Getenv("VOICE_ID")
	}
	if voiceID == "" {
		return nil, fmt.Errorf("voice ID required, provide it in the script's voice_config, the voice-id option or the VOICE_ID environment variable")
	}

	voice := s.VoiceConfig
	voice.VoiceID = voiceID

	var audioCache cache.Cache
	if !opts.DisableCache {
		cacheDir := opts.CacheDir
		if cacheDir == "" {
			cacheDir = DefaultCacheDir
		}
		ttlDays := opts.CacheTTLDays
		if ttlDays <= 0 {
			ttlDays = DefaultCacheTTLDays
		}
		fileCache, err := cache.NewFileCache(cacheDir, ttlDays, log)
		if err != nil {
			return nil, err
		}
		audioCache = fileCache
	}

	client, err := tts.New(ctx, voice.Provider, tts.ClientConfig{
		APIKey: apiKey,
		Voice:  voice,
		Cache:  audioCache,
	}, log)
	if err != nil {
		return nil, err
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	store, err := storage.NewFilesystem(outputDir, log)
	if err != nil {
		return nil, err
	}

	guides := metadata.DefaultGuideTable()
	if opts.GuideTablePath != "" {
		guides, err = metadata.LoadGuideTable(opts.GuideTablePath)
		if err != nil {
			return nil, err
		}
	}

	generator, err := New(Config{
		TTS:        client,
		Storage:    store,
		Metadata:   metadata.NewBuilder(guides, log),
		Logger:     log,
		OnProgress: opts.OnProgress,
	})
	if err != nil {
		return nil, err
	}

	log.Info("generating narration", "exercise", s.Exercise.Title)
	return generator.Generate(ctx, s)
}
