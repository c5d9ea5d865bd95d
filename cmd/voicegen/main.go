// Command voicegen generates voice narration audio for breathing
// exercises from a JSON script.
//
// Usage:
//
//	voicegen [flags] script.json
//
// Credentials come from the -api-key and -voice-id flags, the config
// file, or the XI_API_KEY and VOICE_ID environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/creastat/voicegen-go/pkg/cache"
	"github.com/creastat/voicegen-go/pkg/config"
	"github.com/creastat/voicegen-go/pkg/generate"
	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/script"
	"github.com/creastat/voicegen-go/pkg/tts/elevenlabs"
)

const version = "2.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   = flag.String("config", "", "path to a YAML config file")
		outputDir    = flag.String("output-dir", config.Default().OutputDir, "output directory for audio files")
		cacheDir     = flag.String("cache-dir", config.Default().CacheDir, "cache directory for TTS responses")
		noCache      = flag.Bool("no-cache", false, "disable TTS caching")
		dryRun       = flag.Bool("dry-run", false, "validate the script only, do not generate audio")
		estimateCost = flag.Bool("estimate-cost", false, "estimate API costs without generating")
		cacheStats   = flag.Bool("cache-stats", false, "print cache statistics and exit")
		cacheClear   = flag.Bool("cache-clear", false, "delete all cache entries and exit")
		cachePrune   = flag.Bool("cache-prune", false, "delete expired cache entries and exit")
		apiKey       = flag.String("api-key", "", "ElevenLabs API key (default: XI_API_KEY env var)")
		voiceID      = flag.String("voice-id", "", "ElevenLabs voice ID (default: from the script or VOICE_ID env var)")
		guideTable   = flag.String("guide-table", "", "path to a YAML breathing guide table")
		verbose      = flag.Bool("verbose", false, "enable verbose logging")
		showVersion  = flag.Bool("version", false, "print version and exit")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("voicegen %s\n", version)
		return 0
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	// Explicit flags win over config file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output-dir":
			cfg.OutputDir = *outputDir
		case "cache-dir":
			cfg.CacheDir = *cacheDir
		case "api-key":
			cfg.APIKey = *apiKey
		case "voice-id":
			cfg.VoiceID = *voiceID
		case "guide-table":
			cfg.GuideTablePath = *guideTable
		}
	})

	logLevel := cfg.LogLevel
	if *verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *cacheStats || *cacheClear || *cachePrune {
		return runCacheAdmin(ctx, cfg, *cacheStats, *cacheClear, *cachePrune, log)
	}

	if flag.NArg() != 1 {
		usage()
		return 1
	}
	inputPath := flag.Arg(0)

	fmt.Printf("Loading narration script from %s\n", inputPath)
	s, err := script.ParseFile(inputPath)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Loaded: %s\n", s.Exercise.Title)
	fmt.Printf("  Segments: %d\n", len(s.Segments))
	fmt.Printf("  Estimated duration: %.0fs\n", float64(s.EstimateTotalDurationMS())/1000)

	if *dryRun {
		return runDryRun(s)
	}
	if *estimateCost {
		return runEstimate(s)
	}

	fmt.Println("\nGenerating audio...")
	result, err := generate.Run(ctx, generate.Options{
		InputPath:      inputPath,
		OutputDir:      cfg.OutputDir,
		CacheDir:       cfg.CacheDir,
		DisableCache:   *noCache,
		CacheTTLDays:   cfg.CacheTTLDays,
		APIKey:         cfg.APIKey,
		VoiceID:        cfg.VoiceID,
		GuideTablePath: cfg.GuideTablePath,
		Logger:         log,
		OnProgress: func(p generate.Progress) {
			if p.Stage == generate.StageSynthesizing {
				fmt.Printf("  [%d/%d] %s\n", p.SegmentsDone+1, p.SegmentsTotal, p.SegmentID)
			}
		},
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			return 130
		}
		return fail(err)
	}

	printResult(result)
	return 0
}

func runDryRun(s *script.Script) int {
	fmt.Println("\nValidating...")
	result := script.Validate(s)

	if !result.Valid {
		fmt.Println("Validation failed:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return 1
	}

	fmt.Println("Validation passed")
	if len(result.Warnings) > 0 {
		fmt.Printf("Warnings (%d):\n", len(result.Warnings))
		for _, w := range result.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
	return 0
}

func runEstimate(s *script.Script) int {
	fmt.Println("\nEstimating costs...")

	totalChars := 0
	for _, seg := range s.Segments {
		totalChars += seg.Audio.TotalCharacters()
	}
	estimatedUSD := float64(totalChars) / 1000 * elevenlabs.PricePer1KChars

	fmt.Printf("Total characters: %d\n", totalChars)
	fmt.Printf("Estimated cost: $%.2f USD\n", estimatedUSD)
	fmt.Printf("  (based on $%.2f per 1K characters)\n", elevenlabs.PricePer1KChars)
	return 0
}

func runCacheAdmin(ctx context.Context, cfg config.Config, stats, clear, prune bool, log logger.Logger) int {
	c, err := cache.NewFileCache(cfg.CacheDir, cfg.CacheTTLDays, log)
	if err != nil {
		return fail(err)
	}

	switch {
	case clear:
		n, err := c.Clear(ctx)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("Deleted %d cache entries\n", n)
	case prune:
		n, err := c.PruneExpired(ctx)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("Pruned %d expired cache entries\n", n)
	case stats:
		s, err := c.Stats(ctx)
		if err != nil {
			return fail(err)
		}
		fmt.Printf("Cache directory: %s\n", s.CacheDir)
		fmt.Printf("  Entries: %d\n", s.EntryCount)
		fmt.Printf("  Total size: %.2f MB\n", s.TotalSizeMB)
		fmt.Printf("  TTL: %.0f days\n", s.TTLDays)
	}
	return 0
}

func printResult(result *generate.Result) {
	fmt.Println("\nGeneration complete")
	fmt.Printf("  Exercise: %s\n", result.ExerciseID)
	fmt.Printf("  Segments: %d\n", result.SegmentCount)
	fmt.Printf("  Total duration: %.1fs\n", result.TotalDurationSeconds())
	fmt.Printf("  Output directory: %s\n", result.OutputDir)
	fmt.Printf("  Metadata: %s\n", filepath.Base(result.MetadataPath))
	fmt.Printf("  Audio files: %d\n", len(result.AudioFiles))
	if result.CacheHitCount+result.CacheMissCount > 0 {
		fmt.Printf("  Cache hit rate: %.1f%%\n", result.CacheHitRate())
	}

	fmt.Println("\nAudio files:")
	for _, f := range result.AudioFiles {
		fmt.Printf("  - %s\n", filepath.Base(f))
	}
}

func fail(err error) int {
	var vErr *script.ValidationError
	if errors.As(err, &vErr) {
		fmt.Fprintln(os.Stderr, "validation error:")
		for _, e := range vErr.Errors {
			fmt.Fprintf(os.Stderr, "  - %s\n", e)
		}
		return 1
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: voicegen [flags] script.json\n\nFlags:\n")
	flag.PrintDefaults()
}
