// Command worker consumes generation jobs from the voicegen queue and
// publishes progress events over redis pub/sub.
package main

import (
	"flag"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/creastat/voicegen-go/pkg/cache"
	"github.com/creastat/voicegen-go/pkg/config"
	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/metadata"
	"github.com/creastat/voicegen-go/pkg/storage"
	"github.com/creastat/voicegen-go/pkg/tasks"

	// Register the ElevenLabs provider.
	_ "github.com/creastat/voicegen-go/pkg/tts/elevenlabs"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.New("error").Fatal("failed to load config", "error", err)
	}
	log := logger.New(cfg.LogLevel)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	var audioCache cache.Cache
	switch cfg.CacheBackend {
	case "file":
		fileCache, err := cache.NewFileCache(cfg.CacheDir, cfg.CacheTTLDays, log)
		if err != nil {
			log.Fatal("failed to initialize cache", "error", err)
		}
		audioCache = fileCache
	case "redis":
		audioCache = cache.NewRedisCache(rdb, cfg.CacheTTLDays, log)
	default:
		log.Fatal("unknown cache backend", "backend", cfg.CacheBackend)
	}

	store, err := storage.NewFilesystem(cfg.OutputDir, log)
	if err != nil {
		log.Fatal("failed to initialize storage", "error", err)
	}

	var guides metadata.GuideTable
	if cfg.GuideTablePath != "" {
		guides, err = metadata.LoadGuideTable(cfg.GuideTablePath)
		if err != nil {
			log.Fatal("failed to load guide table", "error", err)
		}
	}

	handler, err := tasks.NewHandler(tasks.HandlerConfig{
		APIKey:             cfg.APIKey,
		DefaultVoiceID:     cfg.VoiceID,
		MaxRetries:         cfg.MaxRetries,
		RetryBackoffFactor: cfg.RetryBackoffFactor,
		Cache:              audioCache,
		Storage:            store,
		Guides:             guides,
		Publisher:          tasks.NewRedisPublisher(rdb, log),
		Logger:             log,
	})
	if err != nil {
		log.Fatal("failed to initialize handler", "error", err)
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				tasks.QueueName: 1,
			},
			Logger: logger.NewAsynqLoggerAdapter(log),
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeGenerate, handler)

	log.Info("starting worker", "queue", tasks.QueueName, "concurrency", cfg.WorkerConcurrency)
	if err := srv.Run(mux); err != nil {
		log.Fatal("worker error", "error", err)
	}
}
