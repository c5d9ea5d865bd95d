// Command api serves the voicegen HTTP API: script validation, cost
// estimates, generation job submission and progress streaming.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creastat/voicegen-go/pkg/config"
	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/server"
	"github.com/creastat/voicegen-go/pkg/storage"
	"github.com/creastat/voicegen-go/pkg/tasks"
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
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Warn("redis unreachable, jobs will fail until it comes back", "addr", cfg.RedisAddr, "error", err)
	}

	queue := tasks.NewClient(cfg.RedisAddr, log)
	defer queue.Close()

	store, err := storage.NewFilesystem(cfg.OutputDir, log)
	if err != nil {
		log.Fatal("failed to initialize storage", "error", err)
	}

	srv, err := server.New(server.Config{
		AuthToken: cfg.AuthToken,
		Queue:     queue,
		Redis:     rdb,
		Storage:   store,
		Logger:    log,
	})
	if err != nil {
		log.Fatal("failed to initialize server", "error", err)
	}

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("starting API server", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("server stopped")
}
