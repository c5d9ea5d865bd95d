// Package server exposes the narration pipeline over HTTP: script
// validation and cost estimates, generation job submission, websocket
// progress streaming and stored metadata lookups.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/creastat/voicegen-go/pkg/generate"
	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/metadata"
	"github.com/creastat/voicegen-go/pkg/script"
	"github.com/creastat/voicegen-go/pkg/storage"
	"github.com/creastat/voicegen-go/pkg/tts/elevenlabs"
)

const maxScriptBodyBytes = 1 << 20

// Enqueuer submits generation jobs. *tasks.Client implements it; tests
// substitute a fake.
type Enqueuer interface {
	EnqueueGenerate(ctx context.Context, scriptJSON []byte, outputDir string) (string, error)
}

// Config assembles the server's collaborators. Storage is required. A
// nil Queue disables job submission and a nil Redis disables the
// progress event stream.
type Config struct {
	AuthToken string
	Queue     Enqueuer
	Redis     *redis.Client
	Storage   storage.Storage
	Logger    logger.Logger
}

type Server struct {
	authToken string
	queue     Enqueuer
	redis     *redis.Client
	storage   storage.Storage
	log       logger.Logger
	upgrader  websocket.Upgrader
}

func New(cfg Config) (*Server, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		authToken: cfg.AuthToken,
		queue:     cfg.Queue,
		redis:     cfg.Redis,
		storage:   cfg.Storage,
		log:       log,
		upgrader: websocket.Upgrader{
			// Clients are programmatic and authenticate per request.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}, nil
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(s.bearerAuth)
		}
		r.Post("/scripts/validate", s.handleValidate)
		r.Post("/scripts/estimate", s.handleEstimate)
		r.Post("/generations", s.handleEnqueue)
		r.Get("/generations/{id}/events", s.handleEvents)
		r.Get("/exercises/{id}/metadata", s.handleMetadata)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleValidate runs structural and business validation on the posted
// script without touching the TTS provider. Script problems come back
// as a validation result, not an HTTP error.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	parsed, err := script.Parse(body)
	if err != nil {
		var vErr *script.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusOK, script.ValidationResult{Valid: false, Errors: vErr.Errors, Warnings: []string{}})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, script.Validate(parsed))
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	parsed, err := script.Parse(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	totalChars := 0
	for _, seg := range parsed.Segments {
		totalChars += seg.Audio.TotalCharacters()
	}

	writeJSON(w, http.StatusOK, generate.CostEstimate{
		TotalCharacters: totalChars,
		EstimatedUSD:    float64(totalChars) / 1000 * elevenlabs.PricePer1KChars,
		Currency:        "USD",
	})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "generation queue not configured"})
		return
	}

	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	if _, err := script.Parse(body); err != nil {
		var vErr *script.ValidationError
		if errors.As(err, &vErr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid script", "errors": vErr.Errors})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	jobID, err := s.queue.EnqueueGenerate(r.Context(), body, "")
	if err != nil {
		s.log.Error("failed to enqueue generation", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue generation"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !isSafeID(id) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exercise id"})
		return
	}

	path := filepath.Join(s.storage.ExerciseDir(id), fmt.Sprintf("%s_metadata.json", id))

	var doc metadata.Document
	if err := s.storage.ReadJSON(path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "exercise not found"})
			return
		}
		s.log.Error("failed to read metadata", "exercise_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read metadata"})
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScriptBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return nil, false
	}
	return body, true
}

// isSafeID rejects ids that could escape the storage directory.
func isSafeID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, "/\\")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
