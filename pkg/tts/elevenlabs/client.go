// Package elevenlabs implements the ElevenLabs text-to-speech provider
// with prosody context, caching, and exponential backoff retries.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/creastat/voicegen-go/pkg/audio"
	"github.com/creastat/voicegen-go/pkg/cache"
	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/script"
	"github.com/creastat/voicegen-go/pkg/tts"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	requestTimeout = 30 * time.Second

	defaultMaxRetries    = 3
	defaultBackoffFactor = 2.0
)

// PricePer1KChars is the approximate ElevenLabs price in USD per
// thousand characters, used for cost estimates.
const PricePer1KChars = 0.30

func init() {
	if err := tts.Register("elevenlabs", func(ctx context.Context, cfg tts.ClientConfig, log logger.Logger) (tts.Client, error) {
		return New(cfg, log)
	}); err != nil {
		panic(err)
	}
}

// Client calls the ElevenLabs streaming synthesis endpoint. It is safe
// for concurrent use.
type Client struct {
	apiKey        string
	voice         script.VoiceConfig
	baseURL       string
	httpClient    *http.Client
	cache         cache.Cache
	maxRetries    int
	backoffFactor float64
	sleep         func(ctx context.Context, d time.Duration) error
	decode        func(data []byte) (*audio.Buffer, error)
	log           logger.Logger

	mu    sync.Mutex
	stats tts.Stats
}

// New creates an ElevenLabs client. The API key and voice id are
// required; retry settings fall back to three attempts with a factor
// of two.
func New(cfg tts.ClientConfig, log logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("ElevenLabs API key is required")
	}
	if cfg.Voice.VoiceID == "" {
		return nil, fmt.Errorf("ElevenLabs voice id is required")
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoffFactor := cfg.RetryBackoffFactor
	if backoffFactor <= 0 {
		backoffFactor = defaultBackoffFactor
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	log.Info("initialized elevenlabs client",
		"voice_id", cfg.Voice.VoiceID,
		"model", cfg.Voice.Model,
		"cache_enabled", cfg.Cache != nil,
	)

	return &Client{
		apiKey:        cfg.APIKey,
		voice:         cfg.Voice,
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: requestTimeout},
		cache:         cfg.Cache,
		maxRetries:    maxRetries,
		backoffFactor: backoffFactor,
		sleep:         sleepContext,
		decode:        audio.DecodeMP3,
		log:           log,
	}, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
	PreviousText  string        `json:"previous_text,omitempty"`
	NextText      string        `json:"next_text,omitempty"`
}

// GenerateAudio synthesizes text, consulting the cache first and
// retrying transient API failures with exponential backoff.
func (c *Client) GenerateAudio(ctx context.Context, text, previousText, nextText string) (*audio.Buffer, error) {
	cacheReq := cache.Request{
		Text:         text,
		PreviousText: previousText,
		NextText:     nextText,
		Voice:        c.voice,
	}

	if c.cache != nil {
		if buf, ok := c.cache.Get(ctx, cacheReq); ok {
			c.mu.Lock()
			c.stats.CacheHits++
			hits, misses := c.stats.CacheHits, c.stats.CacheMisses
			c.mu.Unlock()
			c.log.Info("cache hit", "hits", hits, "misses", misses, "text", truncate(text, 50))
			return buf, nil
		}
		c.mu.Lock()
		c.stats.CacheMisses++
		c.mu.Unlock()
	}

	buf, err := c.callAPIWithRetry(ctx, text, previousText, nextText)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(ctx, cacheReq, buf)
	}
	return buf, nil
}

// callAPIWithRetry retries transient failures. Client errors (4xx) are
// surfaced immediately; the wait after failed attempt n is
// backoffFactor^n seconds.
func (c *Client) callAPIWithRetry(ctx context.Context, text, previousText, nextText string) (*audio.Buffer, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		buf, err := c.callAPI(ctx, text, previousText, nextText)
		if err == nil {
			return buf, nil
		}
		lastErr = err

		var terr *tts.Error
		if errors.As(err, &terr) && terr.IsClientError() {
			c.log.Error("client error, not retrying", "error", err.Error())
			return nil, err
		}

		if attempt < c.maxRetries-1 {
			wait := time.Duration(math.Pow(c.backoffFactor, float64(attempt)) * float64(time.Second))
			c.log.Warn("synthesis request failed, retrying",
				"attempt", attempt+1,
				"max_retries", c.maxRetries,
				"wait", wait.String(),
				"error", err.Error(),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		} else {
			c.log.Error("synthesis failed", "attempts", c.maxRetries, "error", err.Error())
		}
	}

	return nil, lastErr
}

func (c *Client) callAPI(ctx context.Context, text, previousText, nextText string) (*audio.Buffer, error) {
	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", c.baseURL, c.voice.VoiceID)

	payload := synthesisRequest{
		Text:    text,
		ModelID: c.voice.Model,
		VoiceSettings: voiceSettings{
			Stability:       c.voice.Stability,
			SimilarityBoost: c.voice.SimilarityBoost,
			Style:           c.voice.Style,
			UseSpeakerBoost: c.voice.UseSpeakerBoost,
		},
		PreviousText: previousText,
		NextText:     nextText,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &tts.Error{Message: "failed to encode synthesis request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &tts.Error{Message: "failed to build synthesis request", Err: err}
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	c.log.Debug("calling elevenlabs api", "chars", len(text), "text", truncate(text, 50))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &tts.Error{Message: "network error calling ElevenLabs API", Err: err}
	}
	defer resp.Body.Close()

	c.mu.Lock()
	c.stats.APICalls++
	c.stats.TotalCharacters += len(text)
	c.mu.Unlock()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &tts.Error{Message: "failed to read ElevenLabs response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &tts.Error{
			Message:      "ElevenLabs API returned error",
			StatusCode:   resp.StatusCode,
			ResponseText: string(data),
		}
	}

	buf, err := c.decode(data)
	if err != nil {
		return nil, &tts.Error{Message: "failed to decode ElevenLabs audio", Err: err}
	}

	c.log.Info("generated audio", "duration_ms", buf.DurationMS(), "chars", len(text))
	return buf, nil
}

// EstimateCost returns the synthesis cost for the text in USD.
func (c *Client) EstimateCost(text string) float64 {
	return float64(len(text)) / 1000 * PricePer1KChars
}

// Stats returns a snapshot of the usage counters.
func (c *Client) Stats() tts.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
