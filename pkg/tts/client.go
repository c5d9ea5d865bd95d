// Package tts defines the text-to-speech client contract and the
// provider registry used to construct clients by name.
package tts

import (
	"context"

	"github.com/creastat/voicegen-go/pkg/audio"
	"github.com/creastat/voicegen-go/pkg/cache"
	"github.com/creastat/voicegen-go/pkg/script"
)

// Client synthesizes narration audio. The previous and next text give
// the provider prosody context so consecutive fragments flow naturally.
type Client interface {
	// GenerateAudio synthesizes text into mono PCM audio.
	GenerateAudio(ctx context.Context, text, previousText, nextText string) (*audio.Buffer, error)

	// EstimateCost returns the estimated synthesis cost in USD for the
	// given text, without calling the provider.
	EstimateCost(text string) float64
}

// Stats tracks client usage counters.
type Stats struct {
	APICalls        int `json:"api_calls"`
	TotalCharacters int `json:"total_characters"`
	CacheHits       int `json:"cache_hits"`
	CacheMisses     int `json:"cache_misses"`
}

// HitRatePercent returns the cache hit rate rounded to one decimal, or
// zero when the cache has not been consulted.
func (s Stats) HitRatePercent() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	rate := float64(s.CacheHits) / float64(total) * 100
	return float64(int(rate*10+0.5)) / 10
}

// StatsReporter is implemented by clients that track usage counters.
type StatsReporter interface {
	Stats() Stats
}

// ClientConfig carries everything needed to construct a synthesis
// client. A nil Cache disables caching.
type ClientConfig struct {
	APIKey             string
	Voice              script.VoiceConfig
	Cache              cache.Cache
	MaxRetries         int
	RetryBackoffFactor float64

	// BaseURL overrides the provider endpoint, mainly for tests.
	BaseURL string
}
