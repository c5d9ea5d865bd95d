// Package cache provides content-addressed caching of synthesized audio.
// Entries are keyed by the narrated text, its prosody context, and the
// full voice configuration, so any change to the request produces a
// fresh synthesis.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/creastat/voicegen-go/pkg/audio"
	"github.com/creastat/voicegen-go/pkg/script"
)

// Request identifies one synthesis result.
type Request struct {
	Text         string
	PreviousText string
	NextText     string
	Voice        script.VoiceConfig
}

// Key derives the cache key: a SHA-256 hex digest over the canonical
// JSON encoding of every input that affects the synthesized audio.
// Map marshaling sorts keys, so the digest is order independent.
func (r Request) Key() string {
	payload := map[string]any{
		"text":              r.Text,
		"previous_text":     r.PreviousText,
		"next_text":         r.NextText,
		"voice_id":          r.Voice.VoiceID,
		"model":             r.Voice.Model,
		"stability":         r.Voice.Stability,
		"similarity_boost":  r.Voice.SimilarityBoost,
		"style":             r.Voice.Style,
		"use_speaker_boost": r.Voice.UseSpeakerBoost,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Marshaling strings, floats and bools cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Stats summarizes the state of a cache backend.
type Stats struct {
	EntryCount  int     `json:"entry_count"`
	TotalSizeMB float64 `json:"total_size_mb"`
	CacheDir    string  `json:"cache_dir"`
	TTLDays     float64 `json:"ttl_days"`
}

// Cache stores synthesized audio keyed by its generating request.
// Get and Set never return errors: backends log failures and report
// misses instead, so a broken cache degrades to regeneration rather
// than failing the pipeline.
type Cache interface {
	// Get returns the cached audio for the request, or false on a
	// miss, an expired entry, or an unreadable entry.
	Get(ctx context.Context, req Request) (*audio.Buffer, bool)

	// Set stores the audio for the request, replacing any existing
	// entry.
	Set(ctx context.Context, req Request, buf *audio.Buffer)

	// Clear removes all entries and returns how many were deleted.
	Clear(ctx context.Context) (int, error)

	// PruneExpired removes entries past their TTL and returns how
	// many were deleted. Backends with native expiry may report zero.
	PruneExpired(ctx context.Context) (int, error)

	// Stats reports entry count, total size and TTL.
	Stats(ctx context.Context) (Stats, error)
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
