package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creastat/voicegen-go/pkg/audio"
	"github.com/creastat/voicegen-go/pkg/logger"
	"github.com/creastat/voicegen-go/pkg/script"
)

const secondsPerDay = 24 * 60 * 60

// entryMeta sits next to each cached WAV file and carries the data
// needed for TTL checks and cache inspection.
type entryMeta struct {
	Timestamp       float64            `json:"timestamp"`
	Text            string             `json:"text"`
	TextLength      int                `json:"text_length"`
	AudioDurationMS int64              `json:"audio_duration_ms"`
	VoiceConfig     script.VoiceConfig `json:"voice_config"`
}

// FileCache stores entries as {key}.wav plus {key}.meta.json pairs in a
// single directory. Expiry is lazy: entries past their TTL are deleted
// when read, or in bulk by PruneExpired.
type FileCache struct {
	dir        string
	ttlSeconds float64
	log        logger.Logger
}

// NewFileCache creates the cache directory if needed.
func NewFileCache(dir string, ttlDays int, log logger.Logger) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	log.Info("initialized audio cache", "cache_dir", dir, "ttl_days", ttlDays)
	return &FileCache{
		dir:        dir,
		ttlSeconds: float64(ttlDays) * secondsPerDay,
		log:        log,
	}, nil
}

// Get returns the cached audio, or false on a miss. Expired entries
// are deleted on read, and unreadable entries are treated as misses.
func (c *FileCache) Get(ctx context.Context, req Request) (*audio.Buffer, bool) {
	key := req.Key()
	audioPath := c.audioPath(key)
	metaPath := c.metaPath(key)

	if !fileExists(audioPath) || !fileExists(metaPath) {
		return nil, false
	}

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		c.log.Warn("cache read error", "key", shortKey(key), "error", err.Error())
		return nil, false
	}
	var meta entryMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		c.log.Warn("cache read error", "key", shortKey(key), "error", err.Error())
		return nil, false
	}

	ageSeconds := nowSeconds() - meta.Timestamp
	if ageSeconds > c.ttlSeconds {
		c.log.Debug("cache expired", "key", shortKey(key), "age_days", ageSeconds/secondsPerDay)
		c.deleteEntry(key)
		return nil, false
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		c.log.Warn("cache read error", "key", shortKey(key), "error", err.Error())
		return nil, false
	}
	buf, err := audio.DecodeWAVBytes(data)
	if err != nil {
		c.log.Warn("cache read error", "key", shortKey(key), "error", err.Error())
		return nil, false
	}

	c.log.Debug("cache hit", "key", shortKey(key), "chars", len(req.Text))
	return buf, true
}

// Set stores the audio and its metadata. A failed write cleans up the
// partial pair so the cache never holds a WAV without its metadata.
func (c *FileCache) Set(ctx context.Context, req Request, buf *audio.Buffer) {
	key := req.Key()

	data, err := audio.EncodeWAVBytes(buf)
	if err != nil {
		c.log.Error("failed to cache audio", "key", shortKey(key), "error", err.Error())
		return
	}
	if err := os.WriteFile(c.audioPath(key), data, 0o644); err != nil {
		c.log.Error("failed to cache audio", "key", shortKey(key), "error", err.Error())
		c.deleteEntry(key)
		return
	}

	meta := entryMeta{
		Timestamp:       nowSeconds(),
		Text:            req.Text,
		TextLength:      len(req.Text),
		AudioDurationMS: int64(buf.DurationMS()),
		VoiceConfig:     req.Voice,
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err == nil {
		err = os.WriteFile(c.metaPath(key), metaJSON, 0o644)
	}
	if err != nil {
		c.log.Error("failed to cache audio", "key", shortKey(key), "error", err.Error())
		c.deleteEntry(key)
		return
	}

	c.log.Debug("cache set", "key", shortKey(key), "chars", len(req.Text), "duration_ms", buf.DurationMS())
}

// Clear deletes every entry and returns the count.
func (c *FileCache) Clear(ctx context.Context) (int, error) {
	audioFiles, err := filepath.Glob(filepath.Join(c.dir, "*.wav"))
	if err != nil {
		return 0, fmt.Errorf("failed to scan cache directory: %w", err)
	}

	count := 0
	for _, path := range audioFiles {
		key := strings.TrimSuffix(filepath.Base(path), ".wav")
		c.deleteEntry(key)
		count++
	}

	c.log.Info("cleared cache", "entries_deleted", count)
	return count, nil
}

// PruneExpired deletes entries past their TTL and returns the count.
// Unreadable metadata files are skipped with a warning.
func (c *FileCache) PruneExpired(ctx context.Context) (int, error) {
	metaFiles, err := filepath.Glob(filepath.Join(c.dir, "*.meta.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to scan cache directory: %w", err)
	}

	count := 0
	now := nowSeconds()
	for _, path := range metaFiles {
		raw, err := os.ReadFile(path)
		if err != nil {
			c.log.Warn("failed to check cache entry", "path", path, "error", err.Error())
			continue
		}
		var meta entryMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			c.log.Warn("failed to check cache entry", "path", path, "error", err.Error())
			continue
		}

		if now-meta.Timestamp > c.ttlSeconds {
			key := strings.TrimSuffix(filepath.Base(path), ".meta.json")
			c.deleteEntry(key)
			count++
		}
	}

	c.log.Info("pruned cache", "entries_deleted", count)
	return count, nil
}

// Stats reports the entry count and total on-disk size.
func (c *FileCache) Stats(ctx context.Context) (Stats, error) {
	audioFiles, err := filepath.Glob(filepath.Join(c.dir, "*.wav"))
	if err != nil {
		return Stats{}, fmt.Errorf("failed to scan cache directory: %w", err)
	}
	metaFiles, err := filepath.Glob(filepath.Join(c.dir, "*.meta.json"))
	if err != nil {
		return Stats{}, fmt.Errorf("failed to scan cache directory: %w", err)
	}

	var totalBytes int64
	for _, path := range append(audioFiles, metaFiles...) {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		totalBytes += info.Size()
	}

	sizeMB := float64(totalBytes) / (1024 * 1024)
	return Stats{
		EntryCount:  len(audioFiles),
		TotalSizeMB: math.Round(sizeMB*100) / 100,
		CacheDir:    c.dir,
		TTLDays:     c.ttlSeconds / secondsPerDay,
	}, nil
}

func (c *FileCache) audioPath(key string) string {
	return filepath.Join(c.dir, key+".wav")
}

func (c *FileCache) metaPath(key string) string {
	return filepath.Join(c.dir, key+".meta.json")
}

func (c *FileCache) deleteEntry(key string) {
	os.Remove(c.audioPath(key))
	os.Remove(c.metaPath(key))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func nowSeconds() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}
