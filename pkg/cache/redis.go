package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creastat/voicegen-go/pkg/audio"
	"github.com/creastat/voicegen-go/pkg/logger"
)

const (
	redisAudioPrefix = "voicegen:cache:audio:"
	redisMetaPrefix  = "voicegen:cache:meta:"
	redisScanCount   = 100
)

// RedisCache stores entries in Redis with a native expiry, for worker
// fleets that share one cache. Audio is stored as WAV bytes alongside a
// JSON metadata value under a parallel key.
type RedisCache struct {
	client  *redis.Client
	ttl     time.Duration
	ttlDays int
	log     logger.Logger
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client, ttlDays int, log logger.Logger) *RedisCache {
	log.Info("initialized audio cache", "redis_addr", client.Options().Addr, "ttl_days", ttlDays)
	return &RedisCache{
		client:  client,
		ttl:     time.Duration(ttlDays) * 24 * time.Hour,
		ttlDays: ttlDays,
		log:     log,
	}
}

// Get returns the cached audio, or false on a miss or an unreadable
// entry. Expiry is handled by Redis itself.
func (c *RedisCache) Get(ctx context.Context, req Request) (*audio.Buffer, bool) {
	key := req.Key()

	data, err := c.client.Get(ctx, redisAudioPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
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

// Set stores the audio and its metadata with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, req Request, buf *audio.Buffer) {
	key := req.Key()

	data, err := audio.EncodeWAVBytes(buf)
	if err != nil {
		c.log.Error("failed to cache audio", "key", shortKey(key), "error", err.Error())
		return
	}
	meta := entryMeta{
		Timestamp:       nowSeconds(),
		Text:            req.Text,
		TextLength:      len(req.Text),
		AudioDurationMS: int64(buf.DurationMS()),
		VoiceConfig:     req.Voice,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		c.log.Error("failed to cache audio", "key", shortKey(key), "error", err.Error())
		return
	}

	pipe := c.client.Pipeline()
	pipe.Set(ctx, redisAudioPrefix+key, data, c.ttl)
	pipe.Set(ctx, redisMetaPrefix+key, metaJSON, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Error("failed to cache audio", "key", shortKey(key), "error", err.Error())
		c.client.Del(ctx, redisAudioPrefix+key, redisMetaPrefix+key)
		return
	}

	c.log.Debug("cache set", "key", shortKey(key), "chars", len(req.Text), "duration_ms", buf.DurationMS())
}

// Clear deletes every entry and returns the count.
func (c *RedisCache) Clear(ctx context.Context) (int, error) {
	keys, err := c.scanKeys(ctx, redisAudioPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to scan cache keys: %w", err)
	}

	toDelete := make([]string, 0, len(keys)*2)
	for _, audioKey := range keys {
		key := audioKey[len(redisAudioPrefix):]
		toDelete = append(toDelete, audioKey, redisMetaPrefix+key)
	}
	if len(toDelete) > 0 {
		if err := c.client.Del(ctx, toDelete...).Err(); err != nil {
			return 0, fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.log.Info("cleared cache", "entries_deleted", len(keys))
	return len(keys), nil
}

// PruneExpired is a no-op: Redis evicts expired keys on its own.
func (c *RedisCache) PruneExpired(ctx context.Context) (int, error) {
	c.log.Debug("prune skipped, redis expires entries natively")
	return 0, nil
}

// Stats reports the entry count and total stored size.
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	audioKeys, err := c.scanKeys(ctx, redisAudioPrefix+"*")
	if err != nil {
		return Stats{}, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	metaKeys, err := c.scanKeys(ctx, redisMetaPrefix+"*")
	if err != nil {
		return Stats{}, fmt.Errorf("failed to scan cache keys: %w", err)
	}

	var totalBytes int64
	for _, key := range append(audioKeys, metaKeys...) {
		size, err := c.client.StrLen(ctx, key).Result()
		if err != nil {
			continue
		}
		totalBytes += size
	}

	sizeMB := float64(totalBytes) / (1024 * 1024)
	return Stats{
		EntryCount:  len(audioKeys),
		TotalSizeMB: math.Round(sizeMB*100) / 100,
		CacheDir:    "redis://" + c.client.Options().Addr,
		TTLDays:     float64(c.ttlDays),
	}, nil
}

func (c *RedisCache) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
