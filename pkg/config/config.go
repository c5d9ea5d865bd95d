package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from environment variables and/or config file.
// Defaults must list every key: viper only resolves environment
// variables for keys it has seen.
func Load(cfg any, envPrefix string, configPath string, defaults map[string]any) error {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Environment variables
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// It's okay if config file doesn't exist, provided we have env vars
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// Config contains settings shared by the CLI, API server and worker
type Config struct {
	// LogLevel is the zerolog level name (debug, info, warn, error)
	LogLevel string `mapstructure:"log_level"`

	// OutputDir is the base directory for generated audio and metadata
	OutputDir string `mapstructure:"output_dir"`

	// CacheBackend selects the TTS cache implementation ("file" or "redis")
	CacheBackend string `mapstructure:"cache_backend"`

	// CacheDir is the directory for the file cache backend
	CacheDir string `mapstructure:"cache_dir"`

	// CacheTTLDays is the cache entry time-to-live in days
	CacheTTLDays int `mapstructure:"cache_ttl_days"`

	// RedisAddr is the redis address used by the redis cache backend,
	// the task queue and progress pub/sub
	RedisAddr string `mapstructure:"redis_addr"`

	// APIKey is the ElevenLabs API key
	APIKey string `mapstructure:"api_key"`

	// VoiceID is the default ElevenLabs voice ID
	VoiceID string `mapstructure:"voice_id"`

	// MaxRetries is the maximum number of TTS API attempts
	MaxRetries int `mapstructure:"max_retries"`

	// RetryBackoffFactor is the exponential backoff base in seconds
	RetryBackoffFactor float64 `mapstructure:"retry_backoff_factor"`

	// GuideTablePath optionally points at a YAML breathing guide table
	GuideTablePath string `mapstructure:"guide_table"`

	// ListenAddr is the HTTP API listen address
	ListenAddr string `mapstructure:"listen_addr"`

	// AuthToken protects the HTTP API when set
	AuthToken string `mapstructure:"auth_token"`

	// WorkerConcurrency is the number of concurrent generation jobs
	WorkerConcurrency int `mapstructure:"worker_concurrency"`
}

// Default returns a Config with default values applied
func Default() Config {
	return Config{
		LogLevel:           "info",
		OutputDir:          "audio_out",
		CacheBackend:       "file",
		CacheDir:           ".audio_cache",
		CacheTTLDays:       30,
		RedisAddr:          "127.0.0.1:6379",
		MaxRetries:         3,
		RetryBackoffFactor: 2.0,
		ListenAddr:         ":8080",
		WorkerConcurrency:  4,
	}
}

// LoadConfig loads the service configuration with defaults applied,
// using the VOICEGEN env prefix and an optional YAML file
func LoadConfig(configPath string) (Config, error) {
	d := Default()
	cfg := d
	err := Load(&cfg, "VOICEGEN", configPath, map[string]any{
		"log_level":            d.LogLevel,
		"output_dir":           d.OutputDir,
		"cache_backend":        d.CacheBackend,
		"cache_dir":            d.CacheDir,
		"cache_ttl_days":       d.CacheTTLDays,
		"redis_addr":           d.RedisAddr,
		"api_key":              d.APIKey,
		"voice_id":             d.VoiceID,
		"max_retries":          d.MaxRetries,
		"retry_backoff_factor": d.RetryBackoffFactor,
		"guide_table":          d.GuideTablePath,
		"listen_addr":          d.ListenAddr,
		"auth_token":           d.AuthToken,
		"worker_concurrency":   d.WorkerConcurrency,
	})
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}
