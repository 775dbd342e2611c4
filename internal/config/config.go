// Package config loads the curator's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/justestif/go-spotify-playlist-curator/internal/auth"
	"github.com/justestif/go-spotify-playlist-curator/internal/llm"
	"github.com/justestif/go-spotify-playlist-curator/internal/queue"
)

const (
	DefaultAddr        = "127.0.0.1:8080"
	DefaultRedirectURI = "http://127.0.0.1:8080/callback"
	DefaultLogLevel    = "info"
)

// ErrMissingLLMKey is returned when LLM_API_KEY is not set for the default
// hosted endpoint. Self-hosted endpoints may run without a key.
var ErrMissingLLMKey = errors.New("missing LLM_API_KEY environment variable")

// Spotify holds OAuth client settings.
type Spotify struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Market       string
}

// Log holds logger settings.
type Log struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Config stores the application configuration.
type Config struct {
	Addr    string
	Spotify Spotify
	LLM     llm.Config
	Log     Log

	DatabaseURL string // optional; sessions and history are in memory without it
	RedisURL    string // optional; genre cache

	BatchDir           string
	QueueSpacing       time.Duration
	ResolveFallThrough bool
	SecureCookies      bool
}

// Load reads a .env file from the working directory, if any, and then the
// environment. Variables already set are not overridden by the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Addr: getEnv("ADDR", DefaultAddr),
		Spotify: Spotify{
			ClientID:     os.Getenv("SPOTIFY_ID"),
			ClientSecret: os.Getenv("SPOTIFY_SECRET"),
			RedirectURI:  getEnv("SPOTIFY_REDIRECT_URI", DefaultRedirectURI),
			Market:       strings.ToUpper(os.Getenv("SPOTIFY_MARKET")),
		},
		LLM: llm.Config{
			BaseURL:     getEnv("LLM_API_BASE_URL", llm.DefaultBaseURL),
			APIKey:      os.Getenv("LLM_API_KEY"),
			Model:       getEnv("LLM_MODEL", llm.DefaultModel),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 4096),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
		},
		Log: Log{
			Level:      getEnv("LOG_LEVEL", DefaultLogLevel),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		},
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		BatchDir:           os.Getenv("BATCH_CACHE_DIR"),
		QueueSpacing:       getEnvDuration("QUEUE_SPACING", queue.DefaultSpacing),
		ResolveFallThrough: getEnvBool("RESOLVE_FALL_THROUGH", false),
		SecureCookies:      getEnvBool("SECURE_COOKIES", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return auth.ErrMissingCredentials
	}
	if c.LLM.APIKey == "" && strings.TrimRight(c.LLM.BaseURL, "/") == llm.DefaultBaseURL {
		return ErrMissingLLMKey
	}
	if c.QueueSpacing < 0 {
		return fmt.Errorf("QUEUE_SPACING must not be negative, got %s", c.QueueSpacing)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("250ms") or a bare number of milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
