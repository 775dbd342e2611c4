package config

import (
	"errors"
	"testing"
	"time"

	"github.com/justestif/go-spotify-playlist-curator/internal/auth"
	"github.com/justestif/go-spotify-playlist-curator/internal/llm"
	"github.com/justestif/go-spotify-playlist-curator/internal/queue"
)

// setRequired sets the minimum variables for a valid config.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("SPOTIFY_ID", "id")
	t.Setenv("SPOTIFY_SECRET", "secret")
	t.Setenv("LLM_API_KEY", "key")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)
	for _, key := range []string{"ADDR", "SPOTIFY_REDIRECT_URI", "LLM_API_BASE_URL", "LLM_MODEL", "QUEUE_SPACING", "RESOLVE_FALL_THROUGH"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, DefaultAddr)
	}
	if cfg.Spotify.RedirectURI != DefaultRedirectURI {
		t.Errorf("RedirectURI = %q", cfg.Spotify.RedirectURI)
	}
	if cfg.LLM.BaseURL != llm.DefaultBaseURL || cfg.LLM.Model != llm.DefaultModel {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.QueueSpacing != queue.DefaultSpacing {
		t.Errorf("QueueSpacing = %v, want %v", cfg.QueueSpacing, queue.DefaultSpacing)
	}
	if cfg.ResolveFallThrough {
		t.Error("ResolveFallThrough = true, want false")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ADDR", ":9000")
	t.Setenv("SPOTIFY_MARKET", "gb")
	t.Setenv("LLM_MAX_TOKENS", "1024")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("QUEUE_SPACING", "75")
	t.Setenv("RESOLVE_FALL_THROUGH", "true")
	t.Setenv("DATABASE_URL", "postgres://localhost/curator")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Spotify.Market != "GB" {
		t.Errorf("Market = %q, want GB", cfg.Spotify.Market)
	}
	if cfg.LLM.MaxTokens != 1024 || cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.QueueSpacing != 75*time.Millisecond {
		t.Errorf("QueueSpacing = %v, want 75ms", cfg.QueueSpacing)
	}
	if !cfg.ResolveFallThrough {
		t.Error("ResolveFallThrough = false, want true")
	}
	if cfg.DatabaseURL != "postgres://localhost/curator" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
}

func TestFromEnvValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{
			name:    "missing spotify id",
			env:     map[string]string{"SPOTIFY_ID": ""},
			wantErr: auth.ErrMissingCredentials,
		},
		{
			name:    "missing spotify secret",
			env:     map[string]string{"SPOTIFY_SECRET": ""},
			wantErr: auth.ErrMissingCredentials,
		},
		{
			name:    "missing llm key for hosted endpoint",
			env:     map[string]string{"LLM_API_KEY": ""},
			wantErr: ErrMissingLLMKey,
		},
		{
			name: "self-hosted endpoint without key",
			env:  map[string]string{"LLM_API_KEY": "", "LLM_API_BASE_URL": "http://localhost:11434/v1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("LLM_API_BASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("FromEnv() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("FromEnv() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"250ms", 250 * time.Millisecond},
		{"2s", 2 * time.Second},
		{"40", 40 * time.Millisecond},
		{"soon", time.Minute},
		{"", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := getEnvDuration("TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvBoolInvalidFallsBack(t *testing.T) {
	t.Setenv("TEST_BOOL", "maybe")
	if !getEnvBool("TEST_BOOL", true) {
		t.Error("getEnvBool() with invalid value should return fallback")
	}
}
