// Package config builds the process-wide configuration record once at
// startup from the environment variables in spec §6. Grounded on
// cmd/gasoline-cmd/config/loader.go's cascade shape (Defaults() then
// overrides then Validate()), collapsed from that CLI's four-tier
// project/global/env/flag cascade to a single env-var-only tier, since
// this is a long-running server process reloaded only at start (spec §6:
// "all are reloaded only at process start"), not a CLI invoked fresh per
// command.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the plain configuration record passed by value to every
// component that needs a slice of it (spec §9: "no mutable globals").
type Config struct {
	Port int

	MaxSessions        int
	IdleTimeout         time.Duration
	MaxStepsPerSession  int

	ViewportWidth  int
	ViewportHeight int

	ScreencastQuality int
	ScreencastMaxFPS  int

	SessionTokenBytes int
	TempDir           string
}

// Defaults returns the spec's documented defaults (§6, §4.2, §4.4).
func Defaults() Config {
	return Config{
		Port:               8080,
		MaxSessions:        10,
		IdleTimeout:        30 * time.Minute,
		MaxStepsPerSession: 500,
		ViewportWidth:      1280,
		ViewportHeight:     720,
		ScreencastQuality:  80,
		ScreencastMaxFPS:   15,
		SessionTokenBytes:  32,
		TempDir:            os.TempDir(),
	}
}

// Load builds the final Config: defaults overridden by any of the
// environment variables named in spec §6, then validated.
func Load() (Config, error) {
	cfg := Defaults()
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := envInt("PORT"); v != nil {
		cfg.Port = *v
	}
	if v := envInt("MAX_SESSIONS"); v != nil {
		cfg.MaxSessions = *v
	}
	if v := envInt("IDLE_TIMEOUT_MS"); v != nil {
		cfg.IdleTimeout = time.Duration(*v) * time.Millisecond
	}
	if v := envInt("MAX_STEPS_PER_SESSION"); v != nil {
		cfg.MaxStepsPerSession = *v
	}
	if v := envInt("BROWSER_VIEWPORT_WIDTH"); v != nil {
		cfg.ViewportWidth = *v
	}
	if v := envInt("BROWSER_VIEWPORT_HEIGHT"); v != nil {
		cfg.ViewportHeight = *v
	}
	if v := envInt("SCREENCAST_QUALITY"); v != nil {
		cfg.ScreencastQuality = *v
	}
	if v := envInt("SCREENCAST_MAX_FPS"); v != nil {
		cfg.ScreencastMaxFPS = *v
	}
	if v := envInt("SESSION_TOKEN_BYTES"); v != nil {
		cfg.SessionTokenBytes = *v
	}
	if v := os.Getenv("TEMP_DIR"); v != "" {
		cfg.TempDir = v
	}
}

func envInt(name string) *int {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

// Validate checks that configuration values are within acceptable ranges.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be 1-65535, got %d", c.Port)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("MAX_SESSIONS must be >= 1, got %d", c.MaxSessions)
	}
	if c.MaxStepsPerSession < 1 {
		return fmt.Errorf("MAX_STEPS_PER_SESSION must be >= 1, got %d", c.MaxStepsPerSession)
	}
	if c.ScreencastQuality < 0 || c.ScreencastQuality > 100 {
		return fmt.Errorf("SCREENCAST_QUALITY must be 0-100, got %d", c.ScreencastQuality)
	}
	if c.ScreencastMaxFPS < 1 {
		return fmt.Errorf("SCREENCAST_MAX_FPS must be >= 1, got %d", c.ScreencastMaxFPS)
	}
	if c.ViewportWidth < 1 || c.ViewportHeight < 1 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	if c.SessionTokenBytes < 16 {
		return fmt.Errorf("SESSION_TOKEN_BYTES must be >= 16, got %d", c.SessionTokenBytes)
	}
	return nil
}
