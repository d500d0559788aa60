package config

import (
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	for k, v := range map[string]string{
		"PORT":                  "9090",
		"MAX_SESSIONS":          "25",
		"IDLE_TIMEOUT_MS":       "2000",
		"MAX_STEPS_PER_SESSION": "100",
		"SCREENCAST_QUALITY":    "50",
		"SCREENCAST_MAX_FPS":    "30",
		"TEMP_DIR":              "/tmp/browserctl-test",
	} {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected Port 9090, got %d", cfg.Port)
	}
	if cfg.MaxSessions != 25 {
		t.Errorf("expected MaxSessions 25, got %d", cfg.MaxSessions)
	}
	if cfg.IdleTimeout != 2*time.Second {
		t.Errorf("expected IdleTimeout 2s, got %v", cfg.IdleTimeout)
	}
	if cfg.MaxStepsPerSession != 100 {
		t.Errorf("expected MaxStepsPerSession 100, got %d", cfg.MaxStepsPerSession)
	}
	if cfg.ScreencastQuality != 50 {
		t.Errorf("expected ScreencastQuality 50, got %d", cfg.ScreencastQuality)
	}
	if cfg.ScreencastMaxFPS != 30 {
		t.Errorf("expected ScreencastMaxFPS 30, got %d", cfg.ScreencastMaxFPS)
	}
	if cfg.TempDir != "/tmp/browserctl-test" {
		t.Errorf("expected overridden TempDir, got %q", cfg.TempDir)
	}
}

func TestLoadIgnoresUnparsableIntEnv(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != Defaults().Port {
		t.Errorf("expected default Port to survive unparsable env, got %d", cfg.Port)
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := Defaults()
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for Port=0")
	}
}

func TestValidateRejectsOutOfRangeScreencastQuality(t *testing.T) {
	cfg := Defaults()
	cfg.ScreencastQuality = 101
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for ScreencastQuality=101")
	}
}
