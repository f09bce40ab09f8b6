package config

import (
	"reflect"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"RELAY_BIND_ADDR", "RELAY_TARGET_PATTERNS", "RELAY_EVAL_TIMEOUT_MS", "CHROMIUM_CDP_PORT", "RELAY_NTFY_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:8190" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if got := cfg.CDPURL(); got != "http://127.0.0.1:9220" {
		t.Fatalf("CDPURL() = %q", got)
	}
	want := []string{"https://chatgpt.com/*", "https://chat.openai.com/*"}
	if !reflect.DeepEqual(cfg.TargetPatterns, want) {
		t.Fatalf("TargetPatterns = %v; want %v", cfg.TargetPatterns, want)
	}
	if cfg.NtfyURL != "" {
		t.Fatalf("NtfyURL = %q; want empty", cfg.NtfyURL)
	}
}

func TestLoadOverridesAndClamps(t *testing.T) {
	t.Setenv("RELAY_EVAL_TIMEOUT_MS", "10")
	t.Setenv("RELAY_LOAD_TIMEOUT_MS", "5")
	t.Setenv("RELAY_QUEUE_MAX_ATTEMPTS", "-3")
	t.Setenv("RELAY_TARGET_PATTERNS", " https://claude.ai/* , ,https://chatgpt.com/* ")
	t.Setenv("RELAY_LAUNCH_BROWSER", "true")
	t.Setenv("RELAY_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EvalTimeoutMS != 1000 || cfg.LoadTimeoutMS != 1000 {
		t.Fatalf("timeouts = %d/%d; want clamped to 1000", cfg.EvalTimeoutMS, cfg.LoadTimeoutMS)
	}
	if cfg.QueueMaxAttempts != 0 {
		t.Fatalf("QueueMaxAttempts = %d; want 0", cfg.QueueMaxAttempts)
	}
	want := []string{"https://claude.ai/*", "https://chatgpt.com/*"}
	if !reflect.DeepEqual(cfg.TargetPatterns, want) {
		t.Fatalf("TargetPatterns = %v; want %v", cfg.TargetPatterns, want)
	}
	if !cfg.LaunchBrowser || cfg.LogLevel != "debug" {
		t.Fatalf("LaunchBrowser=%v LogLevel=%q", cfg.LaunchBrowser, cfg.LogLevel)
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("CHROMIUM_CDP_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil; want invalid port error")
	}
}

func TestGetEnvHelpersIgnoreGarbage(t *testing.T) {
	t.Setenv("RELAY_TEST_INT", "abc")
	t.Setenv("RELAY_TEST_BOOL", "maybe")
	if got := getEnvIntOrDefault("RELAY_TEST_INT", 7); got != 7 {
		t.Fatalf("getEnvIntOrDefault = %d; want 7", got)
	}
	if got := getEnvBoolOrDefault("RELAY_TEST_BOOL", true); !got {
		t.Fatal("getEnvBoolOrDefault = false; want default true")
	}
}
