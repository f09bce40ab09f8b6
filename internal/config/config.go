package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the daemon configuration.
type Config struct {
	// CDP connection settings
	CDPAddress    string
	CDPPort       int
	EvalTimeoutMS int

	// Control API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	LogLevel string
	LogFile  string

	// Delivery
	QueueDir         string
	SettingsFile     string
	TargetPatterns   []string
	LoadTimeoutMS    int
	QueueMaxAttempts int
	CaptureMaxWidth  int
	NtfyURL          string
	HistoryDir       string

	// Optional browser launch
	LaunchBrowser bool
	ProfileDir    string
	BrowserLogDir string
	CrashDumpDir  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:       getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:          getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		EvalTimeoutMS:    getEnvIntOrDefault("RELAY_EVAL_TIMEOUT_MS", 5000),
		BindAddr:         getEnvOrDefault("RELAY_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:   getEnvListOrDefault("RELAY_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192", "127.0.0.1:8193"}),
		PortAutoFallback: getEnvBoolOrDefault("RELAY_PORT_AUTO_FALLBACK", true),
		LogLevel:         strings.ToLower(getEnvOrDefault("RELAY_LOG_LEVEL", "info")),
		LogFile:          getEnvOrDefault("RELAY_LOG_FILE", "logs/chatrelay.log"),
		QueueDir:         getEnvOrDefault("RELAY_QUEUE_DIR", "./queue"),
		SettingsFile:     getEnvOrDefault("RELAY_SETTINGS_FILE", "./settings.yaml"),
		TargetPatterns:   getEnvListOrDefault("RELAY_TARGET_PATTERNS", []string{"https://chatgpt.com/*", "https://chat.openai.com/*"}),
		LoadTimeoutMS:    getEnvIntOrDefault("RELAY_LOAD_TIMEOUT_MS", 20000),
		QueueMaxAttempts: getEnvIntOrDefault("RELAY_QUEUE_MAX_ATTEMPTS", 5),
		CaptureMaxWidth:  getEnvIntOrDefault("RELAY_CAPTURE_MAX_WIDTH", 0),
		NtfyURL:          getEnvOrDefault("RELAY_NTFY_URL", ""),
		HistoryDir:       getEnvOrDefault("RELAY_HISTORY_DIR", "./history"),
		LaunchBrowser:    getEnvBoolOrDefault("RELAY_LAUNCH_BROWSER", false),
		ProfileDir:       getEnvOrDefault("RELAY_PROFILE_DIR", "./browser_profile"),
		BrowserLogDir:    getEnvOrDefault("RELAY_BROWSER_LOG_DIR", "./logs/browser"),
		CrashDumpDir:     getEnvOrDefault("RELAY_CRASH_DUMP_DIR", "./logs/crash"),
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	if cfg.LoadTimeoutMS < 1000 {
		cfg.LoadTimeoutMS = 1000
	}
	if cfg.QueueMaxAttempts < 0 {
		cfg.QueueMaxAttempts = 0
	}
	if cfg.CaptureMaxWidth < 0 {
		cfg.CaptureMaxWidth = 0
	}
	if cfg.CDPPort <= 0 || cfg.CDPPort > 65535 {
		return nil, fmt.Errorf("invalid CHROMIUM_CDP_PORT: %d", cfg.CDPPort)
	}

	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint used by the raw client and the
// chromedp remote allocator.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma-separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
