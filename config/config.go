package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Sync      SyncConfig
	Extractor ExtractorConfig
	Detector  DetectorConfig
	Store     StoreConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "127.0.0.1"
	Port int    // default: 8787
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser that hosts the controlled tab.
type BrowserConfig struct {
	// Enabled toggles launching a browser. With it off the service only
	// accepts captures posted by an external content script.
	Enabled bool // default: true

	// Headless controls whether the browser runs headless. The user has to
	// log in to the loyalty site, so the default is a visible window.
	Headless bool // default: false

	// ControlURL attaches to an already running Chrome instead of launching one.
	ControlURL string

	// UserDataDir keeps cookies between runs so the session survives restarts.
	UserDataDir string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all browser traffic.
	Proxy string

	// Stealth injects the go-rod/stealth evasions into every tab.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// MutationPollInterval is how often the DOM fingerprint is sampled to
	// detect page mutations for the session detector.
	MutationPollInterval time.Duration // default: 500ms
}

// SyncConfig holds the orchestrator timings.
type SyncConfig struct {
	// StepTimeout is how long a step may wait for its capture.
	StepTimeout time.Duration // default: 30s

	// TimeoutGrace is the pause between a timeout warning and the forced advance.
	TimeoutGrace time.Duration // default: 1s

	// CompletionDelay keeps a step's completion message visible before the
	// tab navigates again.
	CompletionDelay time.Duration // default: 1.5s

	// ErrorDelay is the pause after a navigation error before advancing.
	ErrorDelay time.Duration // default: 1s
}

// ExtractorConfig controls the DOM extraction heuristics.
type ExtractorConfig struct {
	// ReadyPolls bounds the number of readiness probes before extracting anyway.
	ReadyPolls int // default: 10

	// ReadyInterval is the delay between readiness probes.
	ReadyInterval time.Duration // default: 500ms

	// VocabularyFile is an optional TOML file extending the built-in vocabulary.
	VocabularyFile string
}

// DetectorConfig controls the session detector watcher.
type DetectorConfig struct {
	Lifetime time.Duration // default: 15s
	Interval time.Duration // default: 3s
}

// StoreConfig controls persistence of the sync state mirror.
type StoreConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string // default: "sqlite"

	// DataDir is where the sqlite database lives. Empty means ~/.offersync.
	DataDir string
}

// CacheConfig controls the extraction result cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached extraction results.
	MaxEntries int // default: 256

	// TTL is how long a cached result stays valid.
	TTL time.Duration // default: 1h
}

// WebhookConfig controls delivery of completed runs to a backend relay.
type WebhookConfig struct {
	URL    string
	Secret string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 20

	// Burst is the maximum burst size per API key.
	Burst int // default: 40
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("OFFERSYNC_HOST", "127.0.0.1"),
			Port: envIntOr("OFFERSYNC_PORT", 8787),
			Mode: envOr("OFFERSYNC_MODE", "release"),
		},
		Browser: BrowserConfig{
			Enabled:     envBoolOr("OFFERSYNC_BROWSER", true),
			Headless:    envBoolOr("OFFERSYNC_HEADLESS", false),
			ControlURL:  os.Getenv("OFFERSYNC_CDP_URL"),
			UserDataDir: os.Getenv("OFFERSYNC_USER_DATA_DIR"),
			NoSandbox:   envBoolOr("OFFERSYNC_NO_SANDBOX", false),
			BrowserBin:  os.Getenv("OFFERSYNC_BROWSER_BIN"),
			Proxy:       os.Getenv("OFFERSYNC_PROXY"),
			Stealth:     envBoolOr("OFFERSYNC_STEALTH", true),
			BlockedResourceTypes: envSliceOr("OFFERSYNC_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			MutationPollInterval: envDurationOr("OFFERSYNC_MUTATION_POLL", 500*time.Millisecond),
		},
		Sync: SyncConfig{
			StepTimeout:     envDurationOr("OFFERSYNC_STEP_TIMEOUT", 30*time.Second),
			TimeoutGrace:    envDurationOr("OFFERSYNC_TIMEOUT_GRACE", 1*time.Second),
			CompletionDelay: envDurationOr("OFFERSYNC_COMPLETION_DELAY", 1500*time.Millisecond),
			ErrorDelay:      envDurationOr("OFFERSYNC_ERROR_DELAY", 1*time.Second),
		},
		Extractor: ExtractorConfig{
			ReadyPolls:     envIntOr("OFFERSYNC_READY_POLLS", 10),
			ReadyInterval:  envDurationOr("OFFERSYNC_READY_INTERVAL", 500*time.Millisecond),
			VocabularyFile: os.Getenv("OFFERSYNC_VOCABULARY"),
		},
		Detector: DetectorConfig{
			Lifetime: envDurationOr("OFFERSYNC_DETECTOR_LIFETIME", 15*time.Second),
			Interval: envDurationOr("OFFERSYNC_DETECTOR_INTERVAL", 3*time.Second),
		},
		Store: StoreConfig{
			Driver:  envOr("OFFERSYNC_STORE", "sqlite"),
			DataDir: os.Getenv("OFFERSYNC_DATA_DIR"),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("OFFERSYNC_CACHE_MAX_ENTRIES", 256),
			TTL:        envDurationOr("OFFERSYNC_CACHE_TTL", time.Hour),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("OFFERSYNC_WEBHOOK_URL"),
			Secret: os.Getenv("OFFERSYNC_WEBHOOK_SECRET"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("OFFERSYNC_AUTH_ENABLED", false),
			APIKeys: envSliceOr("OFFERSYNC_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("OFFERSYNC_RATE_RPS", 20.0),
			Burst:             envIntOr("OFFERSYNC_RATE_BURST", 40),
		},
		Log: LogConfig{
			Level:  envOr("OFFERSYNC_LOG_LEVEL", "info"),
			Format: envOr("OFFERSYNC_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
