// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the tools server configuration.
type Config struct {
	Port     string
	GRPCPort string
	LogLevel string

	StateDir string
	DBPath   string

	Model           ModelConfig
	Auth            AuthConfig
	Workday         WorkdayConfig
	Letter          LetterConfig
	Docs            DocsConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig

	MaxIterations      int
	SessionTTL         time.Duration
	LedgerRetention    time.Duration
	SweepInterval      time.Duration
	ResetAuthOnStartup bool
	MaxRequestBodySize int64
	HealthCheckTimeout time.Duration
	AllowedOrigins     []string
	IsDev              bool
}

// ModelConfig selects the reasoning service backend.
type ModelConfig struct {
	Name        string
	APIKey      string
	Project     string
	Location    string
	Temperature float64
}

// UseVertex reports whether the Vertex AI backend should be used.
func (m ModelConfig) UseVertex() bool {
	return m.APIKey == "" && m.Project != ""
}

// AuthConfig controls the interactive browser flow and the credential snapshot.
type AuthConfig struct {
	Headless     bool
	BrowserBin   string
	Timeout      time.Duration
	PollInterval time.Duration
	SnapshotPath string
}

// LetterConfig feeds the employment verification letter template.
type LetterConfig struct {
	TemplatePath   string
	SignatureName  string
	SignatureTitle string
	CompanyName    string
}

// DocsConfig bounds the in-memory document cache.
type DocsConfig struct {
	MaxBytes int64
	TTL      time.Duration
}

// RateLimitConfig throttles chat requests per device.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables and the optional
// Workday settings file.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	stateDir := getEnv("ASKHR_STATE_DIR", "./data")

	cfg := &Config{
		Port:     getEnv("PORT", "8081"),
		GRPCPort: getEnv("GRPC_PORT", "50061"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		StateDir: stateDir,
		DBPath:   getEnv("ASKHR_DB_PATH", filepath.Join(stateDir, "askhr.db")),
		Model: ModelConfig{
			Name:        getEnv("ASKHR_MODEL", "gemini-2.5-flash"),
			APIKey:      getEnv("GOOGLE_API_KEY", getEnv("GEMINI_API_KEY", "")),
			Project:     getEnv("GOOGLE_CLOUD_PROJECT", ""),
			Location:    getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
			Temperature: getEnvFloat("ASKHR_TEMPERATURE", 0.2),
		},
		Auth: AuthConfig{
			Headless:     getEnvBool("ASKHR_HEADLESS", true),
			BrowserBin:   getEnv("ASKHR_BROWSER_BIN", ""),
			Timeout:      getEnvDuration("ASKHR_SELENIUM_TIMEOUT", getEnvDuration("ASKHR_AUTH_TIMEOUT", 300*time.Second)),
			PollInterval: getEnvDuration("ASKHR_AUTH_POLL_INTERVAL", 500*time.Millisecond),
			SnapshotPath: getEnv("WORKDAY_TOKEN_SNAPSHOT", filepath.Join(stateDir, "workday_token.json")),
		},
		Letter: LetterConfig{
			TemplatePath:   getEnv("HR_LETTER_TEMPLATE", ""),
			SignatureName:  getEnv("HR_SIGNATURE_NAME", "HR Operations"),
			SignatureTitle: getEnv("HR_SIGNATURE_TITLE", "Human Resources"),
			CompanyName:    getEnv("HR_COMPANY_NAME", ""),
		},
		Docs: DocsConfig{
			MaxBytes: int64(getEnvInt("ASKHR_DOC_CACHE_BYTES", 32<<20)),
			TTL:      getEnvDuration("ASKHR_DOC_TTL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", filepath.Join(stateDir, "logs", "conversations")),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", filepath.Join(stateDir, "logs", "conversations", "all.ndjson")),
			QueueSize:     queueSize,
		},
		MaxIterations:      getEnvInt("ASKHR_MAX_ITERATIONS", 6),
		SessionTTL:         getEnvDuration("ASKHR_SESSION_TTL", 2*time.Hour),
		LedgerRetention:    getEnvDuration("ASKHR_LEDGER_RETENTION", 90*24*time.Hour),
		SweepInterval:      getEnvDuration("ASKHR_SWEEP_INTERVAL", 5*time.Minute),
		ResetAuthOnStartup: getEnvBool("ASKHR_RESET_AUTH_ON_STARTUP", true),
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
		HealthCheckTimeout: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		AllowedOrigins:     splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		IsDev:              getEnv("APP_ENV", "") == "development",
	}

	wd, err := LoadWorkday(getEnv("WORKDAY_CONFIG_PATH", ""))
	if err != nil {
		return nil, err
	}
	cfg.Workday = wd

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("ASKHR_DB_PATH cannot be empty")
	}
	if c.Auth.SnapshotPath == "" {
		return fmt.Errorf("WORKDAY_TOKEN_SNAPSHOT cannot be empty")
	}
	if c.Auth.Timeout <= 0 {
		return fmt.Errorf("ASKHR_AUTH_TIMEOUT must be > 0")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("ASKHR_MAX_ITERATIONS must be > 0")
	}
	if c.Docs.MaxBytes <= 0 {
		return fmt.Errorf("ASKHR_DOC_CACHE_BYTES must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("rate limit settings must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	if c.Model.APIKey == "" && c.Model.Project == "" {
		return fmt.Errorf("either GOOGLE_API_KEY or GOOGLE_CLOUD_PROJECT must be set")
	}
	return c.Workday.Validate()
}

// SlogLevel maps LOG_LEVEL onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	return ParseLevel(c.LogLevel)
}

// ParseLevel maps a textual level onto slog, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GatewayConfig holds the front-door service configuration.
type GatewayConfig struct {
	Port            string
	LogLevel        string
	ToolsURL        string
	ToolsTimeout    time.Duration
	ToolsHealthAddr string
	SnapshotPath    string
	LoginPoll       time.Duration
	RetryPause      time.Duration
	MaxRequestBody  int64
	AllowedOrigins  []string
}

// LoadGateway reads the gateway configuration from environment variables.
func LoadGateway() (*GatewayConfig, error) {
	cfg := &GatewayConfig{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ToolsURL:        strings.TrimRight(getEnv("WORKDAY_TOOLS_URL", "http://localhost:8081"), "/"),
		ToolsTimeout:    getEnvDuration("WORKDAY_TOOLS_TIMEOUT", 30*time.Second),
		ToolsHealthAddr: getEnv("WORKDAY_TOOLS_HEALTH_ADDR", ""),
		SnapshotPath:    getEnv("WORKDAY_TOKEN_SNAPSHOT", ""),
		LoginPoll:       getEnvDuration("WORKDAY_LOGIN_POLL_INTERVAL", 2*time.Second),
		RetryPause:      getEnvDuration("WORKDAY_RETRY_PAUSE", 2*time.Second),
		MaxRequestBody:  int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
	if cfg.ToolsURL == "" {
		return nil, fmt.Errorf("invalid configuration: WORKDAY_TOOLS_URL cannot be empty")
	}
	if cfg.ToolsTimeout <= 0 {
		return nil, fmt.Errorf("invalid configuration: WORKDAY_TOOLS_TIMEOUT must be > 0")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
