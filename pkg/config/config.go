// Package config loads gateway settings from defaults, an optional .env file
// and the process environment.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the top-level gateway configuration.
type Config struct {
	AppName     string `env:"APP_NAME"`
	AppVersion  string `env:"APP_VERSION"`
	Environment string `env:"APP_ENV"`
	Debug       bool   `env:"DEBUG"`

	APIPrefix string `env:"API_V1_PREFIX"`
	Host      string `env:"HOST"`
	Port      int    `env:"PORT"`

	DataDir     string `env:"DATA_DIR"`
	CatalogFile string `env:"CATALOG_FILE"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	CORSOrigins []string `env:"CORS_ORIGINS"`

	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST"`

	SecretKey string `env:"SECRET_KEY"`

	Chat    ChatSettings
	Keys    ProviderKeys
	Tracing TracingSettings
}

// ChatSettings groups the CHAT_ prefixed knobs of the chat pipeline.
type ChatSettings struct {
	MaxMessages      int           `env:"CHAT_MAX_MESSAGES"`
	MaxMessageLength int           `env:"CHAT_MAX_MESSAGE_LENGTH"`
	MinTemperature   float64       `env:"CHAT_MIN_TEMPERATURE"`
	MaxTemperature   float64       `env:"CHAT_MAX_TEMPERATURE"`
	ProviderTimeout  time.Duration `env:"CHAT_PROVIDER_TIMEOUT"`
	DatabaseTimeout  time.Duration `env:"CHAT_DATABASE_TIMEOUT"`
	EnableCaching    bool          `env:"CHAT_ENABLE_CACHING"`
	CacheTTL         time.Duration `env:"CHAT_CACHE_TTL"`
}

// ProviderKeys holds upstream credentials.
type ProviderKeys struct {
	OpenAI           string `env:"OPENAI_API_KEY"`
	Gemini           string `env:"GEMINI_API_KEY"`
	Anthropic        string `env:"ANTHROPIC_API_KEY"`
	HuggingFace      string `env:"HUGGINGFACE_API_KEY"`
	Cohere           string `env:"COHERE_API_KEY"`
	AzureOpenAIKey   string `env:"AZURE_OPENAI_KEY"`
	AzureOpenAIURL   string `env:"AZURE_OPENAI_ENDPOINT"`
	OllamaBaseURL    string `env:"OLLAMA_BASE_URL"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	GeminiBaseURL    string `env:"GEMINI_BASE_URL"`
	MockLatencyMinMS int    `env:"MOCK_LATENCY_MIN_MS"`
	MockLatencyMaxMS int    `env:"MOCK_LATENCY_MAX_MS"`
}

// TracingSettings configures the OTLP exporter.
type TracingSettings struct {
	Enabled    bool    `env:"OTEL_ENABLED"`
	Endpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SampleRate float64 `env:"OTEL_SAMPLE_RATE"`
}

// Load builds the configuration: defaults, then the env file (if present),
// then environment variables, then validation.
func Load(envFile string) (*Config, error) {
	cfg := DefaultConfig()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		AppName:        "AI Gateway Framework",
		AppVersion:     "0.1.0",
		Environment:    "development",
		Debug:          false,
		APIPrefix:      "/api/v1",
		Host:           "0.0.0.0",
		Port:           8000,
		DataDir:        "./data",
		LogLevel:       "info",
		LogFormat:      "console",
		CORSOrigins:    []string{"http://localhost:3000", "http://localhost:8000"},
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		RateLimitRPS:   10,
		RateLimitBurst: 20,
		Chat: ChatSettings{
			MaxMessages:      100,
			MaxMessageLength: 10000,
			MinTemperature:   0.0,
			MaxTemperature:   2.0,
			ProviderTimeout:  30 * time.Second,
			DatabaseTimeout:  10 * time.Second,
			EnableCaching:    true,
			CacheTTL:         300 * time.Second,
		},
		Keys: ProviderKeys{
			OllamaBaseURL:    "http://localhost:11434",
			MockLatencyMinMS: 100,
			MockLatencyMaxMS: 500,
		},
		Tracing: TracingSettings{
			Enabled:    false,
			Endpoint:   "http://localhost:4318/v1/traces",
			SampleRate: 1.0,
		},
	}
}

// envLoader collects the first parse failure so loadFromEnv stays linear.
type envLoader struct {
	err error
}

func (l *envLoader) str(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (l *envLoader) integer(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" || l.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = n
}

func (l *envLoader) float(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" || l.err != nil {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = f
}

func (l *envLoader) boolean(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" || l.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = b
}

// duration accepts either a Go duration ("45s") or a bare number of seconds.
func (l *envLoader) duration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" || l.err != nil {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = d
}

func loadFromEnv(cfg *Config) error {
	l := &envLoader{}

	l.str("APP_NAME", &cfg.AppName)
	l.str("APP_VERSION", &cfg.AppVersion)
	l.str("APP_ENV", &cfg.Environment)
	l.boolean("DEBUG", &cfg.Debug)
	l.boolean("APP_DEBUG", &cfg.Debug)
	l.str("API_V1_PREFIX", &cfg.APIPrefix)
	l.str("HOST", &cfg.Host)
	l.integer("PORT", &cfg.Port)
	l.str("DATA_DIR", &cfg.DataDir)
	l.str("CATALOG_FILE", &cfg.CatalogFile)
	l.str("LOG_LEVEL", &cfg.LogLevel)
	l.str("LOG_FORMAT", &cfg.LogFormat)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
	l.duration("HTTP_READ_TIMEOUT", &cfg.ReadTimeout)
	l.duration("HTTP_WRITE_TIMEOUT", &cfg.WriteTimeout)
	l.duration("HTTP_IDLE_TIMEOUT", &cfg.IdleTimeout)
	l.float("RATE_LIMIT_RPS", &cfg.RateLimitRPS)
	l.integer("RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	l.str("SECRET_KEY", &cfg.SecretKey)

	l.integer("CHAT_MAX_MESSAGES", &cfg.Chat.MaxMessages)
	l.integer("CHAT_MAX_MESSAGE_LENGTH", &cfg.Chat.MaxMessageLength)
	l.float("CHAT_MIN_TEMPERATURE", &cfg.Chat.MinTemperature)
	l.float("CHAT_MAX_TEMPERATURE", &cfg.Chat.MaxTemperature)
	l.duration("CHAT_PROVIDER_TIMEOUT", &cfg.Chat.ProviderTimeout)
	l.duration("CHAT_DATABASE_TIMEOUT", &cfg.Chat.DatabaseTimeout)
	l.boolean("CHAT_ENABLE_CACHING", &cfg.Chat.EnableCaching)
	l.duration("CHAT_CACHE_TTL", &cfg.Chat.CacheTTL)

	l.str("OPENAI_API_KEY", &cfg.Keys.OpenAI)
	l.str("GEMINI_API_KEY", &cfg.Keys.Gemini)
	l.str("ANTHROPIC_API_KEY", &cfg.Keys.Anthropic)
	l.str("HUGGINGFACE_API_KEY", &cfg.Keys.HuggingFace)
	l.str("COHERE_API_KEY", &cfg.Keys.Cohere)
	l.str("AZURE_OPENAI_KEY", &cfg.Keys.AzureOpenAIKey)
	l.str("AZURE_OPENAI_ENDPOINT", &cfg.Keys.AzureOpenAIURL)
	l.str("OLLAMA_BASE_URL", &cfg.Keys.OllamaBaseURL)
	l.str("OPENAI_BASE_URL", &cfg.Keys.OpenAIBaseURL)
	l.str("GEMINI_BASE_URL", &cfg.Keys.GeminiBaseURL)
	l.integer("MOCK_LATENCY_MIN_MS", &cfg.Keys.MockLatencyMinMS)
	l.integer("MOCK_LATENCY_MAX_MS", &cfg.Keys.MockLatencyMaxMS)

	l.boolean("OTEL_ENABLED", &cfg.Tracing.Enabled)
	l.str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	l.float("OTEL_SAMPLE_RATE", &cfg.Tracing.SampleRate)

	return l.err
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	validLogLevels := []string{"debug", "info", "warn", "error"}
	valid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Chat.MaxMessages <= 0 {
		return fmt.Errorf("chat max_messages must be positive")
	}
	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("chat max_message_length must be positive")
	}
	if c.Chat.MinTemperature < 0 || c.Chat.MinTemperature > c.Chat.MaxTemperature {
		return fmt.Errorf("chat temperature bounds are invalid: %.2f..%.2f", c.Chat.MinTemperature, c.Chat.MaxTemperature)
	}
	if c.Chat.ProviderTimeout <= 0 || c.Chat.DatabaseTimeout <= 0 {
		return fmt.Errorf("chat timeouts must be positive")
	}
	if c.Chat.EnableCaching && c.Chat.CacheTTL <= 0 {
		return fmt.Errorf("chat cache_ttl must be positive when caching is enabled")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("otel sample rate must be between 0 and 1")
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StorePath is the bolt database file inside DataDir.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "gateway.db")
}

// APIKeys maps provider names, as stored in the catalog, to credentials.
func (c *Config) APIKeys() map[string]string {
	openAI := c.Keys.OpenAI
	if openAI == "" {
		openAI = c.Keys.AzureOpenAIKey
	}
	return map[string]string{
		"OpenAI":        openAI,
		"Google Gemini": c.Keys.Gemini,
		"Anthropic":     c.Keys.Anthropic,
		"HuggingFace":   c.Keys.HuggingFace,
		"Cohere":        c.Keys.Cohere,
	}
}

// IsProduction reports whether the gateway runs in a production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
