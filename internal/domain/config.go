package domain

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the complete TruthLens configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Whitelist is the set of known-safe marketplace domains.
	Whitelist []string `json:"whitelist"`

	// Collaborators
	Sentiment SentimentConfig `json:"sentiment"`
	Narrative NarrativeConfig `json:"narrative"`

	// Calibration floors applied after scoring
	Calibration []CalibrationRule `json:"calibration"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Worker     WorkerConfig     `json:"worker"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// SentimentConfig configures the model-based sentiment estimator.
// An empty ModelURL selects the lexicon estimator only.
type SentimentConfig struct {
	ModelURL string        `json:"modelUrl"`
	Timeout  time.Duration `json:"timeout"`
}

// NarrativeConfig configures the text-generation collaborator.
type NarrativeConfig struct {
	Provider string `json:"provider"` // gemini, openai, none

	GeminiAPIKey string `json:"-"`
	GeminiModel  string `json:"geminiModel"`

	OpenAIAPIKey  string `json:"-"`
	OpenAIModel   string `json:"openaiModel"`
	OpenAIBaseURL string `json:"openaiBaseUrl"`

	Timeout time.Duration `json:"timeout"`
}

// WorkerConfig controls the async analysis worker.
type WorkerConfig struct {
	Enabled   bool     `json:"enabled"`
	TenantIDs []string `json:"tenantIds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// DefaultWhitelist is the built-in set of known marketplaces.
func DefaultWhitelist() []string {
	return []string{
		"amazon.com",
		"flipkart.com",
		"ebay.com",
		"walmart.com",
		"amazon.in",
		"meesho.com",
	}
}

// DefaultConfig returns a self-contained configuration: lexicon sentiment,
// no narrative provider, in-memory cache, channel bus, no persistence.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8000,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Whitelist: DefaultWhitelist(),
		Sentiment: SentimentConfig{
			Timeout: 10 * time.Second,
		},
		Narrative: NarrativeConfig{
			Provider:    "none",
			GeminiModel: "gemini-2.5-flash",
			OpenAIModel: "gpt-4o-mini",
			Timeout:     20 * time.Second,
		},
		Calibration: DefaultCalibrationRules(),
		Repository: RepositoryConfig{
			Driver:     "none",
			SQLitePath: "./truthlens.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
			NarrativeTTL: 6 * time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "truthlens",
		},
	}
}

// LoadConfig builds a configuration from DefaultConfig, a .env file if one
// exists, and the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env file not loaded", "error", err)
	}

	cfg := DefaultConfig()
	cfg.applyEnv(os.Getenv)
	return cfg
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			} else {
				slog.Warn("ignoring non-numeric setting", "key", key, "value", v)
			}
		}
	}
	millis := func(key string, dst *time.Duration) {
		var ms int
		num(key, &ms)
		if ms > 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
	flag := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("TRUTHLENS_HOST", &c.Server.Host)
	num("TRUTHLENS_PORT", &c.Server.Port)

	debug := false
	flag("TRUTHLENS_DEBUG", &debug)
	if debug {
		c.Logging.Level = "debug"
	}
	str("TRUTHLENS_LOG_LEVEL", &c.Logging.Level)

	if list := splitList(getenv("TRUTHLENS_WHITELIST")); len(list) > 0 {
		c.Whitelist = list
	}

	str("SENTIMENT_MODEL_URL", &c.Sentiment.ModelURL)
	millis("SENTIMENT_TIMEOUT_MS", &c.Sentiment.Timeout)

	str("GEMINI_API_KEY", &c.Narrative.GeminiAPIKey)
	str("GEMINI_MODEL", &c.Narrative.GeminiModel)
	str("OPENAI_API_KEY", &c.Narrative.OpenAIAPIKey)
	str("OPENAI_MODEL", &c.Narrative.OpenAIModel)
	str("OPENAI_BASE_URL", &c.Narrative.OpenAIBaseURL)
	millis("NARRATIVE_TIMEOUT_MS", &c.Narrative.Timeout)
	// A Gemini key alone is enough to turn narratives on.
	if c.Narrative.GeminiAPIKey != "" {
		c.Narrative.Provider = "gemini"
	}
	str("NARRATIVE_PROVIDER", &c.Narrative.Provider)

	str("TRUTHLENS_REPOSITORY", &c.Repository.Driver)
	str("TRUTHLENS_SQLITE_PATH", &c.Repository.SQLitePath)
	str("POSTGRES_HOST", &c.Repository.PostgresHost)
	num("POSTGRES_PORT", &c.Repository.PostgresPort)
	str("POSTGRES_USER", &c.Repository.PostgresUser)
	str("POSTGRES_PASSWORD", &c.Repository.PostgresPassword)
	str("POSTGRES_DB", &c.Repository.PostgresDB)
	str("POSTGRES_SSLMODE", &c.Repository.PostgresSSLMode)

	str("TRUTHLENS_CACHE", &c.Cache.Type)
	str("REDIS_ADDR", &c.Cache.RedisAddr)
	str("REDIS_PASSWORD", &c.Cache.RedisPassword)
	num("REDIS_DB", &c.Cache.RedisDB)
	flag("REDIS_TWO_PHASE", &c.Cache.EnableTwoPhase)

	str("TRUTHLENS_EVENTBUS", &c.EventBus.Type)
	str("NATS_URL", &c.EventBus.NATSUrl)
	str("NATS_TOKEN", &c.EventBus.NATSToken)
	str("NATS_QUEUE_GROUP", &c.EventBus.NATSQueueGroup)

	flag("TRUTHLENS_ASYNC_WORKER", &c.Worker.Enabled)
	if list := splitList(getenv("TRUTHLENS_TENANTS")); len(list) > 0 {
		c.Worker.TenantIDs = list
	}

	flag("TRUTHLENS_TRACING", &c.Tracing.Enabled)
}

// LogLevel maps the configured level name to a slog level.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
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

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
