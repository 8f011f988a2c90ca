package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"local"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Research metadata store (themes, claims)
	PostgresDSN         string        `env:"POSTGRES_DSN,required"`
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"1"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Vessel traffic database (read-only)
	TrafficDSN              string        `env:"TRAFFIC_DSN,required"`
	TrafficStatementTimeout time.Duration `env:"TRAFFIC_STATEMENT_TIMEOUT" envDefault:"30s"`
	TrafficMaxRows          int           `env:"TRAFFIC_MAX_ROWS" envDefault:"500"`
	TrafficMaxConnections   int32         `env:"TRAFFIC_MAX_CONNECTIONS" envDefault:"4"`

	// Text completion
	LLMAPIKey      string        `env:"LLM_API_KEY,required"`
	LLMBaseURL     string        `env:"LLM_BASE_URL"`
	LLMModel       string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMTemperature float32       `env:"LLM_TEMPERATURE" envDefault:"0.1"`
	LLMMaxTokens   int           `env:"LLM_MAX_TOKENS" envDefault:"4000"`
	LLMTimeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`
	LLMRateLimit   float64       `env:"LLM_RATE_LIMIT_RPS" envDefault:"1"`
	LLMCacheTTL    time.Duration `env:"LLM_CACHE_TTL" envDefault:"1h"`

	// Validation
	DefaultQuarter      string  `env:"DEFAULT_QUARTER" envDefault:"2025Q1"`
	ValidationThreshold float64 `env:"VALIDATION_THRESHOLD" envDefault:"0.7"`
	ValidationWorkers   int     `env:"VALIDATION_WORKERS" envDefault:"1"`
	MaxClaims           int     `env:"MAX_CLAIMS" envDefault:"10"`

	// Bulk revalidation of stale claims
	BulkWorkers   int           `env:"BULK_WORKERS" envDefault:"4"`
	BulkBatchSize int           `env:"BULK_BATCH_SIZE" envDefault:"200"`
	BulkInterval  time.Duration `env:"BULK_INTERVAL" envDefault:"1h"`
	BulkTimeout   time.Duration `env:"BULK_TIMEOUT" envDefault:"30m"`

	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	applyLegacyAliases()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	normalize(cfg)

	return cfg, nil
}

// legacyAliases maps environment names used by earlier deployments onto current keys.
var legacyAliases = []struct {
	current string
	legacy  string
}{
	{"LLM_API_KEY", "OPENAI_API_KEY"},
	{"LLM_MODEL", "OPENAI_MODEL"},
	{"LLM_TEMPERATURE", "OPENAI_TEMPERATURE"},
	{"LLM_MAX_TOKENS", "OPENAI_MAX_TOKENS"},
	{"DEFAULT_QUARTER", "CURRENT_QUARTER"},
}

// applyLegacyAliases copies legacy values into unset current keys before parsing.
func applyLegacyAliases() {
	for _, alias := range legacyAliases {
		if hasEnv(alias.current) {
			continue
		}

		val, ok := os.LookupEnv(alias.legacy)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}

		_ = os.Setenv(alias.current, strings.TrimSpace(val)) //nolint:errcheck // setenv only fails on invalid keys
	}
}

func normalize(cfg *Config) {
	cfg.DefaultQuarter = strings.ToUpper(strings.TrimSpace(cfg.DefaultQuarter))

	if cfg.ValidationWorkers < 1 {
		cfg.ValidationWorkers = 1
	}

	if cfg.BulkWorkers < 1 {
		cfg.BulkWorkers = 1
	}

	if cfg.MaxClaims < 1 {
		cfg.MaxClaims = defaultMaxClaims
	}

	if cfg.ValidationThreshold < 0 || cfg.ValidationThreshold > 1 {
		cfg.ValidationThreshold = defaultValidationThreshold
	}
}

const (
	defaultMaxClaims           = 10
	defaultValidationThreshold = 0.7
)

func hasEnv(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}

// ParseQuarter validates a YYYYQn token and returns its year and quarter.
func ParseQuarter(quarter string) (int, int, error) {
	q := strings.ToUpper(strings.TrimSpace(quarter))

	idx := strings.Index(q, "Q")
	if idx != 4 || len(q) != 6 {
		return 0, 0, fmt.Errorf("quarter %q must look like 2025Q1", quarter)
	}

	year, err := strconv.Atoi(q[:4])
	if err != nil {
		return 0, 0, fmt.Errorf("quarter %q has invalid year: %w", quarter, err)
	}

	n, err := strconv.Atoi(q[5:])
	if err != nil || n < 1 || n > 4 {
		return 0, 0, fmt.Errorf("quarter %q has invalid quarter number", quarter)
	}

	return year, n, nil
}
