package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rl-arena/doubles-rating/internal/models"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Storage
	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	// Redis (empty disables the append lock and the shared rate limiter)
	RedisURL      string
	AppendLockTTL time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Requests per minute per IP on match submission
	SubmitRateLimit int

	Rating models.RatingConfig
}

// Load reads the configuration from the environment, after loading .env if present.
func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	p := &parser{}
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SQLitePath:         getEnv("SQLITE_PATH", "doubles-rating.db"),
		RedisURL:           getEnv("REDIS_URL", ""),
		AppendLockTTL:      p.getDuration("APPEND_LOCK_TTL", 5*time.Second),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		SubmitRateLimit:    p.getInt("SUBMIT_RATE_LIMIT", 30),
	}

	def := models.DefaultRatingConfig()
	cfg.Rating = models.RatingConfig{
		StartingELO:      p.getFloat("STARTING_ELO", def.StartingELO),
		KThresholds:      p.getInts("K_THRESHOLDS", def.KThresholds),
		KValues:          p.getFloats("K_VALUES", def.KValues),
		MarginStep:       p.getFloat("MARGIN_STEP", def.MarginStep),
		MarginCap:        p.getFloat("MARGIN_CAP", def.MarginCap),
		RatingDivisor:    p.getFloat("RATING_DIVISOR", def.RatingDivisor),
		PlayerWeightSpan: p.getFloat("PLAYER_WEIGHT_SPAN", def.PlayerWeightSpan),
		PlayerWeightMin:  p.getFloat("PLAYER_WEIGHT_MIN", def.PlayerWeightMin),
		PlayerWeightMax:  p.getFloat("PLAYER_WEIGHT_MAX", def.PlayerWeightMax),
		SinglesWeighting: p.getBool("SINGLES_WEIGHTING", def.SinglesWeighting),
		Granularity:      models.Granularity(strings.ToLower(getEnv("LEDGER_GRANULARITY", string(def.Granularity)))),
		TeamKFactor:      p.getFloat("TEAM_K_FACTOR", def.TeamKFactor),
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.SubmitRateLimit <= 0 {
		return fmt.Errorf("SUBMIT_RATE_LIMIT must be positive")
	}
	if c.AppendLockTTL <= 0 {
		return fmt.Errorf("APPEND_LOCK_TTL must be positive")
	}
	return c.Rating.Validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser keeps the first malformed value it sees.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) getInts(key string, def []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := splitList(v)
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			p.fail(key, v, err)
			return def
		}
		out = append(out, n)
	}
	return out
}

func (p *parser) getFloats(key string, def []float64) []float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := splitList(v)
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			p.fail(key, v, err)
			return def
		}
		out = append(out, f)
	}
	return out
}
