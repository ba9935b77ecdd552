package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file named by MEDGRAPH_ENV (or .env by default),
// then the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("MEDGRAPH_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are not an error; the environment may already be set.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// StoreBackend returns "postgres" or "memory". Defaults to "postgres".
func StoreBackend() string {
	switch b := os.Getenv("STORE_BACKEND"); b {
	case "memory":
		return b
	default:
		return "postgres"
	}
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// AutoMigrate reports whether the server applies migrations on startup.
func AutoMigrate() bool {
	v, err := strconv.ParseBool(os.Getenv("AUTO_MIGRATE"))
	return err == nil && v
}

// InferenceModelVersion tags computed relations. Bumping it makes every
// cached entry a miss.
func InferenceModelVersion() string {
	v := os.Getenv("INFERENCE_MODEL_VERSION")
	if v == "" {
		return "v1"
	}
	return v
}

// ExpectedEvidenceUnit is the total evidence weight treated as full coverage.
// Defaults to 2.43 (three 0.9-trust, 0.9-confidence sources).
func ExpectedEvidenceUnit() float64 {
	u, err := strconv.ParseFloat(os.Getenv("EXPECTED_EVIDENCE_UNIT"), 64)
	if err != nil || u <= 0 {
		return 3 * 0.9 * 0.9
	}
	return u
}

func ResolverTimeout() time.Duration {
	return duration("RESOLVER_TIMEOUT", 5*time.Second)
}

func CacheLockTTL() time.Duration {
	return duration("CACHE_LOCK_TTL", 30*time.Second)
}

func CacheSweepInterval() time.Duration {
	return duration("CACHE_SWEEP_INTERVAL", time.Hour)
}

func InvalidationChannel() string {
	c := os.Getenv("INVALIDATION_CHANNEL")
	if c == "" {
		return "relation_changed"
	}
	return c
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
