package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every configuration value PayScope's components read at
// startup. Fields mirror the recognized environment variables one-to-one.
type Config struct {
	Env      string
	LogLevel string

	DatabaseDSN   string
	TimeseriesDSN string
	RedisURL      string

	ObjectStoreEndpoint string
	ObjectStoreAccess   string
	ObjectStoreSecret   string
	ObjectStoreBucket   string

	GraphURI      string
	GraphUser     string
	GraphPassword string

	VectorEndpoint  string
	VectorKey       string
	VectorIndex     string
	VectorNamespace string
	VectorDimension int

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	MappingConfidenceThreshold float64
	MaxRetries                 int
	StageTimeout               time.Duration
	DLQEnabled                 bool

	QueueHighWatermark int
	MaxUploadBytes     int64

	TokenPublicKey      string
	AuditLedgerEndpoint string

	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
	IdempotencyTTL time.Duration
}

// Load reads configuration from environment variables, applying the defaults
// documented alongside each key. It never fails: missing required values
// surface as empty strings, letting each component decide whether that is
// fatal (e.g. the object store gateway refuses to start without a bucket).
func Load() *Config {
	return &Config{
		Env:      getenv("ENV", "development"),
		LogLevel: getenv("LOG_LEVEL", "INFO"),

		DatabaseDSN:   getenv("DATABASE_DSN", "postgres://payscope@localhost:5432/payscope?sslmode=disable"),
		TimeseriesDSN: getenv("TIMESERIES_DSN", ""),
		RedisURL:      getenv("REDIS_URL", "redis://localhost:6379/0"),

		ObjectStoreEndpoint: getenv("OBJECT_STORE_ENDPOINT", ""),
		ObjectStoreAccess:   getenv("OBJECT_STORE_ACCESS", ""),
		ObjectStoreSecret:   getenv("OBJECT_STORE_SECRET", ""),
		ObjectStoreBucket:   getenv("OBJECT_STORE_BUCKET", ""),

		GraphURI:      getenv("GRAPH_URI", ""),
		GraphUser:     getenv("GRAPH_USER", "neo4j"),
		GraphPassword: getenv("GRAPH_PASSWORD", ""),

		VectorEndpoint:  getenv("VECTOR_ENDPOINT", ""),
		VectorKey:       getenv("VECTOR_KEY", ""),
		VectorIndex:     getenv("VECTOR_INDEX", "payscope-transactions"),
		VectorNamespace: getenv("VECTOR_NAMESPACE", ""),
		VectorDimension: getenvInt("VECTOR_DIMENSION", 1536),

		LLMBaseURL: getenv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  getenv("LLM_API_KEY", ""),
		LLMModel:   getenv("LLM_MODEL", "gpt-4o-mini"),

		MappingConfidenceThreshold: getenvFloat("MAPPING_CONFIDENCE_THRESHOLD", 0.75),
		MaxRetries:                 getenvInt("MAX_RETRIES", 5),
		StageTimeout:               time.Duration(getenvInt("STAGE_TIMEOUT_SECONDS", 30)) * time.Second,
		DLQEnabled:                 getenv("DLQ_ENABLED", "true") == "true",

		QueueHighWatermark: getenvInt("QUEUE_HIGH_WATERMARK", 5000),
		MaxUploadBytes:     int64(getenvInt("MAX_UPLOAD_BYTES", 50<<20)),

		TokenPublicKey:      getenv("TOKEN_PUBLIC_KEY", ""),
		AuditLedgerEndpoint: getenv("AUDIT_LEDGER_ENDPOINT", ""),

		RateLimitRPS:   getenvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getenvInt("RATE_LIMIT_BURST", 20),
		CORSOrigins:    getenvList("CORS_ORIGINS", nil),
		IdempotencyTTL: time.Duration(getenvInt("IDEMPOTENCY_TTL_SECONDS", 86400)) * time.Second,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
