package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	CORSOrigin string
	// Upstream services
	PolicyServiceURL     string
	GenerationServiceURL string
	WorkflowServiceURL   string
	UpstreamTimeout      time.Duration
	// Redis - required for edit and chat session storage
	RedisURL   string
	SessionTTL time.Duration
	// Postgres - empty by default, AI invocation log disabled if not configured
	DatabaseURL string
	// Meilisearch - empty by default, search falls back to list filtering
	MeiliURL       string
	MeiliMasterKey string
	// Object storage - empty endpoint disables attachments
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

func Load() Config {
	return Config{
		Addr:       getenv("API_ADDR", ":8790"),
		CORSOrigin: getenv("STUDIO_CORS_ORIGIN", "*"),

		PolicyServiceURL:     getenv("POLICY_SERVICE_URL", "http://localhost:8000"),
		GenerationServiceURL: getenv("GENERATION_SERVICE_URL", "http://localhost:8001"),
		WorkflowServiceURL:   getenv("WORKFLOW_SERVICE_URL", "http://localhost:8002"),
		UpstreamTimeout:      time.Duration(getenvInt("STUDIO_UPSTREAM_TIMEOUT_SECONDS", 60)) * time.Second,

		RedisURL:   getenv("REDIS_URL", "redis://localhost:6379/0"),
		SessionTTL: time.Duration(getenvInt("STUDIO_SESSION_TTL_SECONDS", 86400)) * time.Second,

		DatabaseURL: getenv("DATABASE_URL", ""),

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "policy-attachments"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
