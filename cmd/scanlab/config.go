package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port         string `validate:"required,numeric"`
	UploadDir    string `validate:"required"`
	TempDir      string
	CacheBackend string `validate:"oneof=memory redis"` // "memory" or "redis"
	// 0 keeps results for the lifetime of the store
	CacheTTL  time.Duration `validate:"gte=0"`
	RedisAddr string        `validate:"required_if=CacheBackend redis"`

	OllamaURL        string `validate:"required,url"`
	GeminiBaseURL    string `validate:"required,url"`
	GeminiAPIKey     string
	MultimodalModels []string

	SessionSecret   string
	UpstreamTimeout time.Duration `validate:"gt=0"`
	RequestTimeout  time.Duration `validate:"gt=0"`
	MaxUploadBytes  int64         `validate:"gt=0"`
	TesseractLang   []string
	Env             string
}

// LoadConfig reads .env when present, then the environment.
func LoadConfig() (Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	var errs []string
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(getenv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
		return d
	}

	maxUpload, err := strconv.ParseInt(getenv("MAX_UPLOAD_BYTES", strconv.Itoa(32<<20)), 10, 64)
	if err != nil {
		errs = append(errs, fmt.Sprintf("MAX_UPLOAD_BYTES: %v", err))
	}

	cfg := Config{
		Port:             getenv("PORT", "5000"),
		UploadDir:        getenv("UPLOAD_DIR", "uploads"),
		TempDir:          os.Getenv("TEMP_DIR"),
		CacheBackend:     getenv("CACHE_BACKEND", "memory"),
		CacheTTL:         duration("CACHE_TTL", "0s"),
		RedisAddr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
		OllamaURL:        getenv("OLLAMA_URL", "http://localhost:11434"),
		GeminiBaseURL:    getenv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		MultimodalModels: splitList(os.Getenv("MULTIMODAL_MODELS")),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		UpstreamTimeout:  duration("UPSTREAM_TIMEOUT", "5m"),
		RequestTimeout:   duration("REQUEST_TIMEOUT", "15m"),
		MaxUploadBytes:   maxUpload,
		TesseractLang:    splitList(getenv("TESSERACT_LANG", "eng")),
		Env:              os.Getenv("ENV"),
	}
	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
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
