package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"scanlab/internal/backend"
	"scanlab/internal/cache"
	"scanlab/internal/handlers"
	"scanlab/internal/httpserver"
	"scanlab/internal/metrics"
	"scanlab/internal/ocr"
	"scanlab/internal/pipeline"
	"scanlab/internal/session"
	"scanlab/internal/uploads"
	"scanlab/internal/views"
	"scanlab/pkg/logging/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("scanlab exited with error: %v", err)
	}
}

func run() error {
	// ----- Config -----
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("upload_dir", cfg.UploadDir),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.String("ollama_url", cfg.OllamaURL),
		zap.Bool("gemini_configured", cfg.GeminiAPIKey != ""),
		zap.Duration("upstream_timeout", cfg.UpstreamTimeout),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.CacheBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		defer redisClient.Close()

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.RedisAddr),
		)
	}

	// ----- Result cache -----
	cacheCfg := cache.Config{
		Backend: cfg.CacheBackend,
		TTL:     cfg.CacheTTL,
		Prefix:  "scanlab",
	}
	store := cache.NewLoggingStore(cache.NewStore(cacheCfg, redisClient))
	results := cache.NewResultCache(store, cacheCfg.TTL)

	// ----- Backends -----
	backendClient, err := backend.NewClient(backend.Config{
		OllamaURL:       cfg.OllamaURL,
		GeminiBaseURL:   cfg.GeminiBaseURL,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		UpstreamTimeout: cfg.UpstreamTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer backendClient.Close()

	if !backendClient.GeminiConfigured() {
		logger.Warn("GEMINI_API_KEY not set; Gemini pipelines will report it inline")
	}

	engine := ocr.NewTesseractEngine(cfg.TesseractLang...)

	// ----- Uploads, sessions, views -----
	files, err := uploads.NewStore(cfg.UploadDir)
	if err != nil {
		return err
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		logger.Warn("SESSION_SECRET not set; sessions reset on restart")
	}
	sessions, err := session.NewManager(session.Config{
		Secret: secret,
		Secure: cfg.Env == "production",
	})
	if err != nil {
		return err
	}

	renderer, err := views.New()
	if err != nil {
		return err
	}

	// ----- Pipelines -----
	dispatcher := pipeline.NewDispatcher(results, files, engine, backendClient, backendClient, pipeline.Config{
		MultimodalModels: cfg.MultimodalModels,
		TempDir:          cfg.TempDir,
	})

	// ----- Handlers -----
	docs := handlers.NewDocumentHandler(handlers.Deps{
		Runner:   dispatcher,
		Comparer: pipeline.NewResolver(results),
		Files:    files,
		Sessions: sessions,
		Views:    renderer,
	})

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, docs, httpserver.Limits{
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxUploadBytes,
	})

	// ----- HTTP server -----
	// Model calls can take minutes; the request timeout middleware bounds
	// handlers, so the write timeout sits just above it.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting scanlab",
		zap.String("addr", srv.Addr),
		zap.String("cache_backend", cfg.CacheBackend),
	)

	// Start server in background
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			serveErr <- err
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
