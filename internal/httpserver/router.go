package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"scanlab/internal/handlers"
	"scanlab/internal/metrics"
	"scanlab/internal/middleware"
	"scanlab/internal/pipeline"
)

type Limits struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, docs *handlers.DocumentHandler, limits Limits) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.Timeout(limits.RequestTimeout))
	r.Use(middleware.MaxBodySize(limits.MaxBodyBytes))

	// pages
	r.Get("/", docs.Index)
	r.Post("/", docs.Upload)
	r.Get("/documents", docs.Documents)
	r.Post("/documents", docs.Documents)
	r.Get("/uploads/{filename}", docs.ServeUpload)

	r.Route("/parse", func(r chi.Router) {
		for _, id := range []pipeline.ID{pipeline.LLaVA, pipeline.OCRGemma3, pipeline.OCRLlama3} {
			r.Post("/"+string(id), docs.Parse(id))
		}
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
