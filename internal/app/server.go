package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Luccama700/ai-labs/internal/httpapi"
	"github.com/Luccama700/ai-labs/internal/logging"
	"github.com/Luccama700/ai-labs/internal/metrics"
	"github.com/Luccama700/ai-labs/internal/providers"
	"github.com/Luccama700/ai-labs/internal/providers/anthropic"
	"github.com/Luccama700/ai-labs/internal/providers/google"
	"github.com/Luccama700/ai-labs/internal/providers/local"
	"github.com/Luccama700/ai-labs/internal/providers/mistral"
	"github.com/Luccama700/ai-labs/internal/providers/openai"
	"github.com/Luccama700/ai-labs/internal/ratelimit"
	"github.com/Luccama700/ai-labs/internal/runner"
	"github.com/Luccama700/ai-labs/internal/secret"
	"github.com/Luccama700/ai-labs/internal/store"
	"github.com/Luccama700/ai-labs/internal/tracing"
)

// rateCleanupInterval controls how often expired rate windows are purged.
const rateCleanupInterval = time.Minute

type Server struct {
	cfg Config

	r *chi.Mux

	store   store.Store
	limiter *ratelimit.Limiter
	logger  *slog.Logger

	shutdownTracing func(context.Context) error
}

func NewServer(cfg Config) (*Server, error) {
	logger := logging.Setup(cfg.LogLevel)

	shutdownTracing, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTELEnabled,
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: "ailabs",
	})
	if err != nil {
		return nil, err
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	codec, err := secret.New(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	db, err := store.NewSQLite(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database initialized", slog.String("dsn", cfg.DBDSN))

	timeout := time.Duration(cfg.ProviderTimeoutSecs) * time.Second
	registry := providers.NewRegistry(
		openai.New(openai.WithTimeout(timeout)),
		anthropic.New(anthropic.WithTimeout(timeout)),
		google.New(google.WithTimeout(timeout)),
		mistral.New(mistral.WithTimeout(timeout)),
		local.New(),
	)
	logger.Info("providers registered", slog.Any("providers", registry.Names()))

	m := metrics.New()

	limiter := ratelimit.New(db,
		ratelimit.WithMax(cfg.RatePerMinute),
		ratelimit.WithLogger(logger),
	)
	limiter.StartCleanup(rateCleanupInterval)

	run := runner.New(db, registry, codec, limiter, m, logger)

	s := &Server{
		cfg:             cfg,
		r:               r,
		store:           db,
		limiter:         limiter,
		logger:          logger,
		shutdownTracing: shutdownTracing,
	}

	httpapi.MountRoutes(r, httpapi.Dependencies{
		Runner:   run,
		Registry: registry,
		Store:    db,
		Codec:    codec,
		Metrics:  m,
		Logger:   logger,
	})

	return s, nil
}

func (s *Server) Router() http.Handler { return s.r }

func (s *Server) Close() error {
	s.limiter.Stop()
	if s.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.shutdownTracing(ctx)
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
