// Package main is the entrypoint for the Chirp API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/chirp/chirp/internal/analytics"
	"github.com/chirp/chirp/internal/cache"
	"github.com/chirp/chirp/internal/config"
	"github.com/chirp/chirp/internal/handler"
	"github.com/chirp/chirp/internal/metrics"
	"github.com/chirp/chirp/internal/middleware"
	"github.com/chirp/chirp/internal/repository"
	"github.com/chirp/chirp/internal/server"
	"github.com/chirp/chirp/internal/service"
	"github.com/chirp/chirp/internal/webhook"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Initialize services
	recorder := metrics.NewInMemory()
	tweetService := service.NewTweetService(repo, cacheClient, cfg.BaseURL, recorder)
	userService := service.NewUserService(repo)

	// Webhook delivery pipeline
	webhookRepo := webhook.NewRepository(repo.Pool())
	webhookPublisher := webhook.NewPublisher(webhookRepo, logger)
	webhookWorker := webhook.NewWorker(webhookRepo, logger, recorder)

	// View analytics pipeline
	viewEventRepo := repository.NewViewEventRepository(repo)
	analyticsPublisher := analytics.NewPublisher(cacheClient.Client(), logger, recorder)
	analyticsWorker := analytics.NewWorker(cacheClient.Client(), viewEventRepo, logger, analytics.NewConsumerID(), recorder)
	viewCountFlusher := analytics.NewViewCountFlusher(cacheClient, repo, logger)
	viewCountFlusher.SetInterval(cfg.ViewCountFlushInterval)

	// Initialize handlers
	allowInsecureWebhooks := cfg.WebhookAllowInsecureTargets || cfg.IsDevelopment()

	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	metricsHandler := handler.NewMetricsHandler(recorder)
	tweetHandler := handler.NewTweetHandler(tweetService, webhookPublisher, logger)
	permalinkHandler := handler.NewPermalinkHandler(tweetService, analyticsPublisher, logger)
	userHandler := handler.NewUserHandler(userService, logger)
	apiKeyHandler := handler.NewAPIKeyHandler(logger, repo)
	webhookHandler := handler.NewWebhookHandler(webhookRepo, logger, allowInsecureWebhooks)
	engagementHandler := handler.NewEngagementHandler(viewEventRepo, tweetService, logger)
	adminHandler := handler.NewAdminHandler(repo, repo, userService, logger)

	// Setup router
	r := setupRouter(routerDeps{
		base:       h,
		health:     healthHandler,
		metrics:    metricsHandler,
		tweet:      tweetHandler,
		permalink:  permalinkHandler,
		user:       userHandler,
		apiKey:     apiKeyHandler,
		webhook:    webhookHandler,
		engagement: engagementHandler,
		admin:      adminHandler,
	}, repo, cacheClient, cfg, logger)

	// Create and run server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Background workers stop when the server begins shutdown.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	go func() {
		if err := webhookWorker.Run(workerCtx); err != nil && !isShutdownErr(err) {
			logger.Error("webhook worker exited", "error", err)
		}
	}()
	go func() {
		if err := analyticsWorker.Run(workerCtx); err != nil && !isShutdownErr(err) {
			logger.Error("analytics worker exited", "error", err)
		}
	}()
	go func() {
		if err := viewCountFlusher.Run(workerCtx); err != nil && !isShutdownErr(err) {
			logger.Error("view count flusher exited", "error", err)
		}
	}()

	srv.OnShutdown("analytics-worker", func(ctx context.Context) error {
		return analyticsWorker.Shutdown(ctx)
	})
	srv.OnShutdown("background-workers", func(ctx context.Context) error {
		stopWorkers()
		return nil
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// isShutdownErr reports whether a worker exit was an orderly shutdown.
func isShutdownErr(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// routerDeps bundles the handlers so setupRouter stays readable.
type routerDeps struct {
	base       *handler.Handler
	health     *handler.HealthHandler
	metrics    *handler.MetricsHandler
	tweet      *handler.TweetHandler
	permalink  *handler.PermalinkHandler
	user       *handler.UserHandler
	apiKey     *handler.APIKeyHandler
	webhook    *handler.WebhookHandler
	engagement *handler.EngagementHandler
	admin      *handler.AdminHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	deps routerDeps,
	repo *repository.Repository,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.DefaultSecurityConfig()))

	corsCfg := middleware.DefaultCORSConfig()
	if origins := cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		corsCfg.AllowedOrigins = origins
	}
	r.Use(middleware.CORS(corsCfg))

	// Health and operational endpoints (no auth required)
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)
	r.Get("/metrics", deps.metrics.Metrics)

	// Root info endpoint
	r.Get("/", deps.base.Hello)

	// Auth middleware configuration
	authCfg := middleware.AuthConfig{
		Logger:     logger,
		Repository: repo,
		Cache:      cacheClient,
	}

	// Rate limit middleware configuration
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:           logger,
		Cache:            cacheClient,
		APIEnabled:       cfg.RateLimitAPIEnabled,
		PermalinkEnabled: cfg.RateLimitPermalinkEnabled,
		PermalinkRPS:     cfg.RateLimitPermalinkRPS,
		PermalinkBurst:   cfg.RateLimitPermalinkBurst,
	}

	// Public account registration sits outside the authenticated group:
	// a fresh user has no API key yet.
	r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/api/v1/users", deps.user.Register)

	// API v1 routes (require authentication)
	r.Route("/api/v1", func(r chi.Router) {
		// Apply auth and rate limit middleware to all API routes
		r.Use(middleware.Auth(authCfg))
		r.Use(middleware.RateLimitAPI(rateLimitCfg))

		// Tweet management
		r.Route("/tweets", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/", deps.tweet.List)
			r.With(middleware.RequireRead()).Get("/{id}", deps.tweet.Get)
			r.With(middleware.RequireRead()).Get("/{id}/engagement", deps.engagement.GetTweetEngagement)
			r.With(middleware.RequireWrite()).Post("/", deps.tweet.Create)
			r.With(middleware.RequireWrite()).Patch("/{id}", deps.tweet.Update)
			r.With(middleware.RequireWrite()).Delete("/{id}", deps.tweet.Delete)
		})

		// User accounts
		r.Route("/users", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/me", deps.user.Me)
			r.With(middleware.RequireRead()).Get("/{id}", deps.user.Get)
		})

		// API key management (requires admin scope for mutations)
		r.Route("/api-keys", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/", deps.apiKey.ListAPIKeys)
			r.With(middleware.RequireAdmin()).Post("/", deps.apiKey.CreateAPIKey)
			r.With(middleware.RequireAdmin()).Delete("/{keyID}", deps.apiKey.RevokeAPIKey)
			r.With(middleware.RequireAdmin()).Post("/{keyID}/rotate", deps.apiKey.RotateAPIKey)
		})

		// Webhook endpoint management
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(middleware.RequireWebhook())
			r.Get("/", deps.webhook.List)
			r.Post("/", deps.webhook.Create)
			r.Get("/{id}", deps.webhook.Get)
			r.Patch("/{id}", deps.webhook.Update)
			r.Delete("/{id}", deps.webhook.Delete)
			r.Post("/{id}/rotate-secret", deps.webhook.RotateSecret)
			r.Get("/{id}/deliveries", deps.webhook.ListDeliveries)
			r.Post("/{id}/deliveries/{deliveryId}/retry", deps.webhook.RetryDelivery)
		})

		// Admin surface
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Get("/tweets", deps.admin.LookupTweets)
			r.Get("/users/{id}/api-keys", deps.admin.ListAPIKeysByUser)
			r.Post("/users/{id}/promote", deps.admin.PromoteUser)
			r.Get("/stats", deps.admin.Stats)
		})
	})

	// Public permalink with IP-based rate limiting (no auth required)
	r.With(middleware.RateLimitIP(rateLimitCfg)).Get("/t/{id}", deps.permalink.Resolve)

	// 404 and 405 handlers
	r.NotFound(deps.base.NotFound)
	r.MethodNotAllowed(deps.base.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
