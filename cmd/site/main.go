// Package main is the entry point for the chat widget backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanivvds/portfolio-assistant/internal/cache"
	"github.com/yanivvds/portfolio-assistant/internal/chat"
	"github.com/yanivvds/portfolio-assistant/internal/completion"
	"github.com/yanivvds/portfolio-assistant/internal/config"
	"github.com/yanivvds/portfolio-assistant/internal/handler"
	"github.com/yanivvds/portfolio-assistant/internal/middleware"
	"github.com/yanivvds/portfolio-assistant/internal/render"
	"github.com/yanivvds/portfolio-assistant/internal/service"
	"github.com/yanivvds/portfolio-assistant/pkg/logger"
	"github.com/yanivvds/portfolio-assistant/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting chat site backend", zap.String("completion_service", cfg.CompletionServiceURL))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "portfolio-site", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// One HTTP client is shared; each session gets its own response cache.
	httpClient := &http.Client{}
	var cacheOpts []cache.Option
	if cfg.CacheProjectScoped {
		cacheOpts = append(cacheOpts, cache.WithProjectScope())
	}

	sessionLog := log.Named("chat")
	registry := service.NewRegistry(func(id, project string) *chat.Session {
		client := completion.NewClient(cfg.CompletionServiceURL, cache.New(cacheOpts...), sessionLog,
			completion.WithHTTPClient(httpClient),
			completion.WithTimeout(cfg.CompletionTimeout),
		)
		return chat.NewSession(id, client, project,
			chat.WithCaptionInterval(cfg.CaptionInterval),
			chat.WithLogger(sessionLog),
		)
	}, cfg.SessionIdleTimeout, log)

	sweepDone := make(chan struct{})
	go func() {
		registry.Run(ctx)
		close(sweepDone)
	}()

	icons := render.NewHTTPIconResolver(nil, cfg.IconProbeTimeout, log.Named("icons"))
	renderer, err := render.New(icons, log.Named("render"))
	if err != nil {
		log.Fatal("failed to load templates", zap.Error(err))
	}

	healthHandler := handler.NewHealthHandler(nil)
	sessionHandler := handler.NewSessionHandler(registry, renderer, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/chat/sessions", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		sessionHandler.Routes(r, middleware.SessionRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	})

	server := &http.Server{
		Addr:         ":" + cfg.SitePort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.SitePort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Closing sessions cancels any turn still talking to the relay.
	stop()
	<-sweepDone

	log.Info("server stopped")
}
