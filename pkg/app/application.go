package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"exambook/pkg/cache"
	"exambook/pkg/config"
	"exambook/pkg/contracts"
	"exambook/pkg/metrics"
	"exambook/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type Options struct {
	Handlers []contracts.Handler
	Checks   []HealthCheck
	Metrics  *metrics.Metrics
	// ResponseCache enables cached GETs for the booking read routes.
	ResponseCache *cache.ResponseCache
	// OnShutdown runs after the server stops accepting requests.
	OnShutdown []func()
}

type Application struct {
	cfg            *config.Config
	opts           Options
	server         *http.Server
	rateLimiter    *middleware.RequesterRateLimiter
	healthHandler  http.Handler
	appHttpHandler http.Handler
}

func NewApplication() *Application {
	return &Application{}
}

func (a *Application) SetApp(cfg *config.Config, opts Options) {
	a.cfg = cfg
	a.opts = opts
	a.setHealthHandler(cfg)
	a.setAppHandler(cfg)
	a.setAppServer()
}

// Handler returns the fully assembled mux.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

func (a *Application) setHealthHandler(cfg *config.Config) {
	healthRouter := httprouter.New()
	NewHealthHandler(a.opts.Checks, cfg.Log).RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(cfg *config.Config) {
	appRouter := httprouter.New()
	for _, h := range a.opts.Handlers {
		h.RegisterRoutes(appRouter)
	}

	a.rateLimiter = middleware.NewRequesterRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, nil, cfg.Log)

	var appHttpHandler http.Handler = appRouter
	if a.opts.ResponseCache != nil {
		appHttpHandler = middleware.ResponseCache(a.opts.ResponseCache, middleware.BookingCacheKey, cfg.ResponseCacheTTL, a.opts.Metrics)(appHttpHandler)
		cfg.Log.Info("Response cache enabled", "ttl", cfg.ResponseCacheTTL)
	}
	appHttpHandler = middleware.RequestTimeout(cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.RequesterRateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	if a.opts.Metrics != nil {
		mux.Handle("/metrics", a.opts.Metrics.Handler())
	}
	mux.Handle("/", a.appHttpHandler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) Run() {
	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background workers...")
	a.rateLimiter.Stop()
	if a.opts.ResponseCache != nil {
		a.opts.ResponseCache.Stop()
	}
	for _, stop := range a.opts.OnShutdown {
		stop()
	}
	a.cfg.Log.Info("Server stopped gracefully")
}
