// Package main provides the entry point for the side-api server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jmylchreest/side-api/internal/api/handlers"
	"github.com/jmylchreest/side-api/internal/browser"
	"github.com/jmylchreest/side-api/internal/cache"
	"github.com/jmylchreest/side-api/internal/config"
	"github.com/jmylchreest/side-api/internal/http/mw"
	"github.com/jmylchreest/side-api/internal/logging"
	"github.com/jmylchreest/side-api/internal/scheduler"
	"github.com/jmylchreest/side-api/internal/service"
	"github.com/jmylchreest/side-api/internal/session"
	"github.com/jmylchreest/side-api/internal/settings"
	"github.com/jmylchreest/side-api/internal/shutdown"
	"github.com/jmylchreest/side-api/internal/vendor"
	"github.com/jmylchreest/side-api/internal/vendor/baemin"
	"github.com/jmylchreest/side-api/internal/vendor/coupang"
	"github.com/jmylchreest/side-api/internal/vendor/ddangyo"
	"github.com/jmylchreest/side-api/internal/vendor/yogiyo"
	"github.com/jmylchreest/side-api/internal/version"
)

func main() {
	// Initialize logger using slog-logfilter (respects LOG_LEVEL, LOG_FORMAT env vars)
	logger := logging.SetDefault()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting side-api server",
		"version", version.Get().String(),
		"port", cfg.Port,
		"max_contexts", cfg.MaxContexts,
		"cookie_store", cfg.CookieStore,
	)

	closers := shutdown.NewSequence(logger)

	// The browser is required; without it no vendor route can work.
	driver, err := browser.Launch(cfg, logger)
	if err != nil {
		logger.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}

	pool := browser.NewPool(driver, browser.PoolOptions{
		MaxContexts: cfg.MaxContexts,
		Width:       cfg.ViewportWidth,
		Height:      cfg.ViewportHeight,
		UserAgent:   cfg.UserAgent,
	}, logger)
	// Pool.Close drains the idle contexts and then closes the browser.
	closers.Add("browser pool", pool.Close)

	jar, err := openJar(cfg, logger)
	if err != nil {
		logger.Error("failed to open cookie store", "error", err)
		_ = closers.Run()
		os.Exit(1)
	}
	closers.Add("cookie store", jar.Close)

	interceptor := session.NewInterceptor(jar, cfg.Vendors, logger)
	vendorCache := cache.New(cfg.CacheTTL, logger, cache.WithDedupe(cfg.CacheDedupe))

	cacheReset, err := scheduler.NewCacheReset(cfg.CacheResetCron, vendorCache, logger)
	if err != nil {
		logger.Error("invalid cache reset schedule", "error", err)
		_ = closers.Run()
		os.Exit(1)
	}

	var services []*service.VendorService
	for _, adapter := range adapters(cfg, logger) {
		services = append(services, service.NewVendorService(adapter, vendorCache, cfg.NavigationTimeout, logger))
	}

	// Create router
	r := chi.NewRouter()

	idle := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout: cfg.IdleTimeout,
		Logger:  logger,
		Busy:    func() bool { return pool.Stats().Loaned > 0 },
	})

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(mw.RequestContext)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(idle.Middleware)

	// CORS for the settings frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if cfg.RateLimit > 0 {
		logger.Info("rate limiting enabled", "per_minute", cfg.RateLimit)
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}

	// Create Huma API
	handlers.UseErrorEnvelope()
	humaConfig := huma.DefaultConfig("Side API", version.Get().Version)
	humaConfig.Info.Description = "Delivery back-office automation over a pooled headless browser"
	api := humachi.New(r, humaConfig)

	names := make([]string, 0, len(services))
	for _, svc := range services {
		handlers.NewVendorHandler(svc, logger).Register(api, pool, interceptor)
		names = append(names, svc.Name())
	}
	handlers.NewHealthHandler(pool, vendorCache, names).Register(api)
	handlers.NewSettingsHandler(settings.NewStore(cfg.SettingsPath, logger), logger).Register(api)

	logger.Info("vendors mounted", "vendors", names)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// Logins and paged catalog reads can take several navigations.
		WriteTimeout: 4*cfg.NavigationTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	cacheReset.Start()
	idle.Start()

	// Wait for interrupt signal or idle timeout
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server...", "signal", sig.String())
	case <-idle.Done():
		logger.Info("shutting down idle server...")
	}

	idle.Stop()
	<-cacheReset.Stop().Done()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	if err := closers.Run(); err != nil {
		logger.Error("shutdown completed with errors", "error", err)
	}

	logger.Info("server stopped")
}

// openJar opens the configured cookie store.
func openJar(cfg *config.Config, logger *slog.Logger) (session.Jar, error) {
	if cfg.CookieStore == "sqlite" {
		jar, err := session.NewSQLiteJar(cfg.CookieDBPath, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite cookie store", "path", cfg.CookieDBPath)
		return jar, nil
	}
	jar, err := session.NewFileJar(cfg.CookieDir, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("using file cookie store", "dir", cfg.CookieDir)
	return jar, nil
}

// adapters builds the adapters of the enabled vendors in mount order.
func adapters(cfg *config.Config, logger *slog.Logger) []vendor.Adapter {
	constructors := map[string]func(*config.VendorConfig, *slog.Logger) vendor.Adapter{
		config.Baemin:  func(v *config.VendorConfig, l *slog.Logger) vendor.Adapter { return baemin.New(v, l) },
		config.Coupang: func(v *config.VendorConfig, l *slog.Logger) vendor.Adapter { return coupang.New(v, l) },
		config.Ddangyo: func(v *config.VendorConfig, l *slog.Logger) vendor.Adapter { return ddangyo.New(v, l) },
		config.Yogiyo:  func(v *config.VendorConfig, l *slog.Logger) vendor.Adapter { return yogiyo.New(v, l) },
	}

	var out []vendor.Adapter
	for _, name := range config.VendorNames() {
		v := cfg.Vendors[name]
		if v == nil || !v.Enabled {
			logger.Info("vendor disabled", "vendor", name)
			continue
		}
		out = append(out, constructors[name](v, logger))
	}
	return out
}
