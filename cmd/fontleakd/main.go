// Command fontleakd runs the font-ligature leak service (spec §6): it
// serves the leak protocol's three endpoints plus the operational surface
// SPEC_FULL.md adds, reloading mutable configuration without a restart.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/meme-lord/fontleak/internal/config"
	"github.com/meme-lord/fontleak/internal/font"
	"github.com/meme-lord/fontleak/internal/httpapi"
	"github.com/meme-lord/fontleak/internal/orchestrator"
	"github.com/meme-lord/fontleak/internal/session"
	"github.com/meme-lord/fontleak/internal/tracing"
	"github.com/meme-lord/fontleak/pkg/logger"
	"golang.org/x/time/rate"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional; defaults and env vars apply otherwise)")
	addr := flag.String("addr", ":8080", "address to listen on")
	logLevel := flag.String("log-level", "info", "zap log level")
	devLogging := flag.Bool("dev", false, "use a development (console) log encoder")
	leakRPS := flag.Float64("leak-rps", 200, "per-IP rate limit on /leak, in requests per second")
	leakBurst := flag.Int("leak-burst", 400, "per-IP burst allowance on /leak")
	fontCacheSize := flag.Int("font-cache-size", 256, "number of distinct font builds to memoise")
	sweepInterval := flag.Duration("sweep-interval", time.Minute, "how often the idle-session sweeper runs")
	flag.Parse()

	log, err := logger.New(logger.Config{Level: *logLevel, Format: map[bool]string{true: "console", false: "json"}[*devLogging], Development: *devLogging})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	settings, v, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	var current atomic.Pointer[config.Settings]
	current.Store(settings)
	config.WatchAndReload(v, settings, func(next *config.Settings, ignoredHostChange bool) {
		if ignoredHostChange {
			log.Warn("ignored attempt to change host/host_leak via hot reload; restart required")
		}
		current.Store(next)
		log.Info("configuration reloaded")
	})

	tracer, err := tracing.NewProvider("fontleakd")
	if err != nil {
		log.Fatal("failed to initialise tracing", zap.Error(err))
	}

	store := session.NewStore()
	builder := font.NewBuilder(*fontCacheSize)
	orch := orchestrator.New(store, builder, func() *config.Settings { return current.Load() }, log, tracer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store.RunSweeper(ctx, *sweepInterval)

	reg := prometheus.NewRegistry()
	router := httpapi.Router(orch, store, log, reg, rate.Limit(*leakRPS), *leakBurst)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // long-poll responses on GET / can legitimately take up to the session timeout
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("fontleakd listening", zap.String("addr", *addr), zap.String("host", settings.Host))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server exited unexpectedly", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", zap.Error(err))
	}
}
