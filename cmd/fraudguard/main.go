// FraudGuard - Operator console for a remote fraud-scoring API.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/fraudguard/internal/apiclient"
	"github.com/opensource-finance/fraudguard/internal/bus"
	"github.com/opensource-finance/fraudguard/internal/cache"
	"github.com/opensource-finance/fraudguard/internal/chart"
	"github.com/opensource-finance/fraudguard/internal/dashboard"
	"github.com/opensource-finance/fraudguard/internal/domain"
	"github.com/opensource-finance/fraudguard/internal/obs"
	"github.com/opensource-finance/fraudguard/internal/repository"
	"github.com/opensource-finance/fraudguard/internal/rules"
	"github.com/opensource-finance/fraudguard/internal/session"
	"github.com/opensource-finance/fraudguard/internal/web"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// An .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg, err := domain.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))

	slog.Info("starting fraudguard",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"profile", cfg.Profile,
		"api_url", cfg.API.BaseURL,
		"api_timeout", cfg.API.Timeout.String(),
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"tracing", cfg.Tracing.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize token store
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize token store", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	creds := repository.NewCredentialStore(repo, cfg.Profile)
	slog.Info("token store initialized", "driver", cfg.Repository.Driver)

	// Initialize chart cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	events := bus.NewEmitter(busImpl, cfg.Profile)
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	metrics := obs.NewMetrics()

	client := apiclient.New(apiclient.Options{
		BaseURL:  cfg.API.BaseURL,
		Timeout:  cfg.API.Timeout,
		Tokens:   creds,
		Recorder: metrics,
	})

	guards, err := rules.NewDefaultEngine()
	if err != nil {
		slog.Error("failed to initialize input guards", "error", err)
		os.Exit(1)
	}
	slog.Info("input guards loaded", "guards_count", guards.GuardsCount())

	dash := dashboard.NewController(client, dashboard.Options{
		Guard:    guards,
		Events:   events,
		Observer: metrics,
	})
	sess := session.NewController(client, creds, events)
	sess.AddListener(dash)
	dash.SetSession(sess)

	if err := sess.Start(ctx); err != nil {
		slog.Error("failed to restore session", "error", err)
		os.Exit(1)
	}

	srv, err := web.NewServer(cfg.Server, web.Deps{
		Session:   sess,
		Dashboard: dash,
		Charts:    chart.NewRenderer(cacheImpl, cfg.Profile, cfg.Cache.LocalTTL),
		Bus:       busImpl,
		Metrics:   metrics,
		Checks: map[string]web.Pinger{
			"token_store": repo,
			"cache":       cacheImpl,
			"event_bus":   busImpl,
		},
		Profile:    cfg.Profile,
		APIBaseURL: client.BaseURL(),
		Version:    Version,
	})
	if err != nil {
		slog.Error("failed to initialize console", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraudguard is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", sess.Mode(),
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	// Abandon any outstanding scoring call before the server drains.
	dash.OnLoggedOut(context.Background())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fraudguard shutdown complete")
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  FRAUDGUARD")
	fmt.Println("  Transaction fraud console")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Profile:  %s\n", cfg.Profile)
	fmt.Printf("  API:      %s\n", cfg.API.BaseURL)
	fmt.Printf("  Console:  http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
}
