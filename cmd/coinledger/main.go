package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	coinledgerroot "github.com/set-night/coinledger"
	"github.com/set-night/coinledger/internal/claim"
	"github.com/set-night/coinledger/internal/config"
	"github.com/set-night/coinledger/internal/httpapi"
	"github.com/set-night/coinledger/internal/ledger"
	"github.com/set-night/coinledger/internal/maintenance"
	"github.com/set-night/coinledger/internal/notify"
	"github.com/set-night/coinledger/internal/payment"
	"github.com/set-night/coinledger/internal/repository"
	"github.com/set-night/coinledger/internal/subscription"
	"github.com/set-night/coinledger/internal/telegram"
	"github.com/set-night/coinledger/internal/token"
)

const cleanupInterval = 1 * time.Hour

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(coinledgerroot.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	store := repository.NewStore(pool)

	// Token service
	key, err := cfg.TokenKey()
	if err != nil {
		slog.Error("invalid token key", "error", err)
		os.Exit(1)
	}
	tokens, err := token.NewService(key)
	if err != nil {
		slog.Error("failed to create token service", "error", err)
		os.Exit(1)
	}

	// Ops logger (optional)
	var opsBot *bot.Bot
	if cfg.OpsBotToken != "" {
		opsBot, err = bot.New(cfg.OpsBotToken)
		if err != nil {
			slog.Error("failed to create ops bot", "error", err)
			os.Exit(1)
		}
	}
	ops := telegram.NewOpsLogger(opsBot, cfg)

	// Core services
	registry := notify.NewRegistry()
	notifier := notify.NewService(registry, store, config.NotificationQueueCap)
	ledgerSvc := ledger.NewService(store, notifier, ops)
	cache := claim.NewCache(config.ClaimCacheTTL)
	claimSvc := claim.NewService(store, cache, notifier)
	subscriptionSvc := subscription.NewService(store, notifier)
	paymentSvc := payment.NewService(store, notifier, ops, cfg.CoinRate)
	sweeper := maintenance.NewSweeper(store, notifier, ops)

	// Scheduled maintenance with catch-up
	go sweeper.Run(ctx, config.SweepInterval)

	// TTL cleanup for claimed instruments and aged records
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := store.CleanupExpired(context.Background()); err != nil {
					slog.Error("cleanup expired", "error", err)
				}
			}
		}
	}()

	// HTTP entrypoints: ws handshake + maintenance trigger
	api := httpapi.NewServer(httpapi.Deps{
		Tokens:            tokens,
		Accounts:          store,
		Ledger:            ledgerSvc,
		Claims:            claimSvc,
		Subscriptions:     subscriptionSvc,
		Payments:          paymentSvc,
		Notify:            notifier,
		Sweeper:           sweeper,
		Reporter:          ops,
		MaintenanceSecret: cfg.MaintenanceSecret,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}

	slog.Info("stopped gracefully")
}
