package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beacon-portal/beacon-portal/internal/app"
	"github.com/beacon-portal/beacon-portal/internal/auth"
	"github.com/beacon-portal/beacon-portal/internal/directory"
	"github.com/beacon-portal/beacon-portal/internal/observability"
	"github.com/beacon-portal/beacon-portal/internal/pages"
	"github.com/beacon-portal/beacon-portal/internal/platform/cache"
	"github.com/beacon-portal/beacon-portal/internal/platform/db"
	"github.com/beacon-portal/beacon-portal/internal/rbac"
	"github.com/beacon-portal/beacon-portal/internal/shared"
	"github.com/beacon-portal/beacon-portal/internal/view"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "beacon_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	authCfg := auth.Config{
		ClientID:     cfg.AzureClientID,
		ClientSecret: cfg.AzureClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
	}
	if cfg.EntraConfigured() {
		authCfg.Issuer = cfg.Authority()
	}
	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler, err := auth.NewHandler(logger, authService, sessionManager, authCfg)
	if err != nil {
		logger.Error("initialise auth handler", slog.Any("error", err))
		os.Exit(1)
	}
	if authHandler.Disabled() {
		logger.Warn("entra id not configured, sign-in disabled", slog.Any("missing", cfg.MissingEntraVars()))
	}

	auditLogger := shared.NewAuditLogger(dbpool)

	graphClient := directory.NewClient(directory.ClientConfig{
		TenantID:     cfg.AzureTenantID,
		ClientID:     cfg.AzureClientID,
		ClientSecret: cfg.AzureClientSecret,
		BaseURL:      cfg.GraphBaseURL,
	})
	directoryService := directory.NewService(graphClient, redisClient, cfg.DirectoryCacheTTL, logger)

	gate := rbac.Gate{Logger: logger, Templates: templates, Audit: auditLogger}
	pagesHandler := pages.NewHandler(logger, templates, csrfManager, gate, directoryService, authHandler.Disabled(), cfg.MissingEntraVars(), cfg.DirectoryPageSize)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		PagesHandler:   pagesHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}
