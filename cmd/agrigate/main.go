package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/proeftuin/agrigate/internal/app"
	"github.com/proeftuin/agrigate/internal/auth"
	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/farmusers"
	"github.com/proeftuin/agrigate/internal/observability"
	"github.com/proeftuin/agrigate/internal/platform/cache"
	"github.com/proeftuin/agrigate/internal/platform/db"
	"github.com/proeftuin/agrigate/internal/roles"
	"github.com/proeftuin/agrigate/internal/shared"
	"github.com/proeftuin/agrigate/internal/users"
	"github.com/proeftuin/agrigate/jobs"
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

	refreshStore := auth.NewRefreshStore(redisClient)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, refreshStore)

	auditLogger := shared.NewAuditLogger(dbpool)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, auditLogger, logger)

	farmUsersRepo := farmusers.NewRepository(dbpool)
	farmUsersService := farmusers.NewService(farmUsersRepo, auditLogger, logger)

	engine := authz.NewEngine(farmUsersRepo, rolesRepo)
	authService := auth.NewService(usersRepo, farmUsersRepo)

	metrics := observability.NewMetrics()

	authHandler := auth.NewHandler(logger, authService, issuer)
	authzHandler := authz.NewHandler(logger, engine, metrics)
	rolesHandler := roles.NewHandler(logger, rolesService)
	usersHandler := users.NewHandler(logger, usersService, issuer)
	farmUsersHandler := farmusers.NewHandler(logger, farmUsersService, engine)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthHandler:      authHandler,
		AuthzHandler:     authzHandler,
		RolesHandler:     rolesHandler,
		UsersHandler:     usersHandler,
		FarmUsersHandler: farmUsersHandler,
		JobsHandler:      jobsHandler,
		AccessVerifier:   issuer,
		RefreshVerifier:  issuer,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
