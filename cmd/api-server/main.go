package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinicdesk/appointment-backend/internal/api"
	"github.com/clinicdesk/appointment-backend/internal/auth"
	"github.com/clinicdesk/appointment-backend/internal/clock"
	"github.com/clinicdesk/appointment-backend/internal/config"
	"github.com/clinicdesk/appointment-backend/internal/db"
	"github.com/clinicdesk/appointment-backend/internal/mailer"
	"github.com/clinicdesk/appointment-backend/internal/notification"
	redisclient "github.com/clinicdesk/appointment-backend/internal/redis"
	"github.com/clinicdesk/appointment-backend/internal/scheduling"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	var sender notification.Sender
	if cfg.EmailEnabled {
		sesSender, err := mailer.NewSESSender(rootCtx, cfg.AWSRegion, cfg.EmailFrom)
		if err != nil {
			logger.Fatal("ses init error", zap.Error(err))
		}
		sender = sesSender
		logger.Info("email delivery via SES", zap.String("region", cfg.AWSRegion))
	} else {
		sender = mailer.NewLogSender(logger)
		logger.Info("email delivery disabled, logging instead")
	}

	clk := clock.System()

	notifRepo := notification.NewPgRepository(pgPool)
	dispatcher := notification.NewDispatcher(notifRepo, sender, clk, logger)

	schedRepo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	schedSvc := scheduling.NewService(schedRepo, locker, dispatcher, clk, logger)

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Fatal("token manager init error", zap.Error(err))
	}
	authSvc := auth.NewService(auth.NewPgCredentialStore(pgPool), tokens, logger)

	router := api.NewRouter(api.RouterConfig{
		Scheduling:    schedSvc,
		Notifications: dispatcher,
		Auth:          authSvc,
		Tokens:        tokens,
		PgPool:        pgPool,
		Redis:         rdb,
		Logger:        logger,
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
