package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinicdesk/appointment-backend/internal/clock"
	"github.com/clinicdesk/appointment-backend/internal/config"
	"github.com/clinicdesk/appointment-backend/internal/db"
	"github.com/clinicdesk/appointment-backend/internal/mailer"
	"github.com/clinicdesk/appointment-backend/internal/notification"
)

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

	logger.Info("notification-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval))

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

	var sender notification.Sender
	if cfg.EmailEnabled {
		sesSender, err := mailer.NewSESSender(rootCtx, cfg.AWSRegion, cfg.EmailFrom)
		if err != nil {
			logger.Fatal("ses init error", zap.Error(err))
		}
		sender = sesSender
	} else {
		sender = mailer.NewLogSender(logger)
	}

	repo := notification.NewPgRepository(pgPool)
	dispatcher := notification.NewDispatcher(repo, sender, clock.System(), logger)

	// Run once at startup
	runOnce(rootCtx, dispatcher, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping notification worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, dispatcher, logger)
		}
	}
}

func runOnce(ctx context.Context, d *notification.Dispatcher, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := d.ProcessDue(runCtx)
	if err != nil {
		logger.Error("notification sweep error", zap.Error(err))
		return
	}
	logger.Info("notification sweep complete",
		zap.Int("sent", sent),
		zap.Duration("took", time.Since(start)))
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
