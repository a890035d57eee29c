package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/notify"
	"github.com/Domenick1991/railbooking/internal/pkg/logger"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.New("", "").Fatal("load config", zap.Error(err))
	}

	log := logger.New(cfg.Log.Env, cfg.Log.Level).Named("worker")
	logger.Set(log)
	defer func() { _ = logger.Sync() }()

	if cfg.Storage != config.StoragePostgres {
		log.Fatal("worker needs postgres storage", zap.String("storage", cfg.Storage))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	trainRepo := repository.NewTrainRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	engine := reservation.NewEngine(trainRepo, bookingRepo, reservation.WithLogger(log))

	if cfg.Kafka.Enabled() && cfg.Kafka.NotificationsTopic != "" {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, log)
		defer consumer.Close()

		sender := notify.NewSender(userRepo, log)
		go func() {
			err := consumer.ConsumeBookingEvents(ctx, sender.Send)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("consumer stopped", zap.Error(err))
				stop()
			}
		}()
	} else {
		log.Info("kafka notifications disabled")
	}

	auditTicker := time.NewTicker(time.Duration(cfg.Worker.AuditIntervalMinutes) * time.Minute)
	defer auditTicker.Stop()

	for {
		select {
		case <-auditTicker.C:
			runAudit(ctx, engine, log)
		case <-ctx.Done():
			log.Info("shutting down")
			return
		}
	}
}

func runAudit(ctx context.Context, engine *reservation.Engine, log *zap.Logger) {
	found, err := engine.Audit(ctx)
	if err != nil {
		log.Error("audit failed", zap.Error(err))
		return
	}
	for _, d := range found {
		log.Error("seat ledger discrepancy", zap.Int64("train_id", d.TrainID), zap.String("reason", d.Reason))
	}
	if len(found) == 0 {
		log.Debug("audit clean")
	}
}
