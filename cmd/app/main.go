package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/auth"
	"github.com/Domenick1991/railbooking/internal/bootstrap"
	"github.com/Domenick1991/railbooking/internal/cache"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/pkg/logger"
	"github.com/Domenick1991/railbooking/internal/pkg/metrics"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"github.com/Domenick1991/railbooking/internal/service/trains"
	"github.com/Domenick1991/railbooking/internal/service/users"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type stores struct {
	users    repository.UserRepository
	trains   repository.TrainRepository
	bookings repository.BookingRepository
}

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.New("", "").Fatal("load config", zap.Error(err))
	}

	log := logger.New(cfg.Log.Env, cfg.Log.Level)
	logger.Set(log)
	defer func() { _ = logger.Sync() }()
	if cfg.Log.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]bootstrap.HealthCheck{}

	var repos stores
	switch cfg.Storage {
	case config.StorageMemory:
		store := repository.NewMemoryStore()
		repos = stores{users: store.Users(), trains: store.Trains(), bookings: store.Bookings()}
		log.Warn("using in-memory storage, data is lost on restart")
	default:
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			log.Fatal("connect postgres", zap.Error(err))
		}
		defer pool.Close()
		if err := repository.Migrate(ctx, pool); err != nil {
			log.Fatal("migrate postgres", zap.Error(err))
		}
		repos = stores{
			users:    repository.NewUserRepository(pool),
			trains:   repository.NewTrainRepository(pool),
			bookings: repository.NewBookingRepository(pool),
		}
		health["postgres"] = pool.Ping
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	authority, err := auth.NewAuthority(cfg.Auth.Secret, cfg.Auth.TokenTTL())
	if err != nil {
		log.Fatal("token authority", zap.Error(err))
	}

	engineOpts := []reservation.Option{
		reservation.WithLogger(log.Named("reservation")),
		reservation.WithMetrics(m),
		reservation.WithAcquireTimeout(cfg.Booking.LockAcquireTimeout()),
		reservation.WithCommitTimeout(cfg.Booking.CommitTimeout()),
		reservation.WithCommitRetries(cfg.Booking.CommitRetries),
	}

	// A nil *RedisCache must not reach the services as a non-nil interface.
	var routeCache trains.RouteCache
	if cfg.Redis.Enabled() {
		redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.AvailabilityTTL())
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			log.Fatal("connect redis", zap.Error(err))
		}
		routeCache = redisCache
		engineOpts = append(engineOpts,
			reservation.WithRouteCache(redisCache),
			reservation.WithDistributedLock(redisCache, cfg.Booking.DistributedLockTTL()),
		)
		health["redis"] = redisCache.Ping
	}

	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log.Named("kafka"))
		defer producer.Close()
		if err := producer.CheckConnection(ctx); err != nil {
			log.Warn("kafka unreachable, booking events will be retried per publish", zap.Error(err))
		}
		engineOpts = append(engineOpts,
			reservation.WithEvents(producer, cfg.Kafka.BookingEventsTopic, cfg.Kafka.NotificationsTopic))
		health["kafka"] = producer.CheckConnection
	}

	userService := users.NewUserService(repos.users, auth.NewBcryptHasher(bcrypt.DefaultCost), authority)
	trainService := trains.NewTrainService(repos.trains, routeCache, log.Named("trains"))
	engine := reservation.NewEngine(repos.trains, repos.bookings, engineOpts...)

	router := bootstrap.NewRouter(bootstrap.Services{
		Users:        userService,
		Trains:       trainService,
		Reservations: engine,
	}, bootstrap.Options{
		AdminAPIKey: cfg.Auth.AdminAPIKey,
		SwaggerDir:  cfg.HTTP.SwaggerDir,
		Metrics:     m,
		Gatherer:    reg,
		Health:      health,
		Log:         log.Named("http"),
	})

	if err := bootstrap.Run(ctx, cfg.HTTP, router, log); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
