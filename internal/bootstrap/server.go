package bootstrap

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/railbooking/api"
	"github.com/Domenick1991/railbooking/config"
	"github.com/Domenick1991/railbooking/internal/pkg/metrics"
	"github.com/Domenick1991/railbooking/internal/service/reservation"
	"github.com/Domenick1991/railbooking/internal/service/trains"
	"github.com/Domenick1991/railbooking/internal/service/users"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

const (
	swaggerDocPath  = "/swagger/railbooking.swagger.json"
	shutdownTimeout = 5 * time.Second
	healthTimeout   = 2 * time.Second
)

//go:embed swagger/railbooking.swagger.json
var swaggerDoc []byte

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Services struct {
	Users        users.UserUseCase
	Trains       trains.TrainUseCase
	Reservations reservation.ReservationUseCase
}

type Options struct {
	AdminAPIKey string
	SwaggerDir  string
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Health      map[string]HealthCheck
	Log         *zap.Logger
}

// NewRouter wires the HTTP surface: public auth routes, the train catalog,
// reservations, health, metrics and API docs.
func NewRouter(svc Services, opts Options) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestID(), api.RequestLogger(log))
	if opts.Metrics != nil {
		router.Use(api.Metrics(opts.Metrics))
	}

	auth := api.NewAuth(svc.Users, opts.AdminAPIKey)
	api.NewUserHandler(svc.Users).Register(router)
	api.NewTrainHandler(svc.Trains, auth).Register(router)
	api.NewBookingHandler(svc.Reservations, auth).Register(router)

	router.GET("/healthz", healthHandler(opts.Health))

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	if opts.SwaggerDir != "" {
		router.Static("/swagger", opts.SwaggerDir)
	} else {
		router.GET(swaggerDocPath, func(c *gin.Context) {
			c.Data(http.StatusOK, "application/json", swaggerDoc)
		})
	}
	router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL(swaggerDocPath))))

	return router
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		result := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": result})
	}
}

// Run serves handler on cfg.Address and blocks until ctx is canceled or the
// server fails.
func Run(ctx context.Context, cfg config.HTTPConfig, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("address", cfg.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
