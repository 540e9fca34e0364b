package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/cache"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/kvstore"
	middleware "github.com/nimeshabuddhika/slot-payment-queue/pkg/middlewares"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/paymentqueue"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/utils"
	"github.com/nimeshabuddhika/slot-payment-queue/services/booking-api/configs"
	"github.com/nimeshabuddhika/slot-payment-queue/services/booking-api/internal/handlers"
	"github.com/nimeshabuddhika/slot-payment-queue/services/booking-api/internal/services"
	"go.uber.org/zap"
)

const serviceName = "booking-api"

// NewApp wires dependencies, builds the Gin engine, and returns an *http.Server and a cleanup func.
// It reads configuration from environment variables via configs.Load.
func NewApp(ctx context.Context, logger *zap.Logger) (*http.Server, func(), error) {
	// Load config
	cfg, err := configs.Load(logger)
	if err != nil {
		return nil, nil, err
	}

	store := kvstore.NewRedisStore(logger, kvstore.NewConnector(cache.Config{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		UseTLS:   cfg.RedisUseTLS,
	}))
	err = utils.RetryStartup(ctx, logger, "redis", cfg.StartupRetryTimeout, func() error {
		_, err := store.Connect(ctx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	// Setup dependencies
	scheduler := paymentqueue.NewTimerScheduler(logger)
	queue := paymentqueue.NewQueue(logger, store, scheduler, paymentqueue.Config{
		Keys:               paymentqueue.KeysForPrefix(cfg.QueueKeyPrefix),
		RequeueDelay:       cfg.RequeueDelay,
		MaxRequeueAttempts: cfg.MaxRequeueAttempts,
	})
	limiter := pkg.NewDistributedLimiter(store, cfg.QueueKeyPrefix+":rate:submit",
		cfg.RateLimitPerSecond, cfg.RateLimitBurst, cfg.GlobalRateLimit, cfg.RateLimitWindow, logger)

	baseHandler := handlers.NewBaseHandler(logger)
	bookingService := services.NewBookingService(logger, queue)
	paymentHandler := handlers.NewPaymentHandler(logger, bookingService, limiter)

	// Router
	r := gin.Default()

	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	api.Use(middleware.Metrics(serviceName))

	paymentHandler.RegisterRoutes(api)
	baseHandler.RegisterRoutes(r)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	cleanup := func() {
		// drop pending requeues before the store closes
		scheduler.Close()
		store.Close()
	}

	return srv, cleanup, nil
}
