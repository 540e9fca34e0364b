package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/cache"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/database"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/kvstore"
	middleware "github.com/nimeshabuddhika/slot-payment-queue/pkg/middlewares"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/paymentqueue"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/repositories"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/utils"
	"github.com/nimeshabuddhika/slot-payment-queue/services/payment-worker/configs"
	"github.com/nimeshabuddhika/slot-payment-queue/services/payment-worker/internal/handlers"
	"github.com/nimeshabuddhika/slot-payment-queue/services/payment-worker/internal/services"
	"go.uber.org/zap"
)

const serviceName = "payment-worker"

// NewApp wires dependencies, builds the Gin engine, and returns an *http.Server and a cleanup func.
// ctx bounds the worker loops; cancelling it stops them.
func NewApp(ctx context.Context, logger *zap.Logger) (*http.Server, func(), error) {
	// Load config
	cfg, err := configs.Load(logger)
	if err != nil {
		return nil, nil, err
	}

	// Redis queue store, connected up front so a missing store fails the rollout
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

	// Initialize postgres db
	var db *database.DB
	var disconnect func()
	err = utils.RetryStartup(ctx, logger, "postgres", cfg.StartupRetryTimeout, func() error {
		db, disconnect, err = database.New(ctx, logger, database.Config{
			PrimaryDSN: cfg.PrimaryDbAddr,
			MaxConns:   cfg.MaxDbCons,
			MinConns:   cfg.MinDbCons,
		})
		return err
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	// Run migrations on primary
	if err = database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		disconnect()
		store.Close()
		return nil, nil, err
	}

	// Setup dependencies
	scheduler := paymentqueue.NewTimerScheduler(logger)
	queue := paymentqueue.NewQueue(logger, store, scheduler, paymentqueue.Config{
		Keys: paymentqueue.KeysForPrefix(cfg.QueueKeyPrefix),
	})
	sweeper := paymentqueue.NewSweeper(logger, queue, cfg.StaleAfter)
	processor := services.NewPaymentProcessor(services.PaymentProcessorConfig{
		Logger:               logger,
		DB:                   db,
		PaymentRepo:          repositories.NewPaymentRepository(),
		Locks:                queue,
		ReleaseLockOnFailure: cfg.ReleaseLockOnFailure,
	})
	pool := services.NewWorkerPool(logger, services.WorkerPoolConfig{
		WorkerCount:          cfg.WorkerCount,
		MaxConcurrentJobs:    cfg.MaxConcurrentJobs,
		PollInterval:         cfg.PollInterval,
		ProcessTimeout:       cfg.ProcessTimeout,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		BackoffUnit:          cfg.BackoffUnit,
		MaxBackoff:           cfg.MaxBackoff,
		RestartCooldown:      cfg.RestartCooldown,
	}, queue, processor)

	baseHandler := handlers.NewBaseHandler(logger)
	opsHandler := handlers.NewOpsHandler(ctx, logger, pool, queue, sweeper)

	// Router
	r := gin.Default()

	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	api.Use(middleware.Metrics(serviceName))

	opsHandler.RegisterRoutes(api)
	baseHandler.RegisterRoutes(r)

	if cfg.AutoStartWorkers {
		pool.Start(ctx)
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	cleanup := func() {
		// stop loops before their dependencies go away
		pool.Stop()
		scheduler.Close()
		disconnect()
		store.Close()
	}

	return srv, cleanup, nil
}
