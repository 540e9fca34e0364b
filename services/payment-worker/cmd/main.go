package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/services/payment-worker/app"
	"go.uber.org/zap"
)

// main initializes and runs the payment worker service.
func main() {
	// Initialize global logger with default configuration
	pkg.InitLogger("payment-worker")
	logger := pkg.Logger
	defer logger.Sync() // Ensure all buffered logs are flushed on exit

	// Cancelled on shutdown; stops the worker loops
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, cleanup, err := app.NewApp(ctx, logger)
	if err != nil {
		logger.Fatal("failed_to_start_app", zap.Error(err))
	}

	go func() {
		logger.Info("payment_worker_started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server_error", zap.Error(err))
		}
	}()

	// Handle graceful shutdown on SIGINT or SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	osSignal := <-sigChan
	logger.Info("received_shutdown_signal", zap.String("signal", osSignal.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", zap.Error(err))
	}
	cancel()
	cleanup()
	logger.Info("service_shutdown_completed")
}
