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
	"github.com/nimeshabuddhika/slot-payment-queue/services/booking-api/app"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	pkg.InitLogger("booking-api")
	logger := pkg.Logger

	srv, cleanup, err := app.NewApp(context.Background(), logger)
	if err != nil {
		logger.Fatal("failed_to_start_app", zap.Error(err))
	}

	// Start a server in goroutine to allow signal handling
	go func() {
		logger.Info("booking_api_started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server_error", zap.Error(err))
		}
	}()

	// Handle shutdown signals (SIGINT, SIGTERM) for a K8s pod termination grace period
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting_down")

	// Timeout context for draining connections (align with K8s terminationGracePeriodSeconds)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown_error", zap.Error(err))
	}
	cleanup()

	// Flush logs before exit
	_ = logger.Sync()
}
