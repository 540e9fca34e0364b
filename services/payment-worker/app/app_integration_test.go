//go:build integration

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/cache"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/database"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/kvstore"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/paymentqueue"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/repositories"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/testutils"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPaymentWorker_ProcessesQueuedPaymentsEndToEnd(t *testing.T) {
	// Arrange
	gin.SetMode(gin.TestMode)
	redisAddr := testutils.StartRedis(t)
	dsn := testutils.StartPostgres(t)
	port := testutils.GetFreePort(t)

	_ = os.Setenv("APP_PORT", fmt.Sprintf("%d", port))
	_ = os.Setenv("APP_REDIS_ADDR", redisAddr)
	_ = os.Setenv("APP_PRIMARY_DB_ADDR", dsn)
	_ = os.Setenv("APP_POLL_INTERVAL", "50ms")
	t.Cleanup(func() {
		_ = os.Unsetenv("APP_PORT")
		_ = os.Unsetenv("APP_REDIS_ADDR")
		_ = os.Unsetenv("APP_PRIMARY_DB_ADDR")
		_ = os.Unsetenv("APP_POLL_INTERVAL")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, cleanup, err := NewApp(ctx, zap.NewNop())
	require.NoError(t, err)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Errorf("server error: %v", err)
		}
	}()
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		cleanup()
	})

	store := kvstore.NewRedisStore(zap.NewNop(), kvstore.NewConnector(cache.Config{Addr: redisAddr}))
	t.Cleanup(store.Close)
	scheduler := paymentqueue.NewTimerScheduler(zap.NewNop())
	t.Cleanup(scheduler.Close)
	queue := paymentqueue.NewQueue(zap.NewNop(), store, scheduler, paymentqueue.Config{})

	// Act
	for i := 1; i <= 3; i++ {
		env := views.PaymentEnvelope{OrderID: fmt.Sprintf("ord-%d", i), Amount: int64(1000 * i), Currency: "INR", SlotID: fmt.Sprintf("S-%d", i), Email: "driver@example.com"}
		_, err := queue.AcquireSlot(ctx, env.SlotID)
		require.NoError(t, err)
		admission, err := queue.EnqueuePayment(ctx, env)
		require.NoError(t, err)
		require.Equal(t, paymentqueue.AdmissionEnqueued, admission)
	}

	// Assert
	db, disconnect, err := database.New(ctx, zap.NewNop(), database.Config{PrimaryDSN: dsn, MaxConns: 2, MinConns: 1})
	require.NoError(t, err)
	defer disconnect()
	repo := repositories.NewPaymentRepository()
	assert.Eventually(t, func() bool {
		for i := 1; i <= 3; i++ {
			p, err := repo.FindByID(ctx, db, fmt.Sprintf("ord-%d", i))
			if err != nil || !p.Completed {
				return false
			}
		}
		return true
	}, 30*time.Second, 200*time.Millisecond)

	assert.Eventually(t, func() bool {
		stats, err := queue.Stats(ctx)
		return err == nil && stats.ActiveOrders == 0 && stats.QueueLength == 0
	}, 10*time.Second, 100*time.Millisecond)

	resp, err := testutils.Do(t, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d/api/v1/ops/workers/status", port))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, testutils.GetTraceId(resp))
	out, err := testutils.DecodeSuccess(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, true, out.Data["workersStarted"])
}
