package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/cache"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/kvstore"
	middleware "github.com/nimeshabuddhika/slot-payment-queue/pkg/middlewares"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/paymentqueue"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/views"
	"github.com/nimeshabuddhika/slot-payment-queue/services/payment-worker/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWorkers struct {
	mu      sync.Mutex
	started bool
}

func (f *fakeWorkers) Start(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return false
	}
	f.started = true
	return true
}

func (f *fakeWorkers) Status() services.PoolStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return services.PoolStatus{Started: f.started, Loops: []services.LoopStatus{{ID: 0, State: services.LoopRunning}}}
}

type opsFixture struct {
	mr     *miniredis.Miniredis
	queue  *paymentqueue.Queue
	router *gin.Engine
}

func newOpsFixture(t *testing.T) opsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStore(zap.NewNop(), kvstore.NewConnector(cache.Config{Addr: mr.Addr()}))
	t.Cleanup(store.Close)
	scheduler := paymentqueue.NewTimerScheduler(zap.NewNop())
	t.Cleanup(scheduler.Close)
	queue := paymentqueue.NewQueue(zap.NewNop(), store, scheduler, paymentqueue.Config{})
	sweeper := paymentqueue.NewSweeper(zap.NewNop(), queue, 30*time.Minute)

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	NewOpsHandler(context.Background(), zap.NewNop(), &fakeWorkers{}, queue, sweeper).RegisterRoutes(api)
	NewBaseHandler(zap.NewNop()).RegisterRoutes(r)
	return opsFixture{mr: mr, queue: queue, router: r}
}

func (f opsFixture) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	f.router.ServeHTTP(w, req)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func (f opsFixture) enqueue(t *testing.T, orderID string) {
	t.Helper()
	env := views.PaymentEnvelope{OrderID: orderID, Amount: 100, Currency: "INR", SlotID: "B-" + orderID, Email: "ops@example.com"}
	admission, err := f.queue.EnqueuePayment(context.Background(), env)
	require.NoError(t, err)
	require.Equal(t, paymentqueue.AdmissionEnqueued, admission)
}

func TestOpsHandler_StartWorkers_ReportsFalseWhenAlreadyRunning(t *testing.T) {
	f := newOpsFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/v1/ops/workers/start")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["data"].(map[string]interface{})["started"])
	assert.NotEmpty(t, w.Header().Get(pkg.HeaderTraceId))

	_, body = f.do(t, http.MethodPost, "/api/v1/ops/workers/start")
	assert.Equal(t, false, body["data"].(map[string]interface{})["started"])
}

func TestOpsHandler_GetStatus(t *testing.T) {
	f := newOpsFixture(t)
	f.enqueue(t, "o1")
	f.enqueue(t, "o2")

	w, body := f.do(t, http.MethodGet, "/api/v1/ops/workers/status")

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["queueLength"])
	assert.EqualValues(t, 2, data["activeOrders"])
	assert.EqualValues(t, 0, data["deadLetterLength"])
	assert.Len(t, data["loops"], 1)
}

func TestOpsHandler_RunCleanup_ReclaimsEntryWithoutTimestamp(t *testing.T) {
	f := newOpsFixture(t)
	f.enqueue(t, "fresh")
	f.enqueue(t, "orphan")
	f.mr.Del(paymentqueue.DefaultKeys.ActiveSincePrefix + "orphan")

	w, body := f.do(t, http.MethodPost, "/api/v1/ops/cleanup")

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["reclaimed"])
	assert.EqualValues(t, 2, data["scanned"])
	active, err := f.queue.IsOrderActive(context.Background(), "orphan")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestOpsHandler_GetStatus_StoreUnavailable(t *testing.T) {
	f := newOpsFixture(t)
	f.mr.Close()

	w, body := f.do(t, http.MethodGet, "/api/v1/ops/workers/status")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, pkg.ErrStoreUnavailableCode.Code, body["code"])
}

func TestBaseHandler_Health(t *testing.T) {
	f := newOpsFixture(t)

	w, body := f.do(t, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}
