package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/cache"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/kvstore"
	middleware "github.com/nimeshabuddhika/slot-payment-queue/pkg/middlewares"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/paymentqueue"
	"github.com/nimeshabuddhika/slot-payment-queue/services/booking-api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticLimiter bool

func (s staticLimiter) Allow(context.Context) bool { return bool(s) }

type bookingFixture struct {
	mr     *miniredis.Miniredis
	queue  *paymentqueue.Queue
	router *gin.Engine
}

func newBookingFixture(t *testing.T, cfg paymentqueue.Config, limiter middleware.Limiter) bookingFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	store := kvstore.NewRedisStore(zap.NewNop(), kvstore.NewConnector(cache.Config{Addr: mr.Addr()}))
	t.Cleanup(store.Close)
	scheduler := paymentqueue.NewTimerScheduler(zap.NewNop())
	t.Cleanup(scheduler.Close)
	queue := paymentqueue.NewQueue(zap.NewNop(), store, scheduler, cfg)

	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	NewPaymentHandler(zap.NewNop(), services.NewBookingService(zap.NewNop(), queue), limiter).RegisterRoutes(api)
	NewBaseHandler(zap.NewNop()).RegisterRoutes(r)
	return bookingFixture{mr: mr, queue: queue, router: r}
}

func (f bookingFixture) do(t *testing.T, method, path string, payload interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func (f bookingFixture) isActive(t *testing.T, key string) bool {
	t.Helper()
	active, err := f.queue.IsOrderActive(context.Background(), key)
	require.NoError(t, err)
	return active
}

func paymentPayload(orderID, slotID string) map[string]interface{} {
	return map[string]interface{}{
		"orderId":  orderID,
		"amount":   2500,
		"currency": "inr",
		"slotId":   slotID,
		"email":    "driver@example.com",
	}
}

func data(body map[string]interface{}) map[string]interface{} {
	d, _ := body["data"].(map[string]interface{})
	return d
}

func TestSubmitPayment_Success(t *testing.T) {
	// Arrange
	f := newBookingFixture(t, paymentqueue.Config{}, staticLimiter(true))

	// Act
	w, body := f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-07"))

	// Assert
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, w.Header().Get(pkg.HeaderTraceId))
	assert.Equal(t, "ord-1", data(body)["orderId"])
	assert.Equal(t, string(paymentqueue.AdmissionEnqueued), data(body)["admission"])
	assert.True(t, f.isActive(t, "ord-1"))
	assert.True(t, f.isActive(t, paymentqueue.SlotKey("P1-07")))

	env, ok, err := f.queue.DequeuePayment(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "INR", env.Currency)
}

func TestSubmitPayment_SlotAlreadyHeld_Conflict(t *testing.T) {
	f := newBookingFixture(t, paymentqueue.Config{}, staticLimiter(true))
	w, _ := f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-07"))
	require.Equal(t, http.StatusAccepted, w.Code)

	w, body := f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-2", "P1-07"))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, pkg.ErrSlotConflictCode.Code, body["code"])
	assert.False(t, f.isActive(t, "ord-2"))
}

func TestSubmitPayment_DuplicateOrderIsDeferred(t *testing.T) {
	f := newBookingFixture(t, paymentqueue.Config{}, staticLimiter(true))
	f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-07"))

	w, body := f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-08"))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, string(paymentqueue.AdmissionDeferred), data(body)["admission"])
}

func TestSubmitPayment_RejectedAdmissionReleasesSlot(t *testing.T) {
	f := newBookingFixture(t, paymentqueue.Config{MaxRequeueAttempts: -1}, staticLimiter(true))
	f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-07"))

	w, body := f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-08"))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, string(paymentqueue.AdmissionRejected), data(body)["admission"])
	assert.False(t, f.isActive(t, paymentqueue.SlotKey("P1-08")))
}

func TestSubmitPayment_InvalidBody(t *testing.T) {
	f := newBookingFixture(t, paymentqueue.Config{}, staticLimiter(true))
	payload := paymentPayload("ord-1", "P1-07")
	payload["amount"] = -10

	w, body := f.do(t, http.MethodPost, "/api/v1/payments", payload)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, pkg.ErrInvalidInputCode.Code, body["code"])
	assert.NotEmpty(t, body["details"])
	assert.False(t, f.isActive(t, paymentqueue.SlotKey("P1-07")))
}

func TestSubmitPayment_RateLimited(t *testing.T) {
	f := newBookingFixture(t, paymentqueue.Config{}, staticLimiter(false))

	w, body := f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-07"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, pkg.ErrRateLimitedCode.Code, body["code"])
}

func TestSubmitPayment_StoreUnavailable(t *testing.T) {
	f := newBookingFixture(t, paymentqueue.Config{}, staticLimiter(true))
	f.mr.Close()

	w, body := f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-07"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, pkg.ErrStoreUnavailableCode.Code, body["code"])
}

func TestCancelPayment_ReleasesOrderAndSlot(t *testing.T) {
	f := newBookingFixture(t, paymentqueue.Config{}, staticLimiter(true))
	f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-07"))

	w, _ := f.do(t, http.MethodPost, "/api/v1/payments/ord-1/cancel?slotId=P1-07", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, body := f.do(t, http.MethodGet, "/api/v1/payments/ord-1/active", nil)
	assert.Equal(t, false, data(body)["active"])
	assert.False(t, f.isActive(t, paymentqueue.SlotKey("P1-07")))

	// the slot is free for the next driver
	w, _ = f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-2", "P1-07"))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestCancelPayment_ResubmitLeavesOneQueuedEntry(t *testing.T) {
	f := newBookingFixture(t, paymentqueue.Config{}, staticLimiter(true))
	f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-07"))
	w, _ := f.do(t, http.MethodPost, "/api/v1/payments/ord-1/cancel?slotId=P1-07", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-07"))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, string(paymentqueue.AdmissionEnqueued), data(body)["admission"])

	stats, err := f.queue.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.QueueLength)
}

func TestSubmitPayment_DeferredThenRejectedFreesSlot(t *testing.T) {
	f := newBookingFixture(t, paymentqueue.Config{RequeueDelay: 20 * time.Millisecond}, staticLimiter(true))
	f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-07"))
	w, body := f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-08"))
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, string(paymentqueue.AdmissionDeferred), data(body)["admission"])

	assert.Eventually(t, func() bool {
		held, err := f.queue.IsOrderActive(context.Background(), paymentqueue.SlotKey("P1-08"))
		return err == nil && !held
	}, 2*time.Second, 10*time.Millisecond)

	w, _ = f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-9", "P1-08"))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestSubmitPayment_ReservedOrderIDPrefix(t *testing.T) {
	f := newBookingFixture(t, paymentqueue.Config{}, staticLimiter(true))

	w, body := f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("slot_P1-07", "P1-09"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, pkg.ErrInvalidInputCode.Code, body["code"])
	assert.False(t, f.isActive(t, paymentqueue.SlotKey("P1-09")))
}

func TestGetActive(t *testing.T) {
	f := newBookingFixture(t, paymentqueue.Config{}, staticLimiter(true))
	f.do(t, http.MethodPost, "/api/v1/payments", paymentPayload("ord-1", "P1-07"))

	w, body := f.do(t, http.MethodGet, "/api/v1/payments/ord-1/active", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, data(body)["active"])
}
