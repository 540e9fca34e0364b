// Payment seeder: drives POST /api/v1/payments at a fixed rate to exercise
// slot conflicts, duplicate admission and the worker pool under load.
//
// Example:
//
//	go run ./services/booking-api/cmd/seed \
//	  -noOfPayments=2000 \
//	  -slots=50 \
//	  -duplicateEvery=10 \
//	  -rps=200 \
//	  -bookingApiUrl=http://localhost:8080
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/utils"
	"github.com/nimeshabuddhika/slot-payment-queue/services/booking-api/internal/views"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	noOfPayments          = flag.Int("noOfPayments", 100, "Total number of payments to submit")
	maxConcurrentRequests = flag.Int("maxConcurrentRequests", 10, "Max in-flight HTTP requests")
	slots                 = flag.Int("slots", 20, "Number of distinct parking slots to spread payments over")
	duplicateEvery        = flag.Int("duplicateEvery", 0, "Resubmit the previous order id every N payments (0 disables)")
	minAmount             = flag.Int64("minAmount", 1000, "Min amount in minor units")
	maxAmount             = flag.Int64("maxAmount", 5000, "Max amount in minor units")
	currency              = flag.String("currency", "INR", "ISO currency code")
	bookingApiURL         = flag.String("bookingApiUrl", "http://localhost:8080", "Booking API base URL")
	rps                   = flag.Int("rps", 100, "Requests per second for outbound POST /payments")
	rpsBurst              = flag.Int("rpsBurst", 0, "Limiter burst (0 => equals rps)")
	httpClientTimeoutMs   = flag.Int("httpClientTimeoutMs", 4000, "Total HTTP client timeout (ms)")
)

type Seeder struct {
	apiURL     string
	workers    int
	limiter    *rate.Limiter
	httpClient *http.Client
	ctx        context.Context
	logger     *zap.Logger

	sent        int64
	accepted    int64
	conflicts   int64
	rateLimited int64
	failed      int64
}

func main() {
	flag.Parse()

	pkg.InitLogger("payment-seeder")
	logger := pkg.Logger
	defer logger.Sync()

	if *rps <= 0 || *slots <= 0 {
		logger.Fatal("rps_and_slots_must_be_positive")
	}
	minA, maxA := *minAmount, *maxAmount
	if minA > maxA {
		minA, maxA = maxA, minA
	}
	burst := *rpsBurst
	if burst <= 0 {
		burst = *rps
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	seeder := &Seeder{
		apiURL:  *bookingApiURL,
		workers: *maxConcurrentRequests,
		limiter: rate.NewLimiter(rate.Limit(*rps), burst),
		httpClient: utils.NewHTTPClient(
			utils.WithTimeout(time.Duration(*httpClientTimeoutMs)*time.Millisecond),
			utils.WithIdleConns(*maxConcurrentRequests*2, *maxConcurrentRequests*2),
		),
		ctx:    ctx,
		logger: logger,
	}

	start := time.Now()
	logger.Info("start_seeding", zap.Int("no_of_payments", *noOfPayments), zap.Int("slots", *slots), zap.Int("rps", *rps))
	seeder.Run(buildRequests(*noOfPayments, *slots, *duplicateEvery, minA, maxA, *currency))
	logger.Info("seeding_completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int64("sent", seeder.sent),
		zap.Int64("accepted", seeder.accepted),
		zap.Int64("slot_conflicts", seeder.conflicts),
		zap.Int64("rate_limited", seeder.rateLimited),
		zap.Int64("failed", seeder.failed),
	)
}

func buildRequests(total, slotCount, duplicateEvery int, minA, maxA int64, cur string) []views.PaymentRequest {
	reqs := make([]views.PaymentRequest, 0, total)
	for i := 0; i < total; i++ {
		orderID := "ord_" + uuid.NewString()
		if duplicateEvery > 0 && i > 0 && i%duplicateEvery == 0 {
			orderID = reqs[i-1].OrderID
		}
		reqs = append(reqs, views.PaymentRequest{
			OrderID:  orderID,
			Amount:   minA + rand.Int63n(maxA-minA+1),
			Currency: cur,
			SlotID:   fmt.Sprintf("slot-%03d", i%slotCount),
			Email:    fmt.Sprintf("driver%d@example.com", i),
		})
	}
	return reqs
}

func (s *Seeder) Run(reqs []views.PaymentRequest) {
	jobs := make(chan views.PaymentRequest)

	var wg sync.WaitGroup
	wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go func() {
			defer wg.Done()
			for req := range jobs {
				// throttle by RPS before sending the request
				if err := s.limiter.Wait(s.ctx); err != nil {
					s.logger.Warn("limiter_wait_interrupted", zap.Error(err))
					return
				}
				s.submit(req)
			}
		}()
	}

feed:
	for _, req := range reqs {
		select {
		case <-s.ctx.Done():
			break feed
		case jobs <- req:
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *Seeder) submit(reqBody views.PaymentRequest) {
	start := time.Now()
	atomic.AddInt64(&s.sent, 1)

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.apiURL+"/api/v1/payments", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&s.failed, 1)
		s.logger.Error("build_request_failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(pkg.HeaderRequestId, uuid.NewString())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		atomic.AddInt64(&s.failed, 1)
		s.logger.Error("api_call_failed", zap.String(pkg.OrderId, reqBody.OrderID), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	fields := []zap.Field{
		zap.String(pkg.OrderId, reqBody.OrderID),
		zap.String(pkg.SlotId, reqBody.SlotID),
		zap.String(pkg.TraceId, resp.Header.Get(pkg.HeaderTraceId)),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	}
	switch resp.StatusCode {
	case http.StatusAccepted:
		atomic.AddInt64(&s.accepted, 1)
		s.logger.Info("payment_accepted", fields...)
	case http.StatusConflict:
		atomic.AddInt64(&s.conflicts, 1)
		s.logger.Warn("payment_slot_conflict", fields...)
	case http.StatusTooManyRequests:
		atomic.AddInt64(&s.rateLimited, 1)
		s.logger.Warn("payment_rate_limited", fields...)
	default:
		atomic.AddInt64(&s.failed, 1)
		s.logger.Error("payment_submit_failed", fields...)
	}
}
