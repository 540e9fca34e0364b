package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/paymentqueue"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/utils"
	"github.com/nimeshabuddhika/slot-payment-queue/services/payment-worker/internal/services"
	"go.uber.org/zap"
)

// WorkerController is the part of *services.WorkerPool the ops API drives.
type WorkerController interface {
	Start(ctx context.Context) bool
	Status() services.PoolStatus
}

// QueueInspector reports queue health. *paymentqueue.Queue satisfies it.
type QueueInspector interface {
	Stats(ctx context.Context) (paymentqueue.QueueStats, error)
}

// CleanupRunner runs one stale-entry sweep. *paymentqueue.Sweeper satisfies it.
type CleanupRunner interface {
	Sweep(ctx context.Context) (paymentqueue.SweepResult, error)
}

// OpsHandler exposes the operator surface: start workers, inspect, trigger cleanup.
type OpsHandler struct {
	// workerCtx outlives the request so loops started over HTTP keep running.
	workerCtx context.Context
	logger    *zap.Logger
	workers   WorkerController
	queue     QueueInspector
	sweeper   CleanupRunner
}

func NewOpsHandler(workerCtx context.Context, logger *zap.Logger, workers WorkerController, queue QueueInspector, sweeper CleanupRunner) *OpsHandler {
	return &OpsHandler{workerCtx: workerCtx, logger: logger, workers: workers, queue: queue, sweeper: sweeper}
}

// RegisterRoutes registers ops routes on the provided group.
func (h *OpsHandler) RegisterRoutes(r *gin.RouterGroup) {
	ops := r.Group("/ops")
	ops.POST("/workers/start", h.StartWorkers)
	ops.GET("/workers/status", h.GetStatus)
	ops.POST("/cleanup", h.RunCleanup)
}

func (h *OpsHandler) StartWorkers(c *gin.Context) {
	traceID, _ := utils.GetTraceID(c)
	started := h.workers.Start(h.workerCtx)
	h.logger.Info("start_workers_requested", zap.String(pkg.TraceId, traceID), zap.Bool("started", started))
	c.JSON(http.StatusOK, pkg.APIResponse{
		TraceID: traceID,
		Data:    map[string]interface{}{"started": started},
	})
}

func (h *OpsHandler) GetStatus(c *gin.Context) {
	traceID, _ := utils.GetTraceID(c)
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		resp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(resp.Status, resp)
		return
	}
	pool := h.workers.Status()
	c.JSON(http.StatusOK, pkg.APIResponse{
		TraceID: traceID,
		Data: map[string]interface{}{
			"queueLength":      stats.QueueLength,
			"activeOrders":     stats.ActiveOrders,
			"deadLetterLength": stats.DeadLetterLength,
			"workersStarted":   pool.Started,
			"loops":            pool.Loops,
		},
	})
}

func (h *OpsHandler) RunCleanup(c *gin.Context) {
	traceID, _ := utils.GetTraceID(c)
	res, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		resp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(resp.Status, resp)
		return
	}
	c.JSON(http.StatusOK, pkg.APIResponse{
		TraceID: traceID,
		Data: map[string]interface{}{
			"reclaimed": res.Reclaimed,
			"scanned":   res.Scanned,
			"purged":    res.Purged,
		},
	})
}
