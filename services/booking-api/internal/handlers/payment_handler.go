package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
	middleware "github.com/nimeshabuddhika/slot-payment-queue/pkg/middlewares"
	"github.com/nimeshabuddhika/slot-payment-queue/services/booking-api/internal/services"
	"github.com/nimeshabuddhika/slot-payment-queue/services/booking-api/internal/views"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	logger  *zap.Logger
	service services.BookingService
	limiter middleware.Limiter
}

func NewPaymentHandler(logger *zap.Logger, svc services.BookingService, limiter middleware.Limiter) *PaymentHandler {
	return &PaymentHandler{logger: logger, service: svc, limiter: limiter}
}

// RegisterRoutes registers payment routes on the provided group. Only submission is rate limited.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments", middleware.RateLimit(h.limiter, h.logger), h.SubmitPayment)
	r.POST("/payments/:orderId/cancel", h.CancelPayment)
	r.GET("/payments/:orderId/active", h.GetActive)
}

func (h *PaymentHandler) SubmitPayment(c *gin.Context) {
	traceID := c.GetString(pkg.TraceId)

	var req views.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp := pkg.ToErrorResponse(h.logger, traceID, pkg.NewAppError(pkg.ErrInvalidInputCode, "invalid request body", err))
		c.JSON(resp.Status, resp)
		return
	}

	admission, err := h.service.SubmitPayment(c.Request.Context(), traceID, req.ToEnvelope())
	if err != nil {
		resp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(resp.Status, resp)
		return
	}

	c.JSON(http.StatusAccepted, pkg.APIResponse{
		TraceID: traceID,
		Data: map[string]interface{}{
			"orderId":   req.OrderID,
			"admission": admission,
		},
	})
}

func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	traceID := c.GetString(pkg.TraceId)
	orderID := c.Param("orderId")

	if err := h.service.CancelPayment(c.Request.Context(), traceID, orderID, c.Query("slotId")); err != nil {
		resp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(resp.Status, resp)
		return
	}
	c.JSON(http.StatusOK, pkg.APIResponse{
		TraceID: traceID,
		Data:    map[string]interface{}{"orderId": orderID, "released": true},
	})
}

func (h *PaymentHandler) GetActive(c *gin.Context) {
	traceID := c.GetString(pkg.TraceId)
	orderID := c.Param("orderId")

	active, err := h.service.IsPaymentActive(c.Request.Context(), orderID)
	if err != nil {
		resp := pkg.ToErrorResponse(h.logger, traceID, err)
		c.JSON(resp.Status, resp)
		return
	}
	c.JSON(http.StatusOK, pkg.APIResponse{
		TraceID: traceID,
		Data:    map[string]interface{}{"orderId": orderID, "active": active},
	})
}
