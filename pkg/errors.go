package pkg

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

var ExposeErrorDetails = false

func init() {
	if gin.DebugMode == gin.Mode() || gin.TestMode == gin.Mode() {
		ExposeErrorDetails = true
	}
}

// Reusable errors
var (
	SqlError = errors.New("sql error")

	// ErrStoreUnavailable is returned when the key-value store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDuplicateOrder is returned when an order is already held in the active-order set.
	ErrDuplicateOrder = errors.New("duplicate order")
	// ErrProcessingTimeout is returned when a processing attempt exceeds its deadline.
	ErrProcessingTimeout = errors.New("processing timeout")
	// ErrProcessingFailure wraps any failure while persisting a payment.
	ErrProcessingFailure = errors.New("processing failure")
	// ErrWorkerPoolExhausted is returned by a worker loop that hit its consecutive failure threshold.
	ErrWorkerPoolExhausted = errors.New("worker pool exhausted")
	// ErrMalformedEnvelope is returned when a queued entry cannot be decoded.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrSlotConflict is returned when a slot already has a payment in flight.
	ErrSlotConflict = errors.New("slot conflict")
)

// ErrorCode defines a standardized error code
type ErrorCode struct {
	Code    string
	Status  int
	Message string // default message
}

var (
	// Generic app
	ErrInvalidInputCode   = ErrorCode{Code: "APP_INVALID_INPUT", Status: http.StatusBadRequest, Message: "invalid input"}
	ErrServerCode         = ErrorCode{Code: "APP_INTERNAL", Status: http.StatusInternalServerError, Message: "internal server error"}
	ErrRecordNotFoundCode = ErrorCode{Code: "APP_NOT_FOUND", Status: http.StatusNotFound, Message: "record not found"}
	ErrRateLimitedCode    = ErrorCode{Code: "APP_RATE_LIMITED", Status: http.StatusTooManyRequests, Message: "too many requests"}

	// Business/domain rules
	ErrSlotConflictCode = ErrorCode{Code: "BUSINESS_SLOT_CONFLICT", Status: http.StatusConflict, Message: "slot already has a payment in progress"}

	// Infrastructure
	ErrStoreUnavailableCode = ErrorCode{Code: "STORE_UNAVAILABLE", Status: http.StatusServiceUnavailable, Message: "queue store unavailable"}

	// SQL layer
	ErrSQLUnknownCode   = ErrorCode{Code: "SQL_UNKNOWN", Status: http.StatusInternalServerError, Message: "sql error"}
	ErrSQLDuplicateCode = ErrorCode{Code: "SQL_DUPLICATE", Status: http.StatusConflict, Message: "duplicate record"}
	ErrSQLInvalidInput  = ErrorCode{Code: "SQL_INVALID_INPUT", Status: http.StatusBadRequest, Message: "invalid input"}
)

type AppError struct {
	Code    ErrorCode
	Message string // public-facing message
	Cause   error  // internal cause (wrapped)
}

func (e AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}
func (e AppError) Unwrap() error { return e.Cause }

func NewAppError(code ErrorCode, msg string, cause error) error {
	return AppError{Code: code, Message: msg, Cause: cause}
}

// ErrorResponse defines the standardized error response format
type ErrorResponse struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ToErrorResponse converts an error into an ErrorResponse, logging details and optionally exposing error messages.
// Sentinel errors without an AppError wrapper are mapped by kind; anything else becomes a generic 500.
func ToErrorResponse(logger *zap.Logger, traceID string, err error) ErrorResponse {
	var appErr AppError
	if !errors.As(err, &appErr) {
		switch {
		case errors.Is(err, ErrStoreUnavailable):
			appErr = AppError{Code: ErrStoreUnavailableCode, Message: ErrStoreUnavailableCode.Message, Cause: err}
		case errors.Is(err, ErrSlotConflict):
			appErr = AppError{Code: ErrSlotConflictCode, Message: ErrSlotConflictCode.Message, Cause: err}
		default:
			appErr = AppError{Code: ErrServerCode, Message: ErrServerCode.Message, Cause: err}
		}
	}
	resp := ErrorResponse{
		Status:  appErr.Code.Status,
		Code:    appErr.Code.Code,
		Message: appErr.Message,
	}
	logger.Error("application error", zap.String(TraceId, traceID), zap.Error(err))
	if ExposeErrorDetails {
		resp.Details = err.Error()
	}
	return resp
}

// HandleSQLError maps pg errors -> AppError with proper codes/status
func HandleSQLError(logger *zap.Logger, orderID string, err error) error {
	var pgErr *pgconn.PgError
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Warn("sql error : no records found", zap.String(OrderId, orderID))
		return NewAppError(ErrRecordNotFoundCode, "no records found", err)
	}
	if !errors.As(err, &pgErr) {
		logger.Error("sql error : unknown", zap.String(OrderId, orderID), zap.Error(err))
		return NewAppError(ErrSQLUnknownCode, "sql error", err)
	}

	logger.Error("sql error",
		zap.String(OrderId, orderID),
		zap.String("code", pgErr.Code),
		zap.String("message", pgErr.Message),
		zap.String("detail", pgErr.Detail),
		zap.String("table", pgErr.TableName),
		zap.String("constraint", pgErr.ConstraintName),
	)

	switch pgErr.Code {
	case "23505": // unique_violation
		return NewAppError(ErrSQLDuplicateCode, "duplicate value violates unique constraint", SqlError)
	case "22001": // string_data_right_truncation
		return NewAppError(ErrSQLInvalidInput, "value too long for column", SqlError)
	case "22003": // numeric_value_out_of_range
		return NewAppError(ErrSQLInvalidInput, "numeric value out of range", SqlError)
	default:
		return NewAppError(ErrSQLUnknownCode, "sql error", SqlError)
	}
}
