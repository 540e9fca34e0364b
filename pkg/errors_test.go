package pkg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestToErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"app error keeps its code", NewAppError(ErrInvalidInputCode, "invalid request body", errors.New("amount")), http.StatusBadRequest, ErrInvalidInputCode.Code},
		{"wrapped store outage", fmt.Errorf("%w: SADD: dial tcp", ErrStoreUnavailable), http.StatusServiceUnavailable, ErrStoreUnavailableCode.Code},
		{"bare slot conflict", ErrSlotConflict, http.StatusConflict, ErrSlotConflictCode.Code},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, ErrServerCode.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ToErrorResponse(zap.NewNop(), "trace-1", tt.err)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestHandleSQLError(t *testing.T) {
	var appErr AppError

	err := HandleSQLError(zap.NewNop(), "ord-1", pgx.ErrNoRows)
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrRecordNotFoundCode, appErr.Code)

	err = HandleSQLError(zap.NewNop(), "ord-1", &pgconn.PgError{Code: "23505"})
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrSQLDuplicateCode, appErr.Code)
	assert.ErrorIs(t, err, SqlError)

	err = HandleSQLError(zap.NewNop(), "ord-1", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
