package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/basket-service/internal/logger"
	"github.com/fjod/basket-service/internal/service"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Error: &errorBody{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// handleServiceError converts service errors to HTTP status codes.
// Unexpected errors are logged and reported without detail.
func handleServiceError(ctx context.Context, log *zap.Logger, w http.ResponseWriter, err error) {
	var (
		status  int
		code    string
		message = err.Error()
	)

	switch {
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidPoints),
		errors.Is(err, service.ErrUnknownShippingMethod):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, service.ErrItemNotFound):
		status, code = http.StatusNotFound, "item_not_found"
	case errors.Is(err, service.ErrCouponNotFound):
		status, code = http.StatusNotFound, "coupon_not_found"
	case errors.Is(err, service.ErrProductUnavailable):
		status, code = http.StatusUnprocessableEntity, "product_unavailable"
	case errors.Is(err, service.ErrCouponInvalid),
		errors.Is(err, service.ErrCouponMinOrder):
		status, code = http.StatusUnprocessableEntity, "coupon_not_applicable"
	case errors.Is(err, service.ErrConcurrentUpdate):
		status, code = http.StatusConflict, "concurrent_update"
	case errors.Is(err, service.ErrCatalogUnavailable):
		status, code = http.StatusServiceUnavailable, "catalog_unavailable"
		message = "product catalog is unavailable, retry later"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
		message = "request timed out"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
		message = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		logger.WithContext(ctx, log).Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	respondError(w, status, code, message)
}
