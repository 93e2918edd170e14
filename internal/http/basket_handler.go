package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/basket-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxRequestBodySize = 1 << 20 // 1MB

type BasketService interface {
	GetBasket(ctx context.Context, userID string) (*domain.Basket, error)
	AddItem(ctx context.Context, userID, productID string, quantity int, options map[string]string) (*domain.Basket, error)
	UpdateItemQuantity(ctx context.Context, userID, itemID string, quantity int) (*domain.Basket, error)
	RemoveItem(ctx context.Context, userID, itemID string) (*domain.Basket, error)
	Clear(ctx context.Context, userID string) (*domain.Basket, error)
	ApplyCoupon(ctx context.Context, userID, code string) (*domain.Basket, error)
	RemoveCoupon(ctx context.Context, userID string) (*domain.Basket, error)
	SetPoints(ctx context.Context, userID string, points int) (*domain.Basket, error)
	SetShipping(ctx context.Context, userID, method string) (*domain.Basket, error)
	Refresh(ctx context.Context, userID string) (*domain.Basket, error)
}

type BasketHandler struct {
	svc     BasketService
	timeout time.Duration
	log     *zap.Logger
}

func NewBasketHandler(svc BasketService, timeout time.Duration, log *zap.Logger) *BasketHandler {
	return &BasketHandler{
		svc:     svc,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Options   map[string]string `json:"options,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type ApplyCouponRequestDTO struct {
	Code string `json:"code"`
}

type SetPointsRequestDTO struct {
	Points *int `json:"points"`
}

type SetShippingRequestDTO struct {
	Method string `json:"method"`
}

type BasketItemResponse struct {
	ID        string            `json:"id"`
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Options   map[string]string `json:"options,omitempty"`
	AddedAt   time.Time         `json:"added_at"`
}

type BasketResponse struct {
	ID             string               `json:"id"`
	UserID         string               `json:"user_id"`
	Items          []BasketItemResponse `json:"items"`
	Subtotal       float64              `json:"subtotal"`
	Discount       float64              `json:"discount"`
	CouponID       string               `json:"coupon_id,omitempty"`
	PointsToUse    int                  `json:"points_to_use"`
	ShippingMethod string               `json:"shipping_method,omitempty"`
	ShippingCost   float64              `json:"shipping_cost"`
	Total          float64              `json:"total"`
	LastUpdated    time.Time            `json:"last_updated"`
}

func toBasketResponse(b *domain.Basket) BasketResponse {
	items := make([]BasketItemResponse, len(b.Items))
	for i, it := range b.Items {
		items[i] = BasketItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Options:   it.Options,
			AddedAt:   it.AddedAt,
		}
	}
	return BasketResponse{
		ID:             b.ID,
		UserID:         b.UserID,
		Items:          items,
		Subtotal:       b.Subtotal,
		Discount:       b.Discount,
		CouponID:       b.CouponID,
		PointsToUse:    b.PointsToUse,
		ShippingMethod: b.ShippingMethod,
		ShippingCost:   b.ShippingCost,
		Total:          b.Total,
		LastUpdated:    b.LastUpdated,
	}
}

func (h *BasketHandler) GetBasket(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Basket, error) {
		return h.svc.GetBasket(ctx, userID)
	})
}

func (h *BasketHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	h.serve(w, r, http.StatusCreated, func(ctx context.Context, userID string) (*domain.Basket, error) {
		return h.svc.AddItem(ctx, userID, req.ProductID, req.Quantity, req.Options)
	})
}

// UpdateQuantity sets the quantity of an item. A quantity of zero or less
// removes it.
func (h *BasketHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	var req UpdateQuantityRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Basket, error) {
		return h.svc.UpdateItemQuantity(ctx, userID, itemID, *req.Quantity)
	})
}

func (h *BasketHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Basket, error) {
		return h.svc.RemoveItem(ctx, userID, itemID)
	})
}

func (h *BasketHandler) ClearBasket(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Basket, error) {
		return h.svc.Clear(ctx, userID)
	})
}

func (h *BasketHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req ApplyCouponRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		respondError(w, http.StatusBadRequest, "invalid_coupon_code", "code is required")
		return
	}

	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Basket, error) {
		return h.svc.ApplyCoupon(ctx, userID, req.Code)
	})
}

func (h *BasketHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Basket, error) {
		return h.svc.RemoveCoupon(ctx, userID)
	})
}

func (h *BasketHandler) SetPoints(w http.ResponseWriter, r *http.Request) {
	var req SetPointsRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Points == nil {
		respondError(w, http.StatusBadRequest, "invalid_points", "points is required")
		return
	}

	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Basket, error) {
		return h.svc.SetPoints(ctx, userID, *req.Points)
	})
}

func (h *BasketHandler) SetShipping(w http.ResponseWriter, r *http.Request) {
	var req SetShippingRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}

	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Basket, error) {
		return h.svc.SetShipping(ctx, userID, strings.ToLower(strings.TrimSpace(req.Method)))
	})
}

func (h *BasketHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, http.StatusOK, func(ctx context.Context, userID string) (*domain.Basket, error) {
		return h.svc.Refresh(ctx, userID)
	})
}

// serve runs call for the authenticated user under the handler timeout and
// writes the resulting basket.
func (h *BasketHandler) serve(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	call func(ctx context.Context, userID string) (*domain.Basket, error)) {

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	basket, err := call(ctx, userID)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}

	respondJSON(w, status, toBasketResponse(basket))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
