package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/basket-service/internal/domain"
	"go.uber.org/zap"
)

type ProductLister interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type ProductHandler struct {
	products ProductLister
	timeout  time.Duration
	log      *zap.Logger
}

func NewProductHandler(products ProductLister, timeout time.Duration, log *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		timeout:  timeout,
		log:      log,
	}
}

type ProductResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Price          float64  `json:"price"`
	DiscountPrice  *float64 `json:"discount_price,omitempty"`
	EffectivePrice float64  `json:"effective_price"`
	ImageURL       string   `json:"image_url"`
}

type ProductsResponse struct {
	Products []ProductResponse `json:"products"`
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.products.ListProducts(ctx)
	if err != nil {
		handleServiceError(ctx, h.log, w, err)
		return
	}

	products := make([]ProductResponse, len(res))
	for i, p := range res {
		products[i] = ProductResponse{
			ID:             p.ID,
			Name:           p.Name,
			Description:    p.Description,
			Price:          p.Price,
			DiscountPrice:  p.DiscountPrice,
			EffectivePrice: p.EffectivePrice(),
			ImageURL:       p.ImageURL,
		}
	}

	respondJSON(w, http.StatusOK, &ProductsResponse{Products: products})
}
