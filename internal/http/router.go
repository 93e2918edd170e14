package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func NewRouter(basket *BasketHandler, products *ProductHandler, requestTimeout time.Duration, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", products.List)

		r.Route("/basket", func(r chi.Router) {
			r.Use(UserIDMiddleware)

			r.Get("/", basket.GetBasket)
			r.Delete("/", basket.ClearBasket)
			r.Post("/items", basket.AddItem)
			r.Put("/items/{item_id}", basket.UpdateQuantity)
			r.Delete("/items/{item_id}", basket.RemoveItem)
			r.Post("/coupon", basket.ApplyCoupon)
			r.Delete("/coupon", basket.RemoveCoupon)
			r.Put("/points", basket.SetPoints)
			r.Put("/shipping", basket.SetShipping)
			r.Post("/refresh", basket.Refresh)
		})
	})

	return otelhttp.NewHandler(r, "basket-service",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/health" }),
	)
}
