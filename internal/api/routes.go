package api

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers register endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}

	r.Get("/products", h.handleListProducts)
	r.Get("/products/search", h.handleSearchProducts)
	r.Get("/customers", h.handleListCustomers)
	r.Get("/customers/search", h.handleSearchCustomers)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.handleGetCart)
		r.Delete("/", h.handleClearCart)
		r.Post("/items", h.handleAddCartItem)
		r.Patch("/items/{id}", h.handleUpdateCartItem)
		r.Delete("/items/{id}", h.handleRemoveCartItem)
		r.Put("/customer", h.handleSetCustomer)
	})

	r.Get("/settings", h.handleGetSettings)
	r.Put("/settings", h.handleUpdateSettings)

	r.Post("/prices/fetch", h.handleFetchPrices)
	r.Post("/checkout", h.handleCheckout)
	r.Get("/sales/recent", h.handleRecentSales)

	r.Get("/sync/{collection}", h.handleSyncStatus)
	r.Post("/sync/{collection}", h.handleForceSync)
}
