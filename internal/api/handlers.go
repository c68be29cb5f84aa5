// Package api exposes the register's local JSON API. One operator terminal
// talks to it; heavy lifting lives in the catalog caches and the cart.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/registerpos/registerd/internal/backend"
	"github.com/registerpos/registerd/internal/cart"
	"github.com/registerpos/registerd/internal/catalog"
	"github.com/registerpos/registerd/internal/checkout"
	"github.com/registerpos/registerd/internal/debounce"
	"github.com/registerpos/registerd/internal/fetchcache"
	"github.com/registerpos/registerd/internal/journal"
	"github.com/registerpos/registerd/internal/mirror"
	"github.com/registerpos/registerd/internal/observability"
	"github.com/registerpos/registerd/internal/platform/httpx"
	"github.com/registerpos/registerd/internal/search"
	"github.com/registerpos/registerd/internal/settings"
)

const defaultSearchLimit = 50

// CheckoutService finalizes the current cart into an invoice.
type CheckoutService interface {
	Checkout(ctx context.Context) (backend.Invoice, error)
}

// SalesReader lists recently journaled sales.
type SalesReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Sale, error)
}

// Handler coordinates HTTP requests for one register.
type Handler struct {
	logger   *slog.Logger
	validate *validator.Validate

	products  *fetchcache.Cache[catalog.Product]
	customers *fetchcache.Cache[catalog.Customer]

	productSearch  *search.Engine[catalog.Product]
	customerSearch *search.Engine[catalog.Customer]

	productSession  *debounce.Session[catalog.Product]
	customerSession *debounce.Session[catalog.Customer]

	cart     *cart.Cart
	prices   *cart.LastSoldCache
	fetcher  cart.PriceFetcher
	checkout CheckoutService
	settings *settings.Store
	sales    SalesReader
	metrics  *observability.Metrics
}

// HandlerParams groups dependencies for constructing the Handler.
type HandlerParams struct {
	Logger          *slog.Logger
	Products        *fetchcache.Cache[catalog.Product]
	Customers       *fetchcache.Cache[catalog.Customer]
	ProductSession  *debounce.Session[catalog.Product]
	CustomerSession *debounce.Session[catalog.Customer]
	Cart            *cart.Cart
	Prices          *cart.LastSoldCache
	PriceFetcher    cart.PriceFetcher
	Checkout        CheckoutService
	Settings        *settings.Store
	Sales           SalesReader
	Metrics         *observability.Metrics
}

// NewHandler constructs the register API handler.
func NewHandler(params HandlerParams) *Handler {
	return &Handler{
		logger:          params.Logger,
		validate:        validator.New(),
		products:        params.Products,
		customers:       params.Customers,
		productSearch:   search.NewEngine[catalog.Product](),
		customerSearch:  search.NewEngine[catalog.Customer](),
		productSession:  params.ProductSession,
		customerSession: params.CustomerSession,
		cart:            params.Cart,
		prices:          params.Prices,
		fetcher:         params.PriceFetcher,
		checkout:        params.Checkout,
		settings:        params.Settings,
		sales:           params.Sales,
		metrics:         params.Metrics,
	}
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	records, stale, err := h.readProducts(r.Context())
	if err != nil {
		h.respondReadError(w, "products", err)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	category := r.URL.Query().Get("category")
	limit := queryLimit(r, defaultSearchLimit)

	if query != "" {
		h.metrics.SearchQuery(mirror.CollectionProducts)
		records = h.productSearch.Query(records, h.products.Generation(), query, limit)
	} else if category != "" && category != mirror.CategoryAll {
		records = filterByCategory(records, category)
	}
	if len(records) > limit {
		records = records[:limit]
	}

	httpx.JSON(w, http.StatusOK, listResponse[catalog.Product]{Items: records, Stale: stale})
}

func (h *Handler) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	h.productSession.Input(query)
	httpx.JSON(w, http.StatusOK, searchResponse[catalog.Product]{
		Query:   query,
		Loading: h.productSession.Loading(),
		Items:   h.productSession.Results(),
	})
}

func (h *Handler) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	records, stale, err := h.readCustomers(r.Context())
	if err != nil {
		h.respondReadError(w, "customers", err)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := queryLimit(r, defaultSearchLimit)
	if query != "" {
		h.metrics.SearchQuery(mirror.CollectionCustomers)
		records = h.customerSearch.Query(records, h.customers.Generation(), query, limit)
	}
	if len(records) > limit {
		records = records[:limit]
	}

	httpx.JSON(w, http.StatusOK, listResponse[catalog.Customer]{Items: records, Stale: stale})
}

func (h *Handler) handleSearchCustomers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	h.customerSession.Input(query)
	httpx.JSON(w, http.StatusOK, searchResponse[catalog.Customer]{
		Query:   query,
		Loading: h.customerSession.Loading(),
		Items:   h.customerSession.Results(),
	})
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, cartResponse{
		State:   h.cart.Snapshot(),
		Summary: h.cart.Summary(),
	})
}

func (h *Handler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, "malformed body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	product, ok, err := h.findProduct(r.Context(), req.ProductID)
	if err != nil {
		h.respondReadError(w, "products", err)
		return
	}
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: product %s", httpx.ErrNotFound, req.ProductID))
		return
	}

	line := h.cart.Add(r.Context(), product, cart.AddOptions{
		Qty:         req.Qty,
		Unit:        req.Unit,
		CustomPrice: req.CustomPrice,
	})
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, "malformed body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	update := cart.LineUpdate{
		Qty:         req.Qty,
		CustomPrice: req.CustomPrice,
		Price:       req.Price,
	}
	if unit := r.URL.Query().Get("unit"); unit != "" {
		h.cart.UpdateUnit(id, unit, update)
	} else {
		h.cart.Update(id, update)
	}
	h.handleGetCart(w, r)
}

func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	unit := r.URL.Query().Get("unit")
	if unit == "" {
		unit = catalog.UnitPiece
	}
	h.cart.Remove(id, unit)
	h.handleGetCart(w, r)
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	h.cart.Clear()
	h.handleGetCart(w, r)
}

func (h *Handler) handleSetCustomer(w http.ResponseWriter, r *http.Request) {
	var req setCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, "malformed body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	h.cart.SetCustomer(req.CustomerID)
	h.handleGetCart(w, r)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	strategy, err := h.settings.PricingStrategy(ctx)
	if err != nil {
		h.respondServerError(w, "read settings", err)
		return
	}
	mode, err := h.settings.TaxMode(ctx)
	if err != nil {
		h.respondServerError(w, "read settings", err)
		return
	}
	branch, err := h.settings.Branch(ctx, h.cart.Snapshot().BranchID)
	if err != nil {
		h.respondServerError(w, "read settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, settingsResponse{
		PricingStrategy: string(strategy),
		TaxMode:         string(mode),
		BranchID:        branch,
	})
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, "malformed body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	ctx := r.Context()
	if req.PricingStrategy != "" {
		strategy := cart.PricingStrategy(req.PricingStrategy)
		if err := h.settings.SetPricingStrategy(ctx, strategy); err != nil {
			h.respondServerError(w, "save settings", err)
			return
		}
		h.cart.SetStrategy(strategy)
	}
	if req.TaxMode != "" {
		mode := cart.TaxMode(req.TaxMode)
		if err := h.settings.SetTaxMode(ctx, mode); err != nil {
			h.respondServerError(w, "save settings", err)
			return
		}
		h.cart.SetTaxMode(mode)
	}
	if req.BranchID != "" {
		if err := h.settings.SetBranch(ctx, req.BranchID); err != nil {
			h.respondServerError(w, "save settings", err)
			return
		}
		h.cart.SetBranch(req.BranchID)
	}
	h.handleGetSettings(w, r)
}

func (h *Handler) handleFetchPrices(w http.ResponseWriter, r *http.Request) {
	var req fetchPricesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, "malformed body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}

	// Dispatch off the request path so the UI can poll the loading state
	// instead of blocking on the backend round-trip.
	branchID := h.cart.Snapshot().BranchID
	fetchCtx := context.WithoutCancel(r.Context())
	go h.prices.Fetch(fetchCtx, h.fetcher, req.ProductIDs, branchID)

	statuses := make(map[string]string, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		state, ok := h.prices.Status(id)
		if !ok {
			state = cart.FetchLoading
		}
		statuses[id] = string(state)
	}
	httpx.JSON(w, http.StatusAccepted, fetchPricesResponse{Statuses: statuses})
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	invoice, err := h.checkout.Checkout(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, checkout.ErrNoCustomer):
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		default:
			h.logger.Error("checkout failed", slog.Any("error", err))
			httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnavailable, err))
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) handleRecentSales(w http.ResponseWriter, r *http.Request) {
	if h.sales == nil {
		httpx.JSON(w, http.StatusOK, salesResponse{})
		return
	}
	sales, err := h.sales.Recent(r.Context(), queryLimit(r, 20))
	if err != nil {
		h.respondServerError(w, "recent sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, salesResponse{Sales: sales})
}

func (h *Handler) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	var (
		meta mirror.Meta
		err  error
	)
	switch collection {
	case mirror.CollectionProducts:
		meta, err = h.products.Meta(r.Context())
	case mirror.CollectionCustomers:
		meta, err = h.customers.Meta(r.Context())
	default:
		httpx.RespondError(w, fmt.Errorf("%w: collection %s", httpx.ErrNotFound, collection))
		return
	}
	if err != nil {
		h.respondServerError(w, "sync status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, meta)
}

func (h *Handler) handleForceSync(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	var (
		count int
		err   error
	)
	switch collection {
	case mirror.CollectionProducts:
		var records []catalog.Product
		records, err = h.products.ForceSync(r.Context())
		count = len(records)
	case mirror.CollectionCustomers:
		var records []catalog.Customer
		records, err = h.customers.ForceSync(r.Context())
		count = len(records)
	default:
		httpx.RespondError(w, fmt.Errorf("%w: collection %s", httpx.ErrNotFound, collection))
		return
	}
	if err != nil {
		h.logger.Warn("force sync failed",
			slog.String("collection", collection), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnavailable, err))
		return
	}
	httpx.JSON(w, http.StatusOK, syncResponse{Collection: collection, Count: count})
}

// ForceSyncCollection satisfies the worker's refresh contract.
func (h *Handler) ForceSyncCollection(ctx context.Context, collection string) error {
	switch collection {
	case mirror.CollectionProducts:
		_, err := h.products.ForceSync(ctx)
		return err
	case mirror.CollectionCustomers:
		_, err := h.customers.ForceSync(ctx)
		return err
	default:
		return fmt.Errorf("api: unknown collection %s", collection)
	}
}

func (h *Handler) readProducts(ctx context.Context) ([]catalog.Product, bool, error) {
	records, err := h.products.Read(ctx)
	switch {
	case err == nil:
		h.metrics.CacheRead(mirror.CollectionProducts, "fresh")
		return records, false, nil
	case errors.Is(err, fetchcache.ErrStaleData):
		h.metrics.CacheRead(mirror.CollectionProducts, "stale")
		return records, true, nil
	default:
		h.metrics.CacheRead(mirror.CollectionProducts, "error")
		return nil, false, err
	}
}

func (h *Handler) readCustomers(ctx context.Context) ([]catalog.Customer, bool, error) {
	records, err := h.customers.Read(ctx)
	switch {
	case err == nil:
		h.metrics.CacheRead(mirror.CollectionCustomers, "fresh")
		return records, false, nil
	case errors.Is(err, fetchcache.ErrStaleData):
		h.metrics.CacheRead(mirror.CollectionCustomers, "stale")
		return records, true, nil
	default:
		h.metrics.CacheRead(mirror.CollectionCustomers, "error")
		return nil, false, err
	}
}

func (h *Handler) findProduct(ctx context.Context, id string) (catalog.Product, bool, error) {
	records, _, err := h.readProducts(ctx)
	if err != nil {
		return catalog.Product{}, false, err
	}
	for _, p := range records {
		if p.ID == id {
			return p, true, nil
		}
	}
	return catalog.Product{}, false, nil
}

func (h *Handler) respondReadError(w http.ResponseWriter, collection string, err error) {
	h.logger.Warn("collection read failed",
		slog.String("collection", collection), slog.Any("error", err))
	httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnavailable, err))
}

func (h *Handler) respondServerError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func filterByCategory(records []catalog.Product, category string) []catalog.Product {
	var out []catalog.Product
	for _, p := range records {
		if p.Category() == category {
			out = append(out, p)
		}
	}
	return out
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
