package api

import (
	"github.com/registerpos/registerd/internal/cart"
	"github.com/registerpos/registerd/internal/journal"
)

type listResponse[T any] struct {
	Items []T  `json:"items"`
	Stale bool `json:"stale,omitempty"`
}

type searchResponse[T any] struct {
	Query   string `json:"query"`
	Loading bool   `json:"loading"`
	Items   []T    `json:"items"`
}

type cartResponse struct {
	State   cart.State   `json:"state"`
	Summary cart.Summary `json:"summary"`
}

type addItemRequest struct {
	ProductID   string   `json:"product_id" validate:"required"`
	Qty         int      `json:"qty" validate:"omitempty,gt=0"`
	Unit        string   `json:"unit" validate:"omitempty,oneof=PCS CTN"`
	CustomPrice *float64 `json:"custom_price" validate:"omitempty,gt=0"`
}

type updateItemRequest struct {
	Qty         *int     `json:"qty" validate:"omitempty,gt=0"`
	Price       *float64 `json:"price" validate:"omitempty,gt=0"`
	CustomPrice *float64 `json:"custom_price" validate:"omitempty,gt=0"`
}

type setCustomerRequest struct {
	CustomerID string `json:"customer_id" validate:"required"`
}

type updateSettingsRequest struct {
	PricingStrategy string `json:"pricing_strategy" validate:"omitempty,oneof=default lastSoldPrice"`
	TaxMode         string `json:"tax_mode" validate:"omitempty,oneof=inclusive exclusive"`
	BranchID        string `json:"branch_id"`
}

type settingsResponse struct {
	PricingStrategy string `json:"pricing_strategy"`
	TaxMode         string `json:"tax_mode"`
	BranchID        string `json:"branch_id"`
}

type fetchPricesRequest struct {
	ProductIDs []string `json:"product_ids" validate:"required,min=1,dive,required"`
}

type fetchPricesResponse struct {
	Statuses map[string]string `json:"statuses"`
}

type salesResponse struct {
	Sales []journal.Sale `json:"sales"`
}

type syncResponse struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}
