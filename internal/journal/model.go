// Package journal keeps a local record of every sale completed on this
// register, so recent history survives backend outages.
package journal

import "time"

// SaleLine is the persisted form of one sold cart line.
type SaleLine struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Qty       int     `json:"qty"`
	Unit      string  `json:"unit"`
}

// Sale is one completed checkout.
type Sale struct {
	ID            int64      `json:"id"`
	Reference     string     `json:"reference"`
	InvoiceID     string     `json:"invoice_id"`
	InvoiceNumber string     `json:"invoice_number"`
	CustomerID    string     `json:"customer_id"`
	BranchID      string     `json:"branch_id"`
	Total         float64    `json:"total"`
	TaxMode       string     `json:"tax_mode"`
	Lines         []SaleLine `json:"lines"`
	CreatedAt     time.Time  `json:"created_at"`
}
