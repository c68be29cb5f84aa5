// Package backend talks to the remote accounting system that owns the
// product and customer catalogs, last-sold price records, and invoices.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/registerpos/registerd/internal/catalog"
)

// Client wraps interactions with the accounting backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks if the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return nil
}

type productsResponse struct {
	Items []catalog.Product `json:"items"`
}

// FetchProducts retrieves up to limit products from the catalog.
func (c *Client) FetchProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	var out productsResponse
	url := fmt.Sprintf("%s/api/products?limit=%d", c.baseURL, limit)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("backend: fetch products: %w", err)
	}
	products := out.Items[:0]
	for _, p := range out.Items {
		if p.Validate() == nil {
			products = append(products, p)
		}
	}
	return products, nil
}

type customersResponse struct {
	Customers []catalog.Customer `json:"customers"`
}

// FetchCustomers retrieves up to limit customers.
func (c *Client) FetchCustomers(ctx context.Context, limit int) ([]catalog.Customer, error) {
	var out customersResponse
	url := fmt.Sprintf("%s/api/customers?limit=%d", c.baseURL, limit)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, fmt.Errorf("backend: fetch customers: %w", err)
	}
	customers := out.Customers[:0]
	for _, cust := range out.Customers {
		if cust.Validate() == nil {
			customers = append(customers, cust)
		}
	}
	return customers, nil
}

// LastSoldPrice is a price previously charged for a product, scoped to a
// branch and unit.
type LastSoldPrice struct {
	ProductID string    `json:"product_id"`
	BranchID  string    `json:"branch_id"`
	Unit      string    `json:"unit"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
	TaxMode   string    `json:"tax_mode"`
}

type lastSoldPricesRequest struct {
	ProductIDs []string `json:"product_ids"`
	BranchID   string   `json:"branch_id"`
}

type lastSoldPricesResponse struct {
	Success bool            `json:"success"`
	Prices  []LastSoldPrice `json:"prices"`
}

// FetchLastSoldPrices looks up last-sold price records for a batch of
// products in one branch. Products with no record are simply absent from
// the result.
func (c *Client) FetchLastSoldPrices(ctx context.Context, productIDs []string, branchID string) ([]LastSoldPrice, error) {
	var out lastSoldPricesResponse
	url := fmt.Sprintf("%s/api/last-sold-prices/lookup", c.baseURL)
	err := c.postJSON(ctx, url, lastSoldPricesRequest{ProductIDs: productIDs, BranchID: branchID}, &out)
	if err != nil {
		return nil, fmt.Errorf("backend: fetch last sold prices: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("backend: fetch last sold prices: request rejected")
	}
	return out.Prices, nil
}

type saveLastSoldPriceResponse struct {
	Success bool          `json:"success"`
	Data    LastSoldPrice `json:"data"`
}

// SaveLastSoldPrice persists a price record so future sales default to it.
func (c *Client) SaveLastSoldPrice(ctx context.Context, rec LastSoldPrice) (LastSoldPrice, error) {
	var out saveLastSoldPriceResponse
	url := fmt.Sprintf("%s/api/last-sold-prices", c.baseURL)
	if err := c.postJSON(ctx, url, rec, &out); err != nil {
		return LastSoldPrice{}, fmt.Errorf("backend: save last sold price: %w", err)
	}
	if !out.Success {
		return LastSoldPrice{}, fmt.Errorf("backend: save last sold price: request rejected")
	}
	return out.Data, nil
}

// InvoiceLineItem is one line of an invoice creation request.
type InvoiceLineItem struct {
	ItemID    string  `json:"item_id"`
	Name      string  `json:"name"`
	Rate      float64 `json:"rate"`
	Quantity  int     `json:"quantity"`
	Unit      string  `json:"unit"`
	TaxID     string  `json:"tax_id,omitempty"`
	ItemTotal float64 `json:"item_total"`
}

// CreateInvoiceRequest is the invoice creation payload.
type CreateInvoiceRequest struct {
	CustomerID     string            `json:"customer_id"`
	ReferenceID    string            `json:"reference_id,omitempty"`
	LineItems      []InvoiceLineItem `json:"line_items"`
	IsInclusiveTax bool              `json:"is_inclusive_tax"`
	BranchID       string            `json:"branch_id"`
}

// Invoice is the created invoice as reported by the backend.
type Invoice struct {
	InvoiceID     string  `json:"invoice_id"`
	InvoiceNumber string  `json:"invoice_number"`
	Total         float64 `json:"total"`
	Status        string  `json:"status"`
}

type createInvoiceResponse struct {
	Success bool    `json:"success"`
	Invoice Invoice `json:"invoice"`
}

// CreateInvoice submits a new invoice.
func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (Invoice, error) {
	var out createInvoiceResponse
	url := fmt.Sprintf("%s/api/invoices", c.baseURL)
	if err := c.postJSON(ctx, url, req, &out); err != nil {
		return Invoice{}, fmt.Errorf("backend: create invoice: %w", err)
	}
	if !out.Success {
		return Invoice{}, fmt.Errorf("backend: create invoice: request rejected")
	}
	return out.Invoice, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.do(req, dest)
}

func (c *Client) postJSON(ctx context.Context, url string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
