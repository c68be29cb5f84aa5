// Package checkout turns the current cart into an invoice against the
// accounting backend and closes out the in-progress sale.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/registerpos/registerd/internal/backend"
	"github.com/registerpos/registerd/internal/cart"
	"github.com/registerpos/registerd/internal/journal"
	"github.com/registerpos/registerd/jobs"
)

var (
	// ErrEmptyCart indicates checkout was attempted with no lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrNoCustomer indicates no customer is selected for the sale.
	ErrNoCustomer = errors.New("checkout: no customer selected")
)

// InvoiceCreator submits invoices to the accounting backend.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, req backend.CreateInvoiceRequest) (backend.Invoice, error)
}

// SaleRecorder journals a completed sale locally.
type SaleRecorder interface {
	Record(ctx context.Context, sale journal.Sale) error
}

// PriceQueue enqueues last-sold price persistence for sold lines.
type PriceQueue interface {
	EnqueueSaveLastSoldPrice(ctx context.Context, payload jobs.SaveLastSoldPricePayload) (*asynq.TaskInfo, error)
}

// Service coordinates invoice creation, local journaling, and price
// persistence for one register.
type Service struct {
	cart     *cart.Cart
	invoices InvoiceCreator
	journal  SaleRecorder
	prices   PriceQueue
	logger   *slog.Logger
}

// NewService constructs a Service instance. journal and prices may be nil;
// both are best-effort side channels.
func NewService(c *cart.Cart, invoices InvoiceCreator, recorder SaleRecorder, prices PriceQueue, logger *slog.Logger) *Service {
	return &Service{cart: c, invoices: invoices, journal: recorder, prices: prices, logger: logger}
}

// Checkout creates an invoice from the current cart snapshot. On success the
// sale is journaled, each line's price is queued as a last-sold record, and
// the cart is cleared. Journal and price-queue failures are logged, never
// surfaced: the invoice already exists.
func (s *Service) Checkout(ctx context.Context) (backend.Invoice, error) {
	state := s.cart.Snapshot()
	if len(state.Lines) == 0 {
		return backend.Invoice{}, ErrEmptyCart
	}
	if state.CustomerID == "" {
		return backend.Invoice{}, ErrNoCustomer
	}

	reference := uuid.NewString()
	req := backend.CreateInvoiceRequest{
		CustomerID:     state.CustomerID,
		ReferenceID:    reference,
		IsInclusiveTax: state.TaxMode == cart.TaxInclusive,
		BranchID:       state.BranchID,
	}
	for _, line := range state.Lines {
		rate := decimal.NewFromFloat(line.Price).Round(2)
		total := rate.Mul(decimal.NewFromInt(int64(line.Qty))).Round(2)
		req.LineItems = append(req.LineItems, backend.InvoiceLineItem{
			ItemID:    line.ID,
			Name:      line.Name,
			Rate:      rate.InexactFloat64(),
			Quantity:  line.Qty,
			Unit:      line.Unit,
			TaxID:     line.TaxID,
			ItemTotal: total.InexactFloat64(),
		})
	}

	invoice, err := s.invoices.CreateInvoice(ctx, req)
	if err != nil {
		return backend.Invoice{}, fmt.Errorf("checkout: %w", err)
	}

	if s.journal != nil {
		sale := journal.Sale{
			Reference:     reference,
			InvoiceID:     invoice.InvoiceID,
			InvoiceNumber: invoice.InvoiceNumber,
			CustomerID:    state.CustomerID,
			BranchID:      state.BranchID,
			Total:         invoice.Total,
			TaxMode:       string(state.TaxMode),
		}
		for _, line := range state.Lines {
			sale.Lines = append(sale.Lines, journal.SaleLine{
				ProductID: line.ID,
				Name:      line.Name,
				Price:     line.Price,
				Qty:       line.Qty,
				Unit:      line.Unit,
			})
		}
		if err := s.journal.Record(ctx, sale); err != nil {
			s.logger.Warn("journal record failed",
				slog.String("reference", reference), slog.Any("error", err))
		}
	}

	if s.prices != nil {
		for _, line := range state.Lines {
			_, err := s.prices.EnqueueSaveLastSoldPrice(ctx, jobs.SaveLastSoldPricePayload{
				ProductID: line.ID,
				BranchID:  state.BranchID,
				Unit:      line.Unit,
				Price:     line.Price,
				TaxMode:   string(state.TaxMode),
			})
			if err != nil {
				s.logger.Warn("price save enqueue failed",
					slog.String("product", line.ID), slog.Any("error", err))
			}
		}
	}

	s.cart.Clear()
	return invoice, nil
}
