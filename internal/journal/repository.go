package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/registerpos/registerd/internal/platform/db"
)

// ErrDuplicate indicates the sale reference was already recorded.
var ErrDuplicate = errors.New("journal: sale already recorded")

type Repository interface {
	Insert(ctx context.Context, sale Sale) (Sale, error)
	Recent(ctx context.Context, limit int) ([]Sale, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Insert records the sale and rolls its total into the branch's daily
// counters in the same transaction.
func (r *repository) Insert(ctx context.Context, sale Sale) (Sale, error) {
	lines, err := json.Marshal(sale.Lines)
	if err != nil {
		return Sale{}, err
	}
	now := time.Now()
	err = db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `INSERT INTO sales (reference, invoice_id, invoice_number, customer_id, branch_id, total, tax_mode, lines, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
		err := tx.QueryRow(ctx, query,
			sale.Reference, sale.InvoiceID, sale.InvoiceNumber, sale.CustomerID,
			sale.BranchID, sale.Total, sale.TaxMode, lines, now,
		).Scan(&sale.ID)
		if err != nil {
			return err
		}
		rollup := `INSERT INTO daily_totals (branch_id, day, sale_count, revenue)
			VALUES ($1, $2, 1, $3)
			ON CONFLICT (branch_id, day)
			DO UPDATE SET sale_count = daily_totals.sale_count + 1, revenue = daily_totals.revenue + EXCLUDED.revenue`
		_, err = tx.Exec(ctx, rollup, sale.BranchID, now.Format("2006-01-02"), sale.Total)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Sale{}, ErrDuplicate
		}
		return Sale{}, err
	}
	sale.CreatedAt = now
	return sale, nil
}

func (r *repository) Recent(ctx context.Context, limit int) ([]Sale, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, reference, invoice_id, invoice_number, customer_id, branch_id, total, tax_mode, lines, created_at
		FROM sales ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		var sale Sale
		var lines []byte
		err := rows.Scan(&sale.ID, &sale.Reference, &sale.InvoiceID, &sale.InvoiceNumber,
			&sale.CustomerID, &sale.BranchID, &sale.Total, &sale.TaxMode, &lines, &sale.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(lines, &sale.Lines); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}
