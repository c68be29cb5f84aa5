package catalog

import "strings"

// Units a cart line can be priced in.
const (
	UnitPiece  = "PCS"
	UnitCarton = "CTN"
)

// Product represents a catalog product entity.
type Product struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	SKU           string  `json:"sku"`
	Price         float64 `json:"price"`
	Stock         int     `json:"stock"`
	GroupName     string  `json:"group_name,omitempty"`
	TaxID         string  `json:"tax_id,omitempty"`
	TaxPercentage float64 `json:"tax_percentage,omitempty"`

	// Unit conversion metadata. PiecesPerCarton, when present, is a
	// positive integer; HasConversion implies PiecesPerCarton > 1.
	PiecePrice      float64 `json:"piece_price,omitempty"`
	CartonPrice     float64 `json:"carton_price,omitempty"`
	PiecesPerCarton int     `json:"pieces_per_carton,omitempty"`
	HasConversion   bool    `json:"has_conversion,omitempty"`
	DefaultUnit     string  `json:"default_unit,omitempty"`
	StoredUnit      string  `json:"stored_unit,omitempty"`
}

// UnitPrice returns the catalog price for the given unit, falling back to
// the base price when no per-unit price is recorded.
func (p Product) UnitPrice(unit string) float64 {
	switch unit {
	case UnitCarton:
		if p.CartonPrice > 0 {
			return p.CartonPrice
		}
	default:
		if p.PiecePrice > 0 {
			return p.PiecePrice
		}
	}
	return p.Price
}

// SearchText concatenates the searchable fields of the product.
func (p Product) SearchText() string {
	return joinFields(p.Name, p.SKU, p.GroupName)
}

// Key returns the natural identity of the product.
func (p Product) Key() string { return p.ID }

// Category returns the product group name.
func (p Product) Category() string { return p.GroupName }

// MatchesSearch reports whether the query is a case-insensitive substring
// of any searchable field.
func (p Product) MatchesSearch(query string) bool {
	return containsFold(p.SearchText(), query)
}

// ContactPerson is a named contact attached to a customer.
type ContactPerson struct {
	ID    string `json:"contact_person_id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Customer represents a customer entity. Read-only from this service's
// perspective; the accounting backend owns the record.
type Customer struct {
	ContactID      string          `json:"contact_id"`
	Name           string          `json:"name"`
	Email          string          `json:"email,omitempty"`
	ContactPersons []ContactPerson `json:"contact_persons,omitempty"`
}

// SearchText concatenates the searchable fields of the customer.
func (c Customer) SearchText() string {
	return joinFields(c.Name, c.Email)
}

// Key returns the natural identity of the customer.
func (c Customer) Key() string { return c.ContactID }

// Category always returns empty; customers are not grouped.
func (c Customer) Category() string { return "" }

// MatchesSearch reports whether the query is a case-insensitive substring
// of any searchable field.
func (c Customer) MatchesSearch(query string) bool {
	return containsFold(c.SearchText(), query)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func joinFields(fields ...string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}
