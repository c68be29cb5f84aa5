package catalog

import (
	"errors"
	"strings"
)

// Validate reports structural problems in a product record received from
// the backend. Invalid records are skipped during sync, not fatal.
func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("product id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name is required")
	}
	if p.PiecesPerCarton < 0 {
		return errors.New("pieces per carton must be positive")
	}
	if p.HasConversion && p.PiecesPerCarton <= 1 {
		return errors.New("conversion requires pieces per carton > 1")
	}
	return nil
}

// Validate reports structural problems in a customer record.
func (c Customer) Validate() error {
	if strings.TrimSpace(c.ContactID) == "" {
		return errors.New("customer contact id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("customer name is required")
	}
	return nil
}
