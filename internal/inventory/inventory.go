// Package inventory owns the Product stock and the per-order reservation
// decision. A reservation is made exactly once per order: the check against
// available stock and the decrement happen inside one local transaction, and
// the decision row is immutable afterwards.
package inventory

import "time"

// Status is the reservation decision.
type Status string

const (
	StatusReserved Status = "RESERVED"
	StatusFailed   Status = "FAILED"
)

// Product is the only mutable shared datum inside the inventory service.
type Product struct {
	ProductID      string    `json:"product_id" db:"product_id"`
	AvailableStock int       `json:"available_stock" db:"available_stock"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Reservation is the per-order decision record. AvailableAtDecision keeps the
// stock level the decision was based on, for auditability.
type Reservation struct {
	OrderID             int64     `json:"order_id" db:"order_id"`
	ProductID           string    `json:"product_id" db:"product_id"`
	QuantityReserved    int       `json:"quantity_reserved" db:"quantity_reserved"`
	AvailableAtDecision int       `json:"available_at_decision" db:"available_at_decision"`
	Status              Status    `json:"status" db:"status"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}
