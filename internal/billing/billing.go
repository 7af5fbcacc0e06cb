// Package billing owns the Invoice entity. An invoice is created only when
// the inventory decision for the order was RESERVED, and it is created at
// most once per order.
package billing

import (
	"fmt"
	"time"
)

// Status is the invoice lifecycle state.
type Status string

const (
	StatusInvoiced Status = "INVOICED"
	StatusPaid     Status = "PAID"
)

// PlaceholderAmountCents is the stand-in invoice amount. The real system
// would look up authoritative order data through a collaborator query.
const PlaceholderAmountCents int64 = 10000

// Invoice is the entity owned by the billing service.
type Invoice struct {
	OrderID     int64     `json:"order_id" db:"order_id"`
	CustomerID  string    `json:"customer_id" db:"customer_id"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"`
	Status      Status    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// PlaceholderCustomerID derives the stand-in customer id from the order id.
func PlaceholderCustomerID(orderID int64) string {
	return fmt.Sprintf("CUSTOMER_%d", orderID)
}
