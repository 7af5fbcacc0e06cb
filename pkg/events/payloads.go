package events

import "github.com/pkg/errors"

// Wire values for the status field of inventory-updated and billing-updated
// payloads. Part of the cross-service contract, so they live here rather
// than in any one service.
const (
	InventoryStatusReserved = "RESERVED"
	InventoryStatusFailed   = "FAILED"

	BillingStatusInvoiced = "INVOICED"
	BillingStatusPaid     = "PAID"
)

// OrderCreated is published on the order-created topic when an order row is
// inserted in the order service database.
type OrderCreated struct {
	ID        int64  `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (p *OrderCreated) Validate() error {
	if p.ID == 0 {
		return errors.Wrap(ErrMalformed, "order-created: missing id")
	}
	if p.ProductID == "" {
		return errors.Wrap(ErrMalformed, "order-created: missing product_id")
	}
	if p.Quantity <= 0 {
		return errors.Wrapf(ErrMalformed, "order-created: invalid quantity %d", p.Quantity)
	}
	return nil
}

// InventoryUpdated is published on the inventory-updated topic when a
// reservation decision row is written in the inventory service database.
type InventoryUpdated struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

func (p *InventoryUpdated) Validate() error {
	if p.OrderID == 0 {
		return errors.Wrap(ErrMalformed, "inventory-updated: missing order_id")
	}
	if p.Status == "" {
		return errors.Wrap(ErrMalformed, "inventory-updated: missing status")
	}
	return nil
}

// BillingUpdated is published on the billing-updated topic when an invoice row
// is written in the billing service database.
type BillingUpdated struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

func (p *BillingUpdated) Validate() error {
	if p.OrderID == 0 {
		return errors.Wrap(ErrMalformed, "billing-updated: missing order_id")
	}
	if p.Status == "" {
		return errors.Wrap(ErrMalformed, "billing-updated: missing status")
	}
	return nil
}
