// Package order owns the Order entity and its reactions to inventory and
// billing events. Orders are created through the REST API; every later status
// change is driven by events observed on the bus.
package order

import "time"

// Status is the order lifecycle state.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusInventoryReserved Status = "INVENTORY_RESERVED"
	StatusInventoryFailed   Status = "INVENTORY_FAILED"
	StatusBilled            Status = "BILLED"
	StatusPaid              Status = "PAID"
	StatusCompleted         Status = "COMPLETED"
	StatusCancelled         Status = "CANCELLED"
)

// rank orders the workflow graph. INVENTORY_RESERVED and INVENTORY_FAILED
// share a rank: both follow PENDING and neither may overwrite the other.
var rank = map[Status]int{
	StatusPending:           0,
	StatusInventoryReserved: 1,
	StatusInventoryFailed:   1,
	StatusBilled:            2,
	StatusPaid:              3,
	StatusCompleted:         4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := rank[s]
	return ok
}

// Terminal reports whether the workflow ends at s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusInventoryFailed
}

// CanAdvanceTo reports whether moving from s to next is a forward transition
// on the workflow graph. Duplicate or out-of-order events resolve to false
// and the caller treats them as no-ops.
func (s Status) CanAdvanceTo(next Status) bool {
	if !next.Valid() || s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return rank[next] > rank[s]
}

// Order is the entity owned by the order service.
type Order struct {
	ID        int64     `json:"id" db:"id"`
	ProductID string    `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
