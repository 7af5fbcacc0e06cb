package inventory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Ramnathnaik/system-design-workspace/pkg/capture"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/pkg/errors"
)

// Table is the source table tapped by the inventory service's capture adapter.
const Table = "inventory"

var (
	// ErrProductNotFound is returned when the referenced product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrReservationNotFound is returned when no decision exists for an order.
	ErrReservationNotFound = errors.New("reservation not found")
)

// Store is the inventory service's local persistence.
type Store interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
	PutProduct(ctx context.Context, p *Product) error
	GetReservation(ctx context.Context, orderID int64) (*Reservation, error)

	// Reserve makes the reservation decision for an order: if a decision
	// already exists it is returned with created=false and nothing changes;
	// otherwise stock is compared to the quantity and decremented on success,
	// atomically with the decision insert. Stock never goes negative.
	Reserve(ctx context.Context, orderID int64, productID string, quantity int) (res *Reservation, created bool, err error)
}

// MemoryStore is an in-memory Store used by the tests and the demo binary.
// The mutex stands in for the local transaction: the stock check, the
// decrement and the decision insert are one critical section.
type MemoryStore struct {
	mu           sync.Mutex
	products     map[string]*Product
	reservations map[int64]*Reservation
	feed         *capture.Feed
}

// NewMemoryStore creates an in-memory inventory store. The feed may be nil.
func NewMemoryStore(feed *capture.Feed) *MemoryStore {
	return &MemoryStore{
		products:     make(map[string]*Product),
		reservations: make(map[int64]*Reservation),
		feed:         feed,
	}
}

func (s *MemoryStore) GetProduct(ctx context.Context, productID string) (*Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, ErrProductNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *MemoryStore) PutProduct(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	copied := *p
	s.products[p.ProductID] = &copied
	return nil
}

func (s *MemoryStore) GetReservation(ctx context.Context, orderID int64) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.reservations[orderID]
	if !ok {
		return nil, ErrReservationNotFound
	}
	copied := *res
	return &copied, nil
}

func (s *MemoryStore) Reserve(ctx context.Context, orderID int64, productID string, quantity int) (*Reservation, bool, error) {
	s.mu.Lock()

	if existing, ok := s.reservations[orderID]; ok {
		copied := *existing
		s.mu.Unlock()
		return &copied, false, nil
	}

	product, ok := s.products[productID]
	if !ok {
		s.mu.Unlock()
		return nil, false, ErrProductNotFound
	}

	res := &Reservation{
		OrderID:             orderID,
		ProductID:           productID,
		QuantityReserved:    quantity,
		AvailableAtDecision: product.AvailableStock,
		CreatedAt:           time.Now().UTC(),
	}

	if product.AvailableStock >= quantity {
		product.AvailableStock -= quantity
		res.Status = StatusReserved
	} else {
		res.Status = StatusFailed
	}

	s.reservations[orderID] = res
	copied := *res
	s.mu.Unlock()

	s.emit(events.OpCreate, &copied)
	return &copied, true, nil
}

func (s *MemoryStore) emit(op string, res *Reservation) {
	if s.feed == nil {
		return
	}
	s.feed.Emit(capture.Change{
		Op:    op,
		Table: Table,
		After: map[string]string{
			"order_id":              strconv.FormatInt(res.OrderID, 10),
			"product_id":            res.ProductID,
			"quantity_reserved":     strconv.Itoa(res.QuantityReserved),
			"available_at_decision": strconv.Itoa(res.AvailableAtDecision),
			"status":                string(res.Status),
		},
	})
}
