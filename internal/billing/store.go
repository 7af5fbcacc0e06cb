package billing

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Ramnathnaik/system-design-workspace/pkg/capture"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/pkg/errors"
)

// Table names the invoice change stream for the capture routes.
const Table = "invoices"

// ErrInvoiceNotFound is returned when no invoice exists for an order.
var ErrInvoiceNotFound = errors.New("invoice not found")

// Store is the billing service's local persistence.
type Store interface {
	GetInvoice(ctx context.Context, orderID int64) (*Invoice, error)

	// CreateInvoice inserts the invoice if none exists for its order yet and
	// reports whether it was created. Check-then-create, keyed by order id.
	CreateInvoice(ctx context.Context, inv *Invoice) (bool, error)

	// MarkPaid moves the invoice from INVOICED to PAID. Paying an already
	// paid invoice is a no-op that returns the stored invoice.
	MarkPaid(ctx context.Context, orderID int64) (*Invoice, error)
}

// MemoryStore is an in-memory Store used by the tests and the demo binary.
type MemoryStore struct {
	mu       sync.Mutex
	invoices map[int64]*Invoice
	feed     *capture.Feed
}

// NewMemoryStore creates an in-memory billing store. The feed may be nil.
func NewMemoryStore(feed *capture.Feed) *MemoryStore {
	return &MemoryStore{
		invoices: make(map[int64]*Invoice),
		feed:     feed,
	}
}

func (s *MemoryStore) GetInvoice(ctx context.Context, orderID int64) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[orderID]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	copied := *inv
	return &copied, nil
}

func (s *MemoryStore) CreateInvoice(ctx context.Context, inv *Invoice) (bool, error) {
	s.mu.Lock()
	if _, ok := s.invoices[inv.OrderID]; ok {
		s.mu.Unlock()
		return false, nil
	}
	if inv.Status == "" {
		inv.Status = StatusInvoiced
	}
	now := time.Now().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	copied := *inv
	s.invoices[inv.OrderID] = &copied
	s.mu.Unlock()

	s.emit(events.OpCreate, &copied)
	return true, nil
}

func (s *MemoryStore) MarkPaid(ctx context.Context, orderID int64) (*Invoice, error) {
	s.mu.Lock()
	inv, ok := s.invoices[orderID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrInvoiceNotFound
	}
	if inv.Status == StatusPaid {
		copied := *inv
		s.mu.Unlock()
		return &copied, nil
	}
	inv.Status = StatusPaid
	inv.UpdatedAt = time.Now().UTC()
	copied := *inv
	s.mu.Unlock()

	s.emit(events.OpUpdate, &copied)
	return &copied, nil
}

func (s *MemoryStore) emit(op string, inv *Invoice) {
	if s.feed == nil {
		return
	}
	s.feed.Emit(capture.Change{
		Op:    op,
		Table: Table,
		After: map[string]string{
			"order_id":     strconv.FormatInt(inv.OrderID, 10),
			"customer_id":  inv.CustomerID,
			"amount_cents": strconv.FormatInt(inv.AmountCents, 10),
			"status":       string(inv.Status),
		},
	})
}
