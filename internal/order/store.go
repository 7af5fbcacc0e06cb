package order

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Ramnathnaik/system-design-workspace/pkg/capture"
	"github.com/Ramnathnaik/system-design-workspace/pkg/events"
	"github.com/pkg/errors"
)

// Table is the source table tapped by the order service's capture adapter.
const Table = "orders"

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Store is the order service's local persistence.
type Store interface {
	Get(ctx context.Context, id int64) (*Order, error)
	Create(ctx context.Context, o *Order) error
	List(ctx context.Context) ([]Order, error)

	// UpdateStatus moves the order from one status to another, as a single
	// compare-and-swap. It reports false when the current status no longer
	// matches, which absorbs duplicate and racing transitions.
	UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error)
}

// MemoryStore is an in-memory Store used by the tests and the demo binary.
// Writes are mirrored onto the change feed the way committed rows surface on
// the WAL.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[int64]*Order
	nextID int64
	feed   *capture.Feed
}

// NewMemoryStore creates an in-memory order store. The feed may be nil.
func NewMemoryStore(feed *capture.Feed) *MemoryStore {
	return &MemoryStore{
		orders: make(map[int64]*Order),
		nextID: 1,
		feed:   feed,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (s *MemoryStore) Create(ctx context.Context, o *Order) error {
	s.mu.Lock()
	if o.ID == 0 {
		o.ID = s.nextID
		s.nextID++
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	copied := *o
	s.orders[o.ID] = &copied
	s.mu.Unlock()

	s.emit(events.OpCreate, &copied)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	s.mu.Lock()
	o, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return false, ErrNotFound
	}
	if o.Status != from {
		s.mu.Unlock()
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	copied := *o
	s.mu.Unlock()

	s.emit(events.OpUpdate, &copied)
	return true, nil
}

func (s *MemoryStore) emit(op string, o *Order) {
	if s.feed == nil {
		return
	}
	s.feed.Emit(capture.Change{
		Op:    op,
		Table: Table,
		After: map[string]string{
			"id":         strconv.FormatInt(o.ID, 10),
			"product_id": o.ProductID,
			"quantity":   strconv.Itoa(o.Quantity),
			"status":     string(o.Status),
		},
	})
}
