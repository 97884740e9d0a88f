package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
	"github.com/lilwiggy/twap-gateway/pkg/errors"
)

// OrderRegistry is the process-scoped, insert-only map of TWAP orders.
// Entries are never removed; the TWAP engine is the sole writer of an
// order's mutable fields (status, executions, executed quantity). Update
// replaces the stored pointer with a mutated copy rather than mutating in
// place, so a Get that races with an in-flight Update always returns one
// whole, consistent version of the order rather than a torn read.
type OrderRegistry struct {
	mu     sync.RWMutex
	orders map[string]*domain.TWAPOrder
}

// NewOrderRegistry creates an empty OrderRegistry.
func NewOrderRegistry() *OrderRegistry {
	return &OrderRegistry{orders: make(map[string]*domain.TWAPOrder)}
}

// Insert assigns order a fresh UUID (written to order.ID) and adds it.
func (r *OrderRegistry) Insert(order *domain.TWAPOrder) {
	order.ID = uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order
}

// Get returns the order for id, or a NotFoundError if it was never inserted.
func (r *OrderRegistry) Get(id string) (*domain.TWAPOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, errors.NewNotFoundError("twap_order", id)
	}
	return order, nil
}

// Update applies fn to a copy of the order for id, then publishes the copy
// in place of the original, giving the TWAP engine a single point of
// mutual exclusion for mutating status, executions, and executed quantity
// without exposing a partially-mutated order to a concurrent Get.
func (r *OrderRegistry) Update(id string, fn func(order *domain.TWAPOrder)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return errors.NewNotFoundError("twap_order", id)
	}
	next := *order
	next.Executions = append([]domain.Fill(nil), order.Executions...)
	fn(&next)
	r.orders[id] = &next
	return nil
}

// Snapshot returns a shallow copy of every order currently registered.
func (r *OrderRegistry) Snapshot() []*domain.TWAPOrder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.TWAPOrder, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out
}
