// Package registry tracks cross-client symbol subscriptions (refcounted,
// so the gateway only keeps one upstream subscription alive per symbol no
// matter how many downstream clients watch it) and holds the process-scoped
// TWAP order registry.
package registry

import (
	"sync"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

// Subscriber is a venue-facing session symbols are subscribed/unsubscribed
// on as the registry's refcount crosses 0<->1. ExchangeSession satisfies
// this interface.
type Subscriber interface {
	Subscribe(symbol string) error
	Unsubscribe(symbol string) error
}

// SymbolRegistry is a single counting multiset of symbol demand shared by
// every configured exchange: one refcount per symbol, fanned out to every
// exchange session on the 0<->1 edge. A symbol "wanted" by two clients and
// a TWAP order still costs exactly one upstream subscription per exchange.
type SymbolRegistry struct {
	mu      sync.Mutex
	counts  map[string]int
	sources []Subscriber
}

// New creates a SymbolRegistry that fans subscribe/unsubscribe out to
// every given exchange session.
func New(sources []Subscriber) *SymbolRegistry {
	return &SymbolRegistry{
		counts:  make(map[string]int),
		sources: sources,
	}
}

// Add increments the refcount for symbol, subscribing on every exchange on
// the 0->1 transition.
func (r *SymbolRegistry) Add(symbol string) error {
	symbol = domain.Canonical(symbol)

	r.mu.Lock()
	count := r.counts[symbol]
	r.counts[symbol] = count + 1
	r.mu.Unlock()

	if count != 0 {
		return nil
	}

	if err := r.forEachSource(func(s Subscriber) error { return s.Subscribe(symbol) }); err != nil {
		r.mu.Lock()
		if r.counts[symbol] <= 1 {
			delete(r.counts, symbol)
		} else {
			r.counts[symbol]--
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

// Remove decrements the refcount for symbol, unsubscribing on every
// exchange on the 1->0 transition. Removing a symbol with no outstanding
// refcount is a no-op.
func (r *SymbolRegistry) Remove(symbol string) error {
	symbol = domain.Canonical(symbol)

	r.mu.Lock()
	count, tracked := r.counts[symbol]
	if !tracked {
		r.mu.Unlock()
		return nil
	}
	count--
	if count <= 0 {
		delete(r.counts, symbol)
	} else {
		r.counts[symbol] = count
	}
	r.mu.Unlock()

	if count > 0 {
		return nil
	}
	return r.forEachSource(func(s Subscriber) error { return s.Unsubscribe(symbol) })
}

// Symbols returns every symbol currently tracked with a nonzero refcount,
// for consumers that need the current subscription set without querying
// each symbol individually (e.g. the freshness monitor's sweep).
func (r *SymbolRegistry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.counts))
	for symbol := range r.counts {
		out = append(out, symbol)
	}
	return out
}

// RefCount returns the current client+TWAP refcount for symbol.
func (r *SymbolRegistry) RefCount(symbol string) int {
	symbol = domain.Canonical(symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[symbol]
}

// forEachSource calls fn on every configured exchange source, collecting
// the first error encountered but still attempting every source so one
// exchange's transport failure never prevents subscribing the rest.
func (r *SymbolRegistry) forEachSource(fn func(Subscriber) error) error {
	var firstErr error
	for _, s := range r.sources {
		if err := fn(s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
