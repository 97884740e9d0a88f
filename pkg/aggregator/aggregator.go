// Package aggregator merges per-exchange order book snapshots into one
// cross-venue view for a symbol.
package aggregator

import (
	"sort"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

// BookSource supplies the latest snapshot an exchange session holds for a
// symbol. ExchangeSession.LatestBook satisfies this signature.
type BookSource func(symbol string) (*domain.OrderBookSnapshot, bool)

// Aggregator holds no state of its own: it is a pure function of whatever
// the configured exchange sessions currently report. Callers must tolerate
// that snapshots from different exchanges may be from different
// wall-clock instants — no cross-exchange synchronisation is attempted.
type Aggregator struct {
	sources map[string]BookSource
}

// New creates an Aggregator over the given named book sources (one per
// configured exchange).
func New(sources map[string]BookSource) *Aggregator {
	return &Aggregator{sources: sources}
}

// MergedBookFor concatenates every exchange's current snapshot for symbol
// and re-sorts: bids descending, asks ascending by price. Levels at
// identical price from different exchanges are preserved as separate
// entries, not netted. Returns ok=false iff no configured exchange
// currently holds a snapshot for symbol.
func (a *Aggregator) MergedBookFor(symbol string) (*domain.MergedBook, bool) {
	symbol = domain.Canonical(symbol)

	var bids, asks []domain.PriceLevel
	found := false

	for _, source := range a.sources {
		book, ok := source(symbol)
		if !ok {
			continue
		}
		found = true
		bids = append(bids, book.Bids...)
		asks = append(asks, book.Asks...)
	}

	if !found {
		return nil, false
	}

	sort.SliceStable(bids, func(i, j int) bool {
		return domain.Cmp(bids[i].Price, bids[j].Price) > 0
	})
	sort.SliceStable(asks, func(i, j int) bool {
		return domain.Cmp(asks[i].Price, asks[j].Price) < 0
	})

	return &domain.MergedBook{Symbol: symbol, Bids: bids, Asks: asks}, true
}
