// Package domain provides core domain types shared across the gateway.
package domain

import (
	"fmt"
	"time"
)

// OrderSide represents the direction of a TWAP order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"  // Buying base currency
	OrderSideSell OrderSide = "sell" // Selling base currency
)

// IsValid returns true if the order side is valid.
func (s OrderSide) IsValid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// PriceLevel is a single price/quantity pair in an order book.
type PriceLevel struct {
	Price    Decimal `json:"price"`
	Quantity Decimal `json:"quantity"`
}

// OrderBookSnapshot is one exchange's standardised top-of-book view for a
// single symbol. Bids are strictly price-descending, asks strictly
// price-ascending, each truncated to at most ten levels, per the Exchange
// Session's standardisation contract.
type OrderBookSnapshot struct {
	Exchange  string       `json:"exchange"`
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// BestBid returns the best (highest) bid level, or nil if there are no bids.
func (s *OrderBookSnapshot) BestBid() *PriceLevel {
	if len(s.Bids) == 0 {
		return nil
	}
	return &s.Bids[0]
}

// BestAsk returns the best (lowest) ask level, or nil if there are no asks.
func (s *OrderBookSnapshot) BestAsk() *PriceLevel {
	if len(s.Asks) == 0 {
		return nil
	}
	return &s.Asks[0]
}

// MaxBookDepth is the maximum number of levels kept per side of a snapshot.
const MaxBookDepth = 10

// TruncateDepth truncates a slice of levels to MaxBookDepth entries.
func TruncateDepth(levels []PriceLevel) []PriceLevel {
	if len(levels) > MaxBookDepth {
		return levels[:MaxBookDepth]
	}
	return levels
}

// MergedBook is the union of every exchange's OrderBookSnapshot for one
// symbol: same shape as OrderBookSnapshot but untagged with an exchange and
// not depth-limited, preserving duplicate price levels across venues.
type MergedBook struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// Fill is a single simulated execution recorded by the TWAP engine.
type Fill struct {
	Price     Decimal   `json:"price"`
	Quantity  Decimal   `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// TWAPStatus is the lifecycle state of a TWAP order.
type TWAPStatus string

const (
	TWAPStatusActive    TWAPStatus = "active"
	TWAPStatusCompleted TWAPStatus = "completed"
	TWAPStatusError     TWAPStatus = "error"
	TWAPStatusCancelled TWAPStatus = "cancelled"
)

// IsValid returns true if the status is a recognised TWAP state.
func (s TWAPStatus) IsValid() bool {
	switch s {
	case TWAPStatusActive, TWAPStatusCompleted, TWAPStatusError, TWAPStatusCancelled:
		return true
	default:
		return false
	}
}

// IsFinal returns true if the status is terminal (no further mutation).
func (s TWAPStatus) IsFinal() bool {
	return s == TWAPStatusCompleted || s == TWAPStatusError || s == TWAPStatusCancelled
}

// CanTransition reports whether a TWAP order may move from s to newStatus.
// Only `active` is a source of outgoing transitions; every other state is
// terminal, mirroring the exchange order state machine this was adapted
// from but collapsed to the TWAP engine's simpler lifecycle.
func (s TWAPStatus) CanTransition(newStatus TWAPStatus) bool {
	validTransitions := map[TWAPStatus][]TWAPStatus{
		TWAPStatusActive: {
			TWAPStatusCompleted,
			TWAPStatusError,
			TWAPStatusCancelled,
		},
		TWAPStatusCompleted: {},
		TWAPStatusError:     {},
		TWAPStatusCancelled: {},
	}

	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// TWAPOrder is a parent order sliced over time against the gateway's own
// live view of the named venue's book (not the cross-venue merged book).
// Mutable fields (ExecutedQty,
// Executions, Status) are owned exclusively by the engine task running the
// order; readers must obtain a copy (see TWAPSnapshot).
type TWAPOrder struct {
	ID           string     `json:"id"`
	Exchange     string     `json:"exchange"`
	Symbol       string     `json:"symbol"`
	Side         OrderSide  `json:"side"`
	TotalQty     Decimal    `json:"total_qty"`
	Slices       int        `json:"slices"`
	DurationSecs int        `json:"duration_secs"`
	LimitPrice   Decimal    `json:"limit_price,omitempty"`
	QtyPerSlice  Decimal    `json:"qty_per_slice"`
	IntervalSecs float64    `json:"interval_secs"`
	ExecutedQty  Decimal    `json:"executed_qty"`
	Executions   []Fill     `json:"executions"`
	Status       TWAPStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TWAPRequest is the submission payload for a new TWAP order.
type TWAPRequest struct {
	Exchange     string  `json:"exchange"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	TotalQty     Decimal `json:"total_qty"`
	Slices       int     `json:"slices"`
	DurationSecs int     `json:"duration_secs"`
	LimitPrice   Decimal `json:"limit_price,omitempty"`
}

// Validate checks the submission payload's structural requirements.
func (r *TWAPRequest) Validate() error {
	if r.Exchange == "" {
		return fmt.Errorf("exchange is required")
	}
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	side := OrderSide(r.Side)
	if !side.IsValid() {
		return fmt.Errorf("invalid side: %s", r.Side)
	}
	if IsZero(r.TotalQty) || IsNegative(r.TotalQty) {
		return fmt.Errorf("total_qty must be positive")
	}
	if r.Slices < 1 {
		return fmt.Errorf("slices must be >= 1")
	}
	if r.DurationSecs <= 0 {
		return fmt.Errorf("duration_secs must be positive")
	}
	return nil
}

// TWAPCancelRequest requests early cancellation of an active TWAP order,
// resolving the open question of whether a limit-bound order that never
// meets its price may be stopped before it would otherwise go idle forever.
type TWAPCancelRequest struct {
	OrderID string `json:"order_id"`
	Token   string `json:"token"`
}

// Validate checks the cancel request's structural requirements.
func (r *TWAPCancelRequest) Validate() error {
	if r.OrderID == "" {
		return fmt.Errorf("order_id is required")
	}
	if r.Token == "" {
		return fmt.Errorf("token is required")
	}
	return nil
}

// TWAPSnapshot is a point-in-time, safe-to-share copy of a TWAPOrder's
// queryable state, per spec's requirement that status queries copy the
// execution list rather than exposing a live reference.
type TWAPSnapshot struct {
	OrderID        string     `json:"order_id"`
	Status         TWAPStatus `json:"status"`
	Side           OrderSide  `json:"side"`
	ExecutedQty    Decimal    `json:"executed_quantity"`
	TotalQty       Decimal    `json:"total_quantity"`
	SlicesExecuted int        `json:"slices_executed"`
	TotalSlices    int        `json:"total_slices"`
	Executions     []Fill     `json:"executions"`
	AveragePrice   Decimal    `json:"average_price,omitempty"`
}

// Kline is a single candlestick for a symbol, sourced from a venue's klines
// REST endpoint to answer GET /klines/{exchange}/{symbol}.
type Kline struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      Decimal   `json:"open"`
	High      Decimal   `json:"high"`
	Low       Decimal   `json:"low"`
	Close     Decimal   `json:"close"`
	Volume    Decimal   `json:"volume"`
}

// TradingPair describes one symbol a venue lists, answering
// GET /pairs/{exchange}.
type TradingPair struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}
