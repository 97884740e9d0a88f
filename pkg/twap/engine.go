// Package twap implements the TWAP execution engine: one task per order,
// slicing a parent quantity over time and recording paper fills against
// the live venue-of-origin order book.
package twap

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
	"github.com/lilwiggy/twap-gateway/pkg/errors"
	"github.com/lilwiggy/twap-gateway/pkg/registry"
)

// VenueBook supplies the latest snapshot an exchange session holds for a
// symbol, keyed by exchange name. ExchangeSession.LatestBook satisfies the
// inner signature.
type VenueBook func(exchange, symbol string) (*domain.OrderBookSnapshot, bool)

// Engine runs TWAP orders to completion. One Engine instance is shared by
// every order task; fills are recorded only by the order's own goroutine,
// and every mutation (including Cancel's status change) goes through the
// order registry's Update.
type Engine struct {
	orders    *registry.OrderRegistry
	symbols   *registry.SymbolRegistry
	venueBook VenueBook
	clock     func() time.Time
	sleep     func(time.Duration)
}

// New creates a TWAP Engine.
func New(orders *registry.OrderRegistry, symbols *registry.SymbolRegistry, venueBook VenueBook) *Engine {
	return &Engine{
		orders:    orders,
		symbols:   symbols,
		venueBook: venueBook,
		clock:     time.Now,
		sleep:     time.Sleep,
	}
}

// Submit validates req, computes derived fields, registers the order, and
// subscribes its symbol exactly once, then starts its execution task.
func (e *Engine) Submit(ctx context.Context, req *domain.TWAPRequest) (*domain.TWAPOrder, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	symbol := domain.Canonical(req.Symbol)

	qtyPerSlice := domain.Div(req.TotalQty, domain.NewDecimalFromInt(int64(req.Slices)))

	order := &domain.TWAPOrder{
		Exchange:     req.Exchange,
		Symbol:       symbol,
		Side:         domain.OrderSide(req.Side),
		TotalQty:     req.TotalQty,
		Slices:       req.Slices,
		DurationSecs: req.DurationSecs,
		LimitPrice:   req.LimitPrice,
		QtyPerSlice:  qtyPerSlice,
		IntervalSecs: float64(req.DurationSecs) / float64(req.Slices),
		ExecutedQty:  domain.Zero(),
		Executions:   nil,
		Status:       domain.TWAPStatusActive,
		CreatedAt:    e.clock(),
	}

	// Subscribe before inserting: OrderRegistry is insert-only (entries are
	// never removed), so a failed subscribe must not leave behind an
	// order_id the caller never received and can never cancel.
	if err := e.symbols.Add(symbol); err != nil {
		return nil, err
	}

	e.orders.Insert(order)

	go e.run(ctx, order)

	return order, nil
}

// run is the per-order execution loop described by the engine's slice
// schedule: it attempts at most order.Slices fills, one per interval,
// skipping any interval whose book is missing or whose limit is unmet.
func (e *Engine) run(ctx context.Context, order *domain.TWAPOrder) {
	interval := time.Duration(order.IntervalSecs * float64(time.Second))
	attempts := 0

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("order_id", order.ID).Msg("twap engine panic, marking order errored")
			e.finish(order, domain.TWAPStatusError)
		}
	}()

	for attempts < order.Slices {
		select {
		case <-ctx.Done():
			e.finish(order, domain.TWAPStatusError)
			return
		default:
		}

		if e.isTerminal(order) {
			return
		}

		attempts++
		e.attemptSlice(order)

		if current, err := e.orders.Get(order.ID); err == nil && domain.Cmp(current.ExecutedQty, order.TotalQty) >= 0 {
			e.finish(order, domain.TWAPStatusCompleted)
			return
		}

		e.sleep(interval)
	}

	// Duration elapsed without completion: pacing only, not a hard
	// deadline, so the order remains active per the reference behaviour.
}

// attemptSlice performs one read-decide-fill step. order carries the
// order's immutable submission parameters (exchange, symbol, side, limit,
// qtyPerSlice, totalQty); the authoritative running executedQty and fill
// count are always re-read from the registry since Update publishes
// mutations as a fresh pointer rather than mutating order in place.
func (e *Engine) attemptSlice(order *domain.TWAPOrder) {
	book, ok := e.venueBook(order.Exchange, order.Symbol)
	if !ok {
		return
	}

	var level *domain.PriceLevel
	switch order.Side {
	case domain.OrderSideBuy:
		level = book.BestAsk()
	case domain.OrderSideSell:
		level = book.BestBid()
	}
	if level == nil {
		return
	}

	if order.LimitPrice != nil {
		switch order.Side {
		case domain.OrderSideBuy:
			if domain.Cmp(level.Price, order.LimitPrice) > 0 {
				return
			}
		case domain.OrderSideSell:
			if domain.Cmp(level.Price, order.LimitPrice) < 0 {
				return
			}
		}
	}

	current, err := e.orders.Get(order.ID)
	if err != nil {
		return
	}

	quantity := order.QtyPerSlice
	// Division rounding residuals land on the fill that completes the
	// schedule with no prior skips (len(Executions)+1 == Slices), not on
	// whichever attempt happens to be scheduled last: a skip earlier in
	// the schedule (no book, limit unmet) must not dump its shortfall onto
	// a later fill, or that fill's quantity would balloon far past
	// qtyPerSlice and distort the order's average price on completion.
	if len(current.Executions)+1 == order.Slices {
		remaining := domain.Sub(order.TotalQty, current.ExecutedQty)
		if domain.Cmp(remaining, domain.Zero()) > 0 {
			quantity = remaining
		}
	}

	fill := domain.Fill{
		Price:     level.Price,
		Quantity:  quantity,
		Timestamp: e.clock(),
	}

	_ = e.orders.Update(order.ID, func(o *domain.TWAPOrder) {
		o.Executions = append(o.Executions, fill)
		o.ExecutedQty = domain.Add(o.ExecutedQty, fill.Quantity)
	})
}

// finish transitions order to a terminal status exactly once and releases
// its subscription reference exactly once.
func (e *Engine) finish(order *domain.TWAPOrder, status domain.TWAPStatus) {
	transitioned := false
	_ = e.orders.Update(order.ID, func(o *domain.TWAPOrder) {
		if !o.Status.CanTransition(status) {
			return
		}
		o.Status = status
		transitioned = true
	})
	if !transitioned {
		return
	}
	if err := e.symbols.Remove(order.Symbol); err != nil {
		log.Warn().Err(err).Str("order_id", order.ID).Msg("failed to release twap subscription")
	}
}

func (e *Engine) isTerminal(order *domain.TWAPOrder) bool {
	o, err := e.orders.Get(order.ID)
	if err != nil {
		return true
	}
	return o.Status.IsFinal()
}

// Cancel transitions an active order to cancelled and releases its
// subscription. It is a no-op (with an error) if the order is already
// terminal.
func (e *Engine) Cancel(orderID string) error {
	order, err := e.orders.Get(orderID)
	if err != nil {
		return err
	}

	transitioned := false
	var status domain.TWAPStatus
	if err := e.orders.Update(orderID, func(o *domain.TWAPOrder) {
		status = o.Status
		if o.Status.CanTransition(domain.TWAPStatusCancelled) {
			o.Status = domain.TWAPStatusCancelled
			transitioned = true
		}
	}); err != nil {
		return err
	}

	if !transitioned {
		return errors.NewValidationError("order_id", orderID, "order is already "+string(status))
	}
	return e.symbols.Remove(order.Symbol)
}

// Snapshot builds the status-query shape for an order.
func Snapshot(order *domain.TWAPOrder) *domain.TWAPSnapshot {
	snap := &domain.TWAPSnapshot{
		OrderID:        order.ID,
		Status:         order.Status,
		Side:           order.Side,
		ExecutedQty:    order.ExecutedQty,
		TotalQty:       order.TotalQty,
		SlicesExecuted: len(order.Executions),
		TotalSlices:    order.Slices,
		Executions:     append([]domain.Fill(nil), order.Executions...),
	}

	if !domain.IsZero(order.ExecutedQty) {
		weighted := domain.Zero()
		for _, f := range order.Executions {
			weighted = domain.Add(weighted, domain.Mul(f.Price, f.Quantity))
		}
		snap.AveragePrice = domain.Div(weighted, order.ExecutedQty)
	}

	return snap
}
