// Package venue defines the interface an Exchange Session drives to talk to
// a specific upstream spot exchange.
package venue

import (
	"context"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

// Driver adapts one upstream exchange's wire protocol to the gateway's
// canonical shapes. An Exchange Session owns exactly one Driver instance and
// is otherwise exchange-agnostic: heartbeats, subscription acks, channel
// naming, and symbol spelling are fully absorbed here.
type Driver interface {
	// Name returns the venue's lowercase identifier (e.g. "binance").
	Name() string

	// DialURL returns the WebSocket URL to connect to for the given set of
	// canonical symbols, for venues that encode the initial subscription
	// set into the connection URL (e.g. Binance's combined streams).
	// Venues that subscribe via control frames after connecting may ignore
	// symbols and return a bare endpoint URL.
	DialURL(symbols []string) string

	// SubscribeFrame encodes a control frame that subscribes to depth-10
	// updates for a canonical symbol. Returns (nil, nil) for venues that
	// fold the symbol into DialURL instead.
	SubscribeFrame(symbol string) ([]byte, error)

	// UnsubscribeFrame is the symmetric unsubscribe control frame.
	UnsubscribeFrame(symbol string) ([]byte, error)

	// ParseMessage attempts to decode one inbound WebSocket message as a
	// depth update. ok is false for heartbeats, acks, or messages the
	// driver does not recognise as depth data; such messages are silently
	// discarded by the caller.
	ParseMessage(raw []byte) (symbol string, bids, asks []domain.PriceLevel, ok bool)

	// RestKlines fetches candle data for a symbol over REST.
	RestKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error)

	// RestPairs lists every symbol the venue trades, over REST.
	RestPairs(ctx context.Context) ([]domain.TradingPair, error)
}
