package kraken

import (
	"context"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

// Driver implements venue.Driver for Kraken. Unlike Binance, Kraken
// subscribes and unsubscribes via control frames sent after connecting, so
// DialURL ignores the symbol set and SubscribeFrame/UnsubscribeFrame carry
// the actual subscription changes.
type Driver struct {
	rest *RESTClient
}

// NewDriver creates a Kraken venue driver backed by a REST client.
func NewDriver(rest *RESTClient) *Driver {
	return &Driver{rest: rest}
}

func (d *Driver) Name() string { return "kraken" }

// DialURL returns Kraken's bare public WebSocket endpoint; the symbol set
// is established after connecting via SubscribeFrame.
func (d *Driver) DialURL(symbols []string) string {
	return BaseWebSocketURL
}

// SubscribeFrame builds a book-channel subscribe request at depth 10.
func (d *Driver) SubscribeFrame(symbol string) ([]byte, error) {
	return NewSubscribeFrame(ToWireSymbol(symbol))
}

// UnsubscribeFrame builds the symmetric unsubscribe request.
func (d *Driver) UnsubscribeFrame(symbol string) ([]byte, error) {
	return NewUnsubscribeFrame(ToWireSymbol(symbol))
}

// ParseMessage decodes a book channel update into canonical price levels.
func (d *Driver) ParseMessage(raw []byte) (symbol string, bids, asks []domain.PriceLevel, ok bool) {
	return ParseBookMessage(raw)
}

// RestKlines fetches candlestick data over REST.
func (d *Driver) RestKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	return d.rest.GetOHLC(ctx, ToWireSymbol(symbol), interval, limit)
}

// RestPairs lists every symbol Kraken currently trades.
func (d *Driver) RestPairs(ctx context.Context) ([]domain.TradingPair, error) {
	return d.rest.GetAssetPairs(ctx)
}
