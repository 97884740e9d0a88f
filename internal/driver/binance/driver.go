package binance

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

// Driver implements venue.Driver for Binance. Binance folds the initial
// subscription set into the connection URL via combined streams, so
// SubscribeFrame/UnsubscribeFrame are no-ops: adding or dropping a symbol
// requires the session to reconnect with a new DialURL.
type Driver struct {
	rest *RESTClient
}

// NewDriver creates a Binance venue driver backed by a REST client.
func NewDriver(rest *RESTClient) *Driver {
	return &Driver{rest: rest}
}

func (d *Driver) Name() string { return "binance" }

// DialURL builds a combined-stream URL subscribing to depth10@100ms for
// every given symbol.
func (d *Driver) DialURL(symbols []string) string {
	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		streams = append(streams, NewStreamBuilder(sym).Depth10())
	}
	return BaseWebSocketCombinedURL + "?streams=" + CombineStreams(streams)
}

// SubscribeFrame returns (nil, nil): Binance requires a reconnect to change
// the combined-stream subscription set.
func (d *Driver) SubscribeFrame(symbol string) ([]byte, error) { return nil, nil }

// UnsubscribeFrame returns (nil, nil), symmetric with SubscribeFrame.
func (d *Driver) UnsubscribeFrame(symbol string) ([]byte, error) { return nil, nil }

// ParseMessage decodes a combined-stream depth10 message into canonical
// price levels. Messages that are not depth10 payloads are reported as
// ok=false rather than errors, since a shared connection may in principle
// carry other stream types.
func (d *Driver) ParseMessage(raw []byte) (symbol string, bids, asks []domain.PriceLevel, ok bool) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Stream == "" {
		return "", nil, nil, false
	}

	sym := ParseStreamSymbol(msg.Stream)
	if sym == "" || !strings.Contains(msg.Stream, "@depth10") {
		return "", nil, nil, false
	}

	var depth WSPartialDepth
	if err := json.Unmarshal(msg.Data, &depth); err != nil {
		return "", nil, nil, false
	}

	bids, asks, err := depth.ToLevels()
	if err != nil {
		return "", nil, nil, false
	}
	return domain.Canonical(sym), bids, asks, true
}

// RestKlines fetches candlestick data over REST.
func (d *Driver) RestKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	return d.rest.GetKlines(ctx, domain.Canonical(symbol), interval, limit)
}

// RestPairs lists every symbol Binance currently trades.
func (d *Driver) RestPairs(ctx context.Context) ([]domain.TradingPair, error) {
	info, err := d.rest.GetExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}
	pairs := make([]domain.TradingPair, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		pairs = append(pairs, domain.TradingPair{
			Symbol: domain.Canonical(s.Symbol),
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
		})
	}
	return pairs, nil
}
