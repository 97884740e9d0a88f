// Package binance implements the Binance exchange driver.
package binance

import "strings"

// StreamBuilder builds Binance WebSocket stream names. Stream names MUST be
// lowercase for Binance.
// Documentation: https://binance-docs.github.io/apidocs/spot/en/#websocket-market-streams
type StreamBuilder struct {
	symbol string // exchange symbol format, e.g. "btcusdt"
}

// NewStreamBuilder creates a StreamBuilder for the given exchange symbol.
func NewStreamBuilder(symbol string) *StreamBuilder {
	return &StreamBuilder{symbol: strings.ToLower(symbol)}
}

// Depth10 builds the partial-book-depth stream name for ten levels at
// 100ms resolution: <symbol>@depth10@100ms.
func (sb *StreamBuilder) Depth10() string {
	return sb.symbol + "@depth10@100ms"
}

// CombineStreams joins stream names into a combined-stream URL path.
// Documentation: https://binance-docs.github.io/apidocs/spot/en/#combined-stream-exports
func CombineStreams(streams []string) string {
	if len(streams) == 0 {
		return ""
	}
	return strings.Join(streams, "/")
}

// ParseStreamSymbol extracts the exchange symbol from a stream name.
// Returns empty string if the stream format is unrecognised.
func ParseStreamSymbol(stream string) string {
	stream = strings.ToLower(stream)
	idx := strings.Index(stream, "@")
	if idx <= 0 {
		return ""
	}
	return strings.ToUpper(stream[:idx])
}
