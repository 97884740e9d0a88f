// Package kraken implements the Kraken exchange driver: venue.Driver for
// ten-level book updates plus read-only REST (OHLC, asset pairs).
// API Documentation: https://docs.kraken.com/websockets/ and
// https://docs.kraken.com/rest/
package kraken

// Kraken API base URLs.
const (
	BaseRestURL      = "https://api.kraken.com/0/public"
	BaseWebSocketURL = "wss://ws.kraken.com"
)

// Kraken REST endpoints used by this driver.
const (
	EOHLC       = "/OHLC"
	EAssetPairs = "/AssetPairs"
)

// intervalMinutes maps interval strings accepted by this gateway to the
// minute values Kraken's OHLC endpoint accepts.
var intervalMinutes = map[string]int{
	"1m":  1,
	"5m":  5,
	"15m": 15,
	"30m": 30,
	"1h":  60,
	"4h":  240,
	"1d":  1440,
	"1w":  10080,
	"15d": 21600,
}

// IntervalMinutes returns the Kraken OHLC interval in minutes for a gateway
// interval string, and whether the interval is supported.
func IntervalMinutes(interval string) (int, bool) {
	m, ok := intervalMinutes[interval]
	return m, ok
}
