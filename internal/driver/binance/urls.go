// Package binance implements the Binance exchange driver: venue.Driver for
// depth-10 market data plus read-only REST (klines, exchange info).
// API Documentation: https://binance-docs.github.io/apidocs/spot/en/
package binance

// Binance API base URLs.
const (
	BaseRestURL             = "https://api.binance.com"
	BaseWebSocketURL         = "wss://stream.binance.com:9443/ws"
	BaseWebSocketCombinedURL = "wss://stream.binance.com:9443/stream"
)

// Binance API v3 endpoints used by this driver.
const (
	EPing         = "/api/v3/ping"
	ETime         = "/api/v3/time"
	EExchangeInfo = "/api/v3/exchangeInfo"
	EKlines       = "/api/v3/klines"
)

// EndpointWeights documents request weight for the endpoints this driver
// calls. Documentation: https://binance-docs.github.io/apidocs/spot/en/#limits
var EndpointWeights = map[string]int{
	EPing:         1,
	ETime:         1,
	EExchangeInfo: 20,
	EKlines:       2,
}

// GetEndpointWeight returns the weight for a given endpoint, defaulting to
// 1 for endpoints not in the table.
func GetEndpointWeight(endpoint string) int {
	if weight, ok := EndpointWeights[endpoint]; ok {
		return weight
	}
	return 1
}
