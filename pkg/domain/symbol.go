// Package domain provides core domain types shared across the gateway.
package domain

import (
	"fmt"
	"strings"
)

// quoteCurrencies lists known quote assets, used to split a bare symbol into
// base and quote when no separator is present. SplitAsset takes the first
// suffix match, so any quote that ends in another listed quote (BUSD, TUSD,
// USDT before USD) is listed ahead of it.
var quoteCurrencies = []string{
	"USDC", "USDT", "USDS", "BUSD", "TUSD", "USDK", "USD",
	"EUR", "GBP", "JPY", "AUD", "CAD", "CHF",
	"BTC", "ETH", "BNB", "SOL", "XRP",
	"TRY", "BRL", "RUB", "ZAR", "UAH", "NGN",
	"VAI", "DAI", "IDRT", "BKRW", "BVND",
}

// Canonical converts any accepted spelling of a symbol ("btc/usdt",
// "BTC-USDT", "btcusdt") into the gateway's canonical form: uppercase,
// separator-free (e.g. "BTCUSDT"). This is the form every registry,
// session, and wire protocol in the gateway keys on; venue-specific
// spellings (Kraken's "XBT/USDT", Binance's "BTCUSDT") are produced and
// consumed only inside the driver that needs them.
func Canonical(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
	return s
}

// SplitAsset splits a canonical symbol into base and quote assets by
// matching the longest known quote-currency suffix. Returns an error if no
// known quote currency matches.
func SplitAsset(canonical string) (base, quote string, err error) {
	for _, q := range quoteCurrencies {
		if before, ok := strings.CutSuffix(canonical, q); ok && before != "" {
			return before, q, nil
		}
	}
	return "", "", fmt.Errorf("cannot split symbol into base/quote: %s", canonical)
}

// ParseSymbol parses any accepted spelling of a symbol into base and quote
// assets, canonicalizing first.
func ParseSymbol(symbol string) (base, quote string, err error) {
	return SplitAsset(Canonical(symbol))
}

// IsSymbolValid reports whether a symbol string contains only characters
// acceptable in any accepted spelling (letters, digits, and separators).
func IsSymbolValid(symbol string) bool {
	if symbol == "" {
		return false
	}
	for _, c := range symbol {
		if !isValidSymbolChar(c) {
			return false
		}
	}
	return true
}

func isValidSymbolChar(c rune) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '/' || c == '-' || c == '_'
}

// FormatSymbol builds a canonical symbol from a base and quote asset.
func FormatSymbol(base, quote string) string {
	return Canonical(base) + Canonical(quote)
}

// SymbolsEqual reports whether two symbols denote the same canonical
// symbol regardless of spelling.
func SymbolsEqual(a, b string) bool {
	return Canonical(a) == Canonical(b)
}
