package kraken

import (
	"strings"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

// ToWireSymbol converts a canonical symbol ("BTCUSDT", "DOGEUSDT") into
// Kraken's slash-separated wire pair ("XBT/USDT", "DOGE/USDT"), renaming
// the base asset from BTC to Kraken's legacy XBT code. Base/quote are
// split by known quote-currency suffix (domain.SplitAsset) rather than a
// fixed character count, since base assets vary in length.
func ToWireSymbol(canonical string) string {
	s := strings.ToUpper(canonical)

	base, quote, err := domain.SplitAsset(s)
	if err != nil {
		return strings.ReplaceAll(s, "BTC", "XBT")
	}
	if base == "BTC" {
		base = "XBT"
	}
	if quote == "BTC" {
		quote = "XBT"
	}
	return base + "/" + quote
}

// FromWireSymbol converts a Kraken wire pair back into this gateway's
// canonical form, undoing the XBT rename and normalising a bare USD quote
// to USDT.
func FromWireSymbol(wire string) string {
	s := strings.ToUpper(wire)
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "XBT", "BTC")
	if strings.HasSuffix(s, "USD") && !strings.HasSuffix(s, "USDT") {
		s += "T"
	}
	return s
}
