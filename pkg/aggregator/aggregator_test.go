package aggregator

import (
	"testing"
	"time"

	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

func level(price, qty string) domain.PriceLevel {
	return domain.PriceLevel{Price: domain.MustDecimal(price), Quantity: domain.MustDecimal(qty)}
}

func TestMergedBookForOrdersAcrossExchanges(t *testing.T) {
	bookA := &domain.OrderBookSnapshot{
		Exchange: "binance",
		Symbol:   "BTCUSDT",
		Bids:     []domain.PriceLevel{level("100", "1"), level("99", "2")},
		Asks:     []domain.PriceLevel{level("101", "1")},
		Timestamp: time.Unix(0, 0),
	}
	bookB := &domain.OrderBookSnapshot{
		Exchange: "kraken",
		Symbol:   "BTCUSDT",
		Bids:     []domain.PriceLevel{level("99.5", "3")},
		Asks:     []domain.PriceLevel{level("100.5", "2"), level("102", "1")},
		Timestamp: time.Unix(0, 0),
	}

	agg := New(map[string]BookSource{
		"binance": func(symbol string) (*domain.OrderBookSnapshot, bool) { return bookA, true },
		"kraken":  func(symbol string) (*domain.OrderBookSnapshot, bool) { return bookB, true },
	})

	merged, ok := agg.MergedBookFor("BTCUSDT")
	if !ok {
		t.Fatal("expected merged book, got ok=false")
	}

	wantBids := []string{"100", "99.5", "99"}
	if len(merged.Bids) != len(wantBids) {
		t.Fatalf("bids length = %d, want %d", len(merged.Bids), len(wantBids))
	}
	for i, want := range wantBids {
		if merged.Bids[i].Price.String() != want {
			t.Errorf("bid[%d] = %s, want %s", i, merged.Bids[i].Price.String(), want)
		}
	}

	wantAsks := []string{"100.5", "101", "102"}
	if len(merged.Asks) != len(wantAsks) {
		t.Fatalf("asks length = %d, want %d", len(merged.Asks), len(wantAsks))
	}
	for i, want := range wantAsks {
		if merged.Asks[i].Price.String() != want {
			t.Errorf("ask[%d] = %s, want %s", i, merged.Asks[i].Price.String(), want)
		}
	}
}

func TestMergedBookForNoSourcesReportsNotFound(t *testing.T) {
	agg := New(map[string]BookSource{
		"binance": func(symbol string) (*domain.OrderBookSnapshot, bool) { return nil, false },
	})

	if _, ok := agg.MergedBookFor("ETHUSDT"); ok {
		t.Fatal("expected ok=false when no exchange holds a snapshot")
	}
}
