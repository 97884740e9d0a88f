package registry

import "testing"

type fakeSubscriber struct {
	subscribed   map[string]int
	unsubscribed map[string]int
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subscribed: make(map[string]int), unsubscribed: make(map[string]int)}
}

func (f *fakeSubscriber) Subscribe(symbol string) error {
	f.subscribed[symbol]++
	return nil
}

func (f *fakeSubscriber) Unsubscribe(symbol string) error {
	f.unsubscribed[symbol]++
	return nil
}

func TestSymbolRegistryDedupesAcrossClients(t *testing.T) {
	binance := newFakeSubscriber()
	kraken := newFakeSubscriber()
	reg := New([]Subscriber{binance, kraken})

	if err := reg.Add("BTCUSDT"); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := reg.Add("BTCUSDT"); err != nil {
		t.Fatalf("second Add: %v", err)
	}

	if binance.subscribed["BTCUSDT"] != 1 || kraken.subscribed["BTCUSDT"] != 1 {
		t.Fatalf("expected exactly one upstream subscribe per exchange, got binance=%d kraken=%d",
			binance.subscribed["BTCUSDT"], kraken.subscribed["BTCUSDT"])
	}
	if reg.RefCount("BTCUSDT") != 2 {
		t.Fatalf("refcount = %d, want 2", reg.RefCount("BTCUSDT"))
	}

	if err := reg.Remove("BTCUSDT"); err != nil {
		t.Fatalf("first Remove: %v", err)
	}
	if binance.unsubscribed["BTCUSDT"] != 0 {
		t.Fatal("unsubscribe fired with one subscriber still outstanding")
	}

	if err := reg.Remove("BTCUSDT"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if binance.unsubscribed["BTCUSDT"] != 1 || kraken.unsubscribed["BTCUSDT"] != 1 {
		t.Fatalf("expected upstream unsubscribe on every exchange once refcount hits zero, got binance=%d kraken=%d",
			binance.unsubscribed["BTCUSDT"], kraken.unsubscribed["BTCUSDT"])
	}
	if reg.RefCount("BTCUSDT") != 0 {
		t.Fatalf("refcount = %d, want 0", reg.RefCount("BTCUSDT"))
	}
}

func TestSymbolRegistrySymbolsReflectsOutstandingDemand(t *testing.T) {
	reg := New([]Subscriber{newFakeSubscriber()})

	if err := reg.Add("ETHUSDT"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	symbols := reg.Symbols()
	if len(symbols) != 1 || symbols[0] != "ETHUSDT" {
		t.Fatalf("Symbols() = %v, want [ETHUSDT]", symbols)
	}

	if err := reg.Remove("ETHUSDT"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if symbols := reg.Symbols(); len(symbols) != 0 {
		t.Fatalf("Symbols() after full release = %v, want empty", symbols)
	}
}
