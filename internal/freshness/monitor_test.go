package freshness

import (
	"testing"
	"time"
)

func TestCheckSymbolReportsFreshAndStale(t *testing.T) {
	now := time.Now()
	bookTime := func(symbol string) (time.Time, bool) {
		switch symbol {
		case "FRESH":
			return now.Add(-1 * time.Second), true
		case "STALE":
			return now.Add(-30 * time.Second), true
		default:
			return time.Time{}, false
		}
	}

	m := New("binance", bookTime, func() []string { return []string{"FRESH", "STALE"} }, Config{
		MaxAge:        10 * time.Second,
		CheckInterval: time.Hour,
	})

	fresh, _, err := m.CheckSymbol("FRESH")
	if err != nil {
		t.Fatalf("CheckSymbol(FRESH): %v", err)
	}
	if !fresh {
		t.Fatal("expected FRESH to report fresh=true")
	}

	stale, age, err := m.CheckSymbol("STALE")
	if err != nil {
		t.Fatalf("CheckSymbol(STALE): %v", err)
	}
	if stale {
		t.Fatal("expected STALE to report fresh=false")
	}
	if age < 29*time.Second {
		t.Fatalf("age = %v, want at least 29s", age)
	}

	missingFresh, _, err := m.CheckSymbol("MISSING")
	if err != nil {
		t.Fatalf("CheckSymbol(MISSING): %v", err)
	}
	if missingFresh {
		t.Fatal("expected a symbol with no book to report fresh=false")
	}
}

func TestCheckReturnsClockSyncErrorPastMaxAge(t *testing.T) {
	now := time.Now()
	bookTime := func(symbol string) (time.Time, bool) {
		return now.Add(-20 * time.Second), true
	}

	m := New("kraken", bookTime, func() []string { return nil }, Config{MaxAge: 10 * time.Second, CheckInterval: time.Hour})

	if err := m.check(now, "BTCUSDT"); err == nil {
		t.Fatal("expected a staleness error past max age")
	}
}

func TestCheckAllowsBookWithinMaxAge(t *testing.T) {
	now := time.Now()
	bookTime := func(symbol string) (time.Time, bool) {
		return now.Add(-5 * time.Second), true
	}

	m := New("kraken", bookTime, func() []string { return nil }, Config{MaxAge: 10 * time.Second, CheckInterval: time.Hour})

	if err := m.check(now, "BTCUSDT"); err != nil {
		t.Fatalf("expected no error within max age, got %v", err)
	}
}
