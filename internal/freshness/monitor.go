// Package freshness watches per-symbol book age for one exchange session
// and flags staleness, adapted from the clock synchroniser this was
// distilled from: instead of comparing local wall time to an exchange's
// server time, it compares local wall time to the age of the last book
// update the session recorded for a symbol.
package freshness

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lilwiggy/twap-gateway/pkg/errors"
)

// BookTimestamp returns the timestamp of the latest book a session holds
// for symbol, and ok=false if the session has no snapshot for it.
// ExchangeSession.LatestBook's timestamp field satisfies this shape.
type BookTimestamp func(symbol string) (time.Time, bool)

// TrackedSymbols returns the set of symbols currently of interest, so the
// monitor need not duplicate the symbol registry's bookkeeping.
type TrackedSymbols func() []string

// Config configures a Monitor.
type Config struct {
	MaxAge        time.Duration // age beyond which a book is stale (default: 10s)
	CheckInterval time.Duration // how often to sweep tracked symbols (default: 5s)
}

// DefaultConfig returns default freshness monitor configuration.
func DefaultConfig() Config {
	return Config{
		MaxAge:        10 * time.Second,
		CheckInterval: 5 * time.Second,
	}
}

// Monitor periodically sweeps an exchange session's tracked symbols and
// logs a warning for any whose book has gone stale or missing. This is the
// aggregator's "readers must tolerate cross-exchange freshness skew"
// trade-off made observable rather than enforced: a stale book is still
// merged, just surfaced in logs for an operator.
type Monitor struct {
	exchange string
	config   Config
	bookTime BookTimestamp
	symbols  TrackedSymbols

	mu      sync.Mutex
	stopCh  chan struct{}
	running atomic.Bool
}

// New creates a Monitor for one exchange session.
func New(exchange string, bookTime BookTimestamp, symbols TrackedSymbols, cfg Config) *Monitor {
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	return &Monitor{
		exchange: exchange,
		config:   cfg,
		bookTime: bookTime,
		symbols:  symbols,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic staleness sweeps in a background goroutine. Safe
// to call again after Stop: a fresh stopCh is made each time so a prior
// Stop's closed channel is never reused (which would make the new loop
// exit immediately, or panic on double-close at the next Stop).
func (m *Monitor) Start() {
	if m.running.Swap(true) {
		return
	}
	m.mu.Lock()
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()
	go m.loop(stopCh)
}

// Stop halts the sweep loop.
func (m *Monitor) Stop() {
	if !m.running.Swap(false) {
		return
	}
	m.mu.Lock()
	close(m.stopCh)
	m.mu.Unlock()
}

func (m *Monitor) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep checks every tracked symbol once and logs each stale finding. It
// never stops the session or drops the book; staleness here is advisory.
func (m *Monitor) sweep() {
	now := time.Now()
	for _, symbol := range m.symbols() {
		if err := m.check(now, symbol); err != nil {
			log.Warn().Err(err).Str("exchange", m.exchange).Str("symbol", symbol).Msg("book freshness check failed")
		}
	}
}

// check returns a staleness error for symbol as of now if its book is older
// than MaxAge, and nil if the book is within MaxAge or there is no book at
// all (a symbol with no book yet is not itself an error; CheckSymbol
// reports that state as fresh=false for callers that need to know).
func (m *Monitor) check(now time.Time, symbol string) error {
	ts, ok := m.bookTime(symbol)
	if !ok {
		return nil
	}
	age := now.Sub(ts)
	if age <= m.config.MaxAge {
		return nil
	}
	return errors.NewClockSyncError(m.exchange, now, ts, age)
}

// CheckSymbol reports whether symbol's book is currently fresh, for use by
// a caller that wants a synchronous answer (e.g. a health endpoint) rather
// than waiting on the next sweep.
func (m *Monitor) CheckSymbol(symbol string) (fresh bool, age time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts, ok := m.bookTime(symbol)
	if !ok {
		return false, 0, nil
	}
	age = time.Since(ts)
	return age <= m.config.MaxAge, age, nil
}
