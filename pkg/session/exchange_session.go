// Package session owns the live connection to one upstream exchange
// (ExchangeSession) and the per-client downstream WebSocket connection
// (ClientSession).
package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/lxzan/gws"
	"github.com/rs/zerolog/log"

	"github.com/lilwiggy/twap-gateway/internal/venue"
	"github.com/lilwiggy/twap-gateway/pkg/domain"
	"github.com/lilwiggy/twap-gateway/pkg/errors"
)

// ReconnectConfig holds reconnection settings, shared across every venue.
type ReconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int // 0 = infinite
	Jitter       float64
}

// DefaultReconnectConfig returns the default reconnection configuration.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		MaxAttempts:  0,
		Jitter:       0.1,
	}
}

// Config holds ExchangeSession configuration.
type Config struct {
	PingInterval time.Duration
	Reconnect    ReconnectConfig
}

// DefaultConfig returns the default ExchangeSession configuration.
func DefaultConfig() Config {
	return Config{
		PingInterval: 20 * time.Second,
		Reconnect:    DefaultReconnectConfig(),
	}
}

// UpdateHandler receives a fresh order book snapshot for one symbol on one
// exchange, as soon as a depth update has been parsed and merged.
type UpdateHandler func(book *domain.OrderBookSnapshot)

// ExchangeSession manages one WebSocket connection to one upstream
// exchange, driven generically through a venue.Driver. It owns the
// reconnect-with-backoff loop and the latest order book per subscribed
// symbol; callers read books through LatestBook, which hands back an
// immutable snapshot pointer swapped on every update.
type ExchangeSession struct {
	driver venue.Driver
	config Config

	subscribed   map[string]bool
	subscribedMu stdsync.Mutex

	books   map[string]*domain.OrderBookSnapshot
	booksMu stdsync.RWMutex

	onUpdate UpdateHandler

	conn      *gws.Conn
	connected atomic.Bool
	closed    atomic.Bool
	connMu    stdsync.RWMutex

	reconnectAttempt int
	reconnecting     bool
	reconnectMu      stdsync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup

	pingTicker *time.Ticker
	pingMu     stdsync.Mutex
}

// New creates an ExchangeSession for the given venue driver.
func New(driver venue.Driver, cfg Config) *ExchangeSession {
	if cfg.PingInterval == 0 {
		cfg = DefaultConfig()
	}
	return &ExchangeSession{
		driver:     driver,
		config:     cfg,
		subscribed: make(map[string]bool),
		books:      make(map[string]*domain.OrderBookSnapshot),
	}
}

// OnUpdate registers the callback invoked with every fresh book snapshot.
func (s *ExchangeSession) OnUpdate(fn UpdateHandler) { s.onUpdate = fn }

// Name returns the underlying venue's identifier.
func (s *ExchangeSession) Name() string { return s.driver.Name() }

// Start connects to the exchange. It returns once the initial dial
// succeeds; subsequent disconnects are retried in the background.
func (s *ExchangeSession) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	return s.dial()
}

// Stop permanently closes the session. It cannot be restarted.
func (s *ExchangeSession) Stop() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.stopPingTicker()
	if s.cancel != nil {
		s.cancel()
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteClose(1000, nil)
		s.conn = nil
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Str("exchange", s.driver.Name()).Msg("timeout waiting for session goroutines to stop")
	}
	return nil
}

// IsConnected reports whether the underlying WebSocket is connected.
func (s *ExchangeSession) IsConnected() bool { return s.connected.Load() }

// Subscribe adds symbol to the session's live subscription set. For
// venues that fold symbols into the connection URL, this reconnects; for
// venues with control-frame subscriptions, it sends a frame in place.
func (s *ExchangeSession) Subscribe(symbol string) error {
	symbol = domain.Canonical(symbol)

	s.subscribedMu.Lock()
	if s.subscribed[symbol] {
		s.subscribedMu.Unlock()
		return nil
	}
	s.subscribed[symbol] = true
	s.subscribedMu.Unlock()

	frame, err := s.driver.SubscribeFrame(symbol)
	if err != nil {
		return fmt.Errorf("build subscribe frame: %w", err)
	}
	if frame == nil {
		if s.connected.Load() {
			go s.reconnect()
		}
		return nil
	}
	return s.send(frame)
}

// Unsubscribe removes symbol from the session's live subscription set.
func (s *ExchangeSession) Unsubscribe(symbol string) error {
	symbol = domain.Canonical(symbol)

	s.subscribedMu.Lock()
	if !s.subscribed[symbol] {
		s.subscribedMu.Unlock()
		return nil
	}
	delete(s.subscribed, symbol)
	s.subscribedMu.Unlock()

	s.booksMu.Lock()
	delete(s.books, symbol)
	s.booksMu.Unlock()

	frame, err := s.driver.UnsubscribeFrame(symbol)
	if err != nil {
		return fmt.Errorf("build unsubscribe frame: %w", err)
	}
	if frame == nil {
		if s.connected.Load() {
			go s.reconnect()
		}
		return nil
	}
	return s.send(frame)
}

// LatestBook returns the most recently parsed book for symbol, if any.
// The returned pointer is never mutated after publication: callers may
// retain it across concurrent updates without copying.
func (s *ExchangeSession) LatestBook(symbol string) (*domain.OrderBookSnapshot, bool) {
	s.booksMu.RLock()
	defer s.booksMu.RUnlock()
	book, ok := s.books[domain.Canonical(symbol)]
	return book, ok
}

func (s *ExchangeSession) send(frame []byte) error {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()
	if conn == nil {
		return errors.NewConnectionError(s.driver.Name(), "", "not connected", true)
	}
	return conn.WriteString(string(frame))
}

func (s *ExchangeSession) symbolList() []string {
	s.subscribedMu.Lock()
	defer s.subscribedMu.Unlock()
	out := make([]string, 0, len(s.subscribed))
	for sym := range s.subscribed {
		out = append(out, sym)
	}
	return out
}

func (s *ExchangeSession) dial() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	url := s.driver.DialURL(s.symbolList())
	option := &gws.ClientOption{
		Addr:      url,
		TlsConfig: &tls.Config{InsecureSkipVerify: false},
	}

	conn, _, err := gws.NewClient(s, option)
	if err != nil {
		return errors.NewConnectionError(s.driver.Name(), url, err.Error(), true)
	}

	if s.conn != nil {
		s.conn.WriteClose(1000, nil)
	}
	s.conn = conn
	s.connected.Store(true)
	s.reconnectMu.Lock()
	s.reconnectAttempt = 0
	s.reconnectMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn.ReadLoop()
	}()

	s.startPingTicker()
	s.resubscribeControlFrames()

	log.Info().Str("exchange", s.driver.Name()).Str("url", url).Msg("exchange session connected")
	return nil
}

// resubscribeControlFrames re-sends subscribe frames for every tracked
// symbol after a fresh dial, for venues whose subscriptions are
// control-frame driven rather than folded into the connection URL.
func (s *ExchangeSession) resubscribeControlFrames() {
	for _, sym := range s.symbolList() {
		frame, err := s.driver.SubscribeFrame(sym)
		if err != nil || frame == nil {
			continue
		}
		if err := s.conn.WriteString(string(frame)); err != nil {
			log.Warn().Err(err).Str("exchange", s.driver.Name()).Str("symbol", sym).Msg("resubscribe failed")
		}
	}
}

// OnOpen implements gws.EventHandler.
func (s *ExchangeSession) OnOpen(socket *gws.Conn) {
	socket.SetDeadline(time.Now().Add(s.config.PingInterval * 2))
}

// OnClose implements gws.EventHandler.
func (s *ExchangeSession) OnClose(socket *gws.Conn, err error) {
	s.connMu.RLock()
	current := s.conn
	s.connMu.RUnlock()
	if current != socket {
		// A stale socket's close event: dial() already replaced it with a
		// newer connection, so this event carries no information about the
		// session's current state and must not tear it down.
		return
	}

	s.connected.Store(false)
	s.stopPingTicker()
	s.invalidateBooks()

	log.Warn().Err(err).Str("exchange", s.driver.Name()).Msg("exchange session disconnected")

	if !s.closed.Load() {
		go s.reconnect()
	}
}

// invalidateBooks clears every held snapshot so LatestBook cannot hand a
// stale pre-disconnect book to callers for the duration of the reconnect
// and resubscribe cycle.
func (s *ExchangeSession) invalidateBooks() {
	s.booksMu.Lock()
	s.books = make(map[string]*domain.OrderBookSnapshot)
	s.booksMu.Unlock()
}

// OnPing implements gws.EventHandler.
func (s *ExchangeSession) OnPing(socket *gws.Conn, payload []byte) {
	socket.SetDeadline(time.Now().Add(s.config.PingInterval * 2))
	socket.WritePong(payload)
}

// OnPong implements gws.EventHandler.
func (s *ExchangeSession) OnPong(socket *gws.Conn, payload []byte) {
	socket.SetDeadline(time.Now().Add(s.config.PingInterval * 2))
}

// OnMessage implements gws.EventHandler.
func (s *ExchangeSession) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	socket.SetDeadline(time.Now().Add(s.config.PingInterval * 2))

	data := message.Bytes()
	if len(data) == 0 {
		return
	}

	symbol, bids, asks, ok := s.driver.ParseMessage(data)
	if !ok {
		return
	}

	book := &domain.OrderBookSnapshot{
		Exchange:  s.driver.Name(),
		Symbol:    symbol,
		Bids:      domain.TruncateDepth(bids),
		Asks:      domain.TruncateDepth(asks),
		Timestamp: time.Now().UTC(),
	}

	s.booksMu.Lock()
	s.books[symbol] = book
	s.booksMu.Unlock()

	if s.onUpdate != nil {
		s.safeCallback(func() { s.onUpdate(book) })
	}
}

func (s *ExchangeSession) safeCallback(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("exchange", s.driver.Name()).Msg("recovered panic in update handler")
		}
	}()
	fn()
}

func (s *ExchangeSession) startPingTicker() {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()

	if s.pingTicker != nil {
		s.pingTicker.Stop()
	}
	s.pingTicker = time.NewTicker(s.config.PingInterval)
	go func() {
		for range s.pingTicker.C {
			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()
			if conn != nil && s.connected.Load() {
				conn.WritePing(nil)
			}
		}
	}()
}

func (s *ExchangeSession) stopPingTicker() {
	s.pingMu.Lock()
	defer s.pingMu.Unlock()
	if s.pingTicker != nil {
		s.pingTicker.Stop()
		s.pingTicker = nil
	}
}

// reconnect retries dial with exponential backoff and jitter until it
// succeeds or the session is closed.
func (s *ExchangeSession) reconnect() error {
	s.reconnectMu.Lock()
	if s.reconnecting {
		s.reconnectMu.Unlock()
		return nil
	}
	s.reconnecting = true
	s.reconnectMu.Unlock()

	defer func() {
		s.reconnectMu.Lock()
		s.reconnecting = false
		s.reconnectMu.Unlock()
	}()

	if s.closed.Load() {
		return errors.NewExchangeError(s.driver.Name(), "reconnect", "session is closed", nil)
	}

	for {
		if s.closed.Load() || (s.ctx != nil && s.ctx.Err() != nil) {
			return errors.NewExchangeError(s.driver.Name(), "reconnect", "session closed or context cancelled", nil)
		}

		s.reconnectMu.Lock()
		s.reconnectAttempt++
		attempt := s.reconnectAttempt
		s.reconnectMu.Unlock()

		if s.config.Reconnect.MaxAttempts > 0 && attempt > s.config.Reconnect.MaxAttempts {
			return errors.NewWebSocketReconnectError(
				s.driver.Name(), "", "max reconnection attempts exceeded",
				attempt, s.config.Reconnect.MaxAttempts,
			)
		}

		time.Sleep(s.calculateBackoff(attempt))

		if err := s.dial(); err != nil {
			continue
		}

		s.reconnectMu.Lock()
		s.reconnectAttempt = 0
		s.reconnectMu.Unlock()
		return nil
	}
}

// calculateBackoff computes delay = min(initialDelay*2^(attempt-1), maxDelay)
// with +/-jitter applied, so attempt 1 waits about initialDelay.
func (s *ExchangeSession) calculateBackoff(attempt int) time.Duration {
	cfg := s.config.Reconnect

	delay := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}

	if cfg.Jitter > 0 {
		jitter := time.Duration(float64(delay) * cfg.Jitter * (rand.Float64()*2 - 1))
		delay += jitter
	}
	return delay
}
