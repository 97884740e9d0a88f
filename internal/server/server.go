// Package server wires every core component into one explicitly
// constructed value and exposes it over REST and WebSocket, per the
// "avoid ambient state" design note: exchange connectors, the symbol
// registry, and the order registry are process singletons in the system
// this was distilled from; here they are fields threaded through handlers.
package server

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lilwiggy/twap-gateway/internal/config"
	"github.com/lilwiggy/twap-gateway/internal/driver/binance"
	"github.com/lilwiggy/twap-gateway/internal/driver/kraken"
	"github.com/lilwiggy/twap-gateway/internal/freshness"
	"github.com/lilwiggy/twap-gateway/internal/venue"
	"github.com/lilwiggy/twap-gateway/pkg/aggregator"
	"github.com/lilwiggy/twap-gateway/pkg/auth"
	"github.com/lilwiggy/twap-gateway/pkg/domain"
	"github.com/lilwiggy/twap-gateway/pkg/registry"
	"github.com/lilwiggy/twap-gateway/pkg/session"
	"github.com/lilwiggy/twap-gateway/pkg/twap"
)

// Server is the fully-constructed gateway: every exchange session, the
// symbol and order registries, the aggregator, the TWAP engine, and the
// auth facade, plus the HTTP listener fronting them.
type Server struct {
	cfg *config.Config

	exchanges map[string]*session.ExchangeSession
	drivers   map[string]venue.Driver
	monitors  []*freshness.Monitor
	symbols   *registry.SymbolRegistry
	orders    *registry.OrderRegistry
	agg       *aggregator.Aggregator
	engine    *twap.Engine
	auth      *auth.Facade

	httpServer *httpServer

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup
}

// New constructs a Server from cfg. No goroutine is started until Start is
// called.
func New(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		exchanges: make(map[string]*session.ExchangeSession),
		drivers:   make(map[string]venue.Driver),
		orders:    registry.NewOrderRegistry(),
	}

	if err := s.initExchanges(); err != nil {
		return nil, err
	}

	s.symbols = registry.New(s.subscribers())
	s.agg = aggregator.New(s.bookSources())
	s.auth = auth.New(auth.StaticCredentialStore(cfg.Auth.Users))
	s.engine = twap.New(s.orders, s.symbols, s.venueBook)
	s.httpServer = newHTTPServer(s, cfg.Server)

	return s, nil
}

// initExchanges builds one ExchangeSession and one freshness Monitor per
// enabled venue.
func (s *Server) initExchanges() error {
	if s.cfg.Exchanges.Binance.Enabled {
		rest, err := binance.NewRESTClient(binance.Config{
			BaseURL:   s.cfg.Exchanges.Binance.RestBaseURL,
			Timeout:   s.cfg.Exchanges.Binance.Timeout,
			MaxWeight: s.cfg.Exchanges.Binance.MaxWeight,
		})
		if err != nil {
			return fmt.Errorf("binance rest client: %w", err)
		}
		s.addExchange(binance.NewDriver(rest))
	}

	if s.cfg.Exchanges.Kraken.Enabled {
		rest, err := kraken.NewRESTClient(kraken.Config{
			BaseURL:   s.cfg.Exchanges.Kraken.RestBaseURL,
			Timeout:   s.cfg.Exchanges.Kraken.Timeout,
			MaxWeight: s.cfg.Exchanges.Kraken.MaxWeight,
		})
		if err != nil {
			return fmt.Errorf("kraken rest client: %w", err)
		}
		s.addExchange(kraken.NewDriver(rest))
	}

	return nil
}

func (s *Server) addExchange(driver venue.Driver) {
	sess := session.New(driver, session.DefaultConfig())
	s.exchanges[driver.Name()] = sess
	s.drivers[driver.Name()] = driver

	monitor := freshness.New(driver.Name(), func(symbol string) (time.Time, bool) {
		book, ok := sess.LatestBook(symbol)
		if !ok {
			return time.Time{}, false
		}
		return book.Timestamp, true
	}, func() []string {
		return s.symbols.Symbols()
	}, freshness.Config{
		MaxAge:        s.cfg.Freshness.MaxAge,
		CheckInterval: s.cfg.Freshness.CheckInterval,
	})
	s.monitors = append(s.monitors, monitor)
}

// subscribers returns every exchange session as a registry.Subscriber, the
// fan-out target for symbol registry edge transitions.
func (s *Server) subscribers() []registry.Subscriber {
	subs := make([]registry.Subscriber, 0, len(s.exchanges))
	for _, sess := range s.exchanges {
		subs = append(subs, sess)
	}
	return subs
}

// bookSources returns every exchange session's LatestBook method as an
// aggregator.BookSource, keyed by exchange name.
func (s *Server) bookSources() map[string]aggregator.BookSource {
	sources := make(map[string]aggregator.BookSource, len(s.exchanges))
	for name, sess := range s.exchanges {
		sources[name] = sess.LatestBook
	}
	return sources
}

// venueBook resolves (exchange, symbol) to that exchange's current
// snapshot, the shape the TWAP engine needs to price against the venue of
// origin rather than the merged book.
func (s *Server) venueBook(exchange, symbol string) (*domain.OrderBookSnapshot, bool) {
	sess, ok := s.exchanges[exchange]
	if !ok {
		return nil, false
	}
	return sess.LatestBook(symbol)
}

// driverFor returns the venue.Driver backing an exchange name, for REST
// passthrough handlers (pairs, klines) that need RestPairs/RestKlines
// rather than the live book.
func (s *Server) driverFor(exchange string) (venue.Driver, bool) {
	d, ok := s.drivers[exchange]
	return d, ok
}

// Start brings up every exchange session, its freshness monitor, and the
// HTTP+WS listener. It blocks serving until the listener stops and returns
// the listener's error (http.ErrServerClosed after Stop); callers should run
// it in its own goroutine and call Stop to shut down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	for name, sess := range s.exchanges {
		if err := sess.Start(s.ctx); err != nil {
			return fmt.Errorf("start %s exchange session: %w", name, err)
		}
	}
	for _, monitor := range s.monitors {
		monitor.Start()
	}

	log.Info().Str("addr", s.cfg.Server.ListenAddr).Msg("starting gateway listener")
	return s.httpServer.Start()
}

// Stop tears the server down: HTTP listener first (stop accepting new
// client sessions), then every exchange session, in a bounded window.
func (s *Server) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown error")
	}

	for _, monitor := range s.monitors {
		monitor.Stop()
	}
	for name, sess := range s.exchanges {
		if err := sess.Stop(); err != nil {
			log.Warn().Err(err).Str("exchange", name).Msg("exchange session stop error")
		}
	}

	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
