package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lilwiggy/twap-gateway/pkg/aggregator"
	"github.com/lilwiggy/twap-gateway/pkg/auth"
	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

const (
	clientWriteWait  = 10 * time.Second
	clientPongWait   = 60 * time.Second
	clientPingPeriod = (clientPongWait * 9) / 10
	clientMaxMessage = 64 * 1024

	// TickPeriod is the default interval between aggregated frame ticks.
	TickPeriod = 1 * time.Second
)

// SymbolSubscriber is the subset of the Symbol Registry a client session
// needs: adding and releasing its own subscription references.
type SymbolSubscriber interface {
	Add(symbol string) error
	Remove(symbol string) error
}

// inboundFrame is the shape of every downstream command frame; fields not
// relevant to action are left empty.
type inboundFrame struct {
	Action string `json:"action"`
	Token  string `json:"token"`
	Symbol string `json:"symbol"`
}

type authReply struct {
	Authenticated bool   `json:"authenticated"`
	Error         string `json:"error,omitempty"`
}

type orderBookFrame struct {
	Type   string      `json:"type"`
	Symbol string      `json:"symbol"`
	Bids   [][2]string `json:"bids"`
	Asks   [][2]string `json:"asks"`
}

// ClientSession is the per-connected-subscriber state machine (C4): it
// authenticates, accepts subscribe/unsubscribe commands, and ticks out
// merged order book frames for whatever symbols it currently holds. Its
// subscriptions set is written from the read pump goroutine (handleSubscribe/
// handleUnsubscribe/teardown) and read from the tick loop goroutine
// (emitTick), so subsMu guards it; the shared SymbolRegistry it drives does
// its own locking independently.
type ClientSession struct {
	conn   *websocket.Conn
	auth   *auth.Facade
	agg    *aggregator.Aggregator
	symbol SymbolSubscriber

	authenticated bool
	subscriptions map[string]struct{}
	subsMu        sync.Mutex

	send   chan []byte
	done   chan struct{}
	closed sync.Once
}

// NewClientSession wraps an upgraded WebSocket connection. Callers must
// call Run to start the session's read and write pumps; Run blocks until
// the connection closes.
func NewClientSession(conn *websocket.Conn, facade *auth.Facade, agg *aggregator.Aggregator, symbols SymbolSubscriber) *ClientSession {
	return &ClientSession{
		conn:          conn,
		auth:          facade,
		agg:           agg,
		symbol:        symbols,
		subscriptions: make(map[string]struct{}),
		send:          make(chan []byte, 16),
		done:          make(chan struct{}),
	}
}

// Run drives the session's read pump, write pump, and tick loop until the
// connection closes, then releases every subscription the session still
// holds exactly once.
func (c *ClientSession) Run() {
	go c.writePump()
	go c.tickLoop()
	c.readPump()
}

// readPump processes inbound command frames until the connection fails,
// then tears down every resource the session owns.
func (c *ClientSession) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(clientMaxMessage)
	c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("client session read error")
			}
			return
		}
		c.handleFrame(raw)
	}
}

// handleFrame dispatches one inbound command. Malformed JSON and unknown
// actions are dropped silently, matching the permissive client-protocol
// error policy; pre-auth privileged commands are likewise dropped rather
// than disconnecting the session.
func (c *ClientSession) handleFrame(raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}

	switch frame.Action {
	case "authenticate":
		c.handleAuthenticate(frame.Token)
	case "subscribe":
		if !c.authenticated {
			return
		}
		c.handleSubscribe(frame.Symbol)
	case "unsubscribe":
		if !c.authenticated {
			return
		}
		c.handleUnsubscribe(frame.Symbol)
	}
}

func (c *ClientSession) handleAuthenticate(token string) {
	_, err := c.auth.VerifyToken(token)
	if err != nil {
		c.authenticated = false
		c.enqueue(authReply{Authenticated: false, Error: "Invalid token"})
		return
	}
	c.authenticated = true
	c.enqueue(authReply{Authenticated: true})
}

func (c *ClientSession) handleSubscribe(symbol string) {
	if symbol == "" {
		return
	}
	symbol = domain.Canonical(symbol)

	c.subsMu.Lock()
	_, already := c.subscriptions[symbol]
	c.subsMu.Unlock()
	if already {
		return
	}

	if err := c.symbol.Add(symbol); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to add subscription")
		return
	}

	c.subsMu.Lock()
	c.subscriptions[symbol] = struct{}{}
	c.subsMu.Unlock()
}

func (c *ClientSession) handleUnsubscribe(symbol string) {
	if symbol == "" {
		return
	}
	symbol = domain.Canonical(symbol)

	c.subsMu.Lock()
	_, tracked := c.subscriptions[symbol]
	if tracked {
		delete(c.subscriptions, symbol)
	}
	c.subsMu.Unlock()
	if !tracked {
		return
	}

	if err := c.symbol.Remove(symbol); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to release subscription")
	}
}

// tickLoop emits, once per TickPeriod until the session closes, one frame
// holding an order_book entry for each subscribed symbol that has data (no
// frame when none has).
func (c *ClientSession) tickLoop() {
	ticker := time.NewTicker(TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.emitTick()
		}
	}
}

func (c *ClientSession) emitTick() {
	c.subsMu.Lock()
	symbols := make([]string, 0, len(c.subscriptions))
	for symbol := range c.subscriptions {
		symbols = append(symbols, symbol)
	}
	c.subsMu.Unlock()

	frames := make([]orderBookFrame, 0, len(symbols))
	for _, symbol := range symbols {
		merged, ok := c.agg.MergedBookFor(symbol)
		if !ok {
			continue
		}
		frames = append(frames, orderBookFrame{
			Type:   "order_book",
			Symbol: merged.Symbol,
			Bids:   levelsToPairs(merged.Bids),
			Asks:   levelsToPairs(merged.Asks),
		})
	}
	if len(frames) == 0 {
		return
	}
	c.enqueue(frames)
}

func levelsToPairs(levels []domain.PriceLevel) [][2]string {
	out := make([][2]string, len(levels))
	for i, l := range levels {
		out[i] = [2]string{l.Price.String(), l.Quantity.String()}
	}
	return out
}

// enqueue marshals v and hands it to the write pump, dropping the frame if
// the send buffer is full rather than blocking the tick loop or read pump.
func (c *ClientSession) enqueue(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal outbound frame")
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Msg("client session send buffer full, dropping frame")
	}
}

// writePump serialises every outbound write onto the connection: enqueued
// frames and periodic pings share one writer so gorilla/websocket's
// single-writer-per-connection rule is never violated.
func (c *ClientSession) writePump() {
	ticker := time.NewTicker(clientPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown releases every symbol subscription the session still holds
// exactly once and signals the write pump and tick loop to stop. Leaking a
// subscription across a client disconnect is the one failure mode this
// method exists to prevent.
func (c *ClientSession) teardown() {
	c.closed.Do(func() {
		close(c.done)

		c.subsMu.Lock()
		symbols := make([]string, 0, len(c.subscriptions))
		for symbol := range c.subscriptions {
			symbols = append(symbols, symbol)
		}
		c.subscriptions = make(map[string]struct{})
		c.subsMu.Unlock()

		for _, symbol := range symbols {
			if err := c.symbol.Remove(symbol); err != nil {
				log.Warn().Err(err).Str("symbol", symbol).Msg("failed to release subscription on teardown")
			}
		}
		c.conn.Close()
	})
}
