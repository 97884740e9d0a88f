package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lilwiggy/twap-gateway/internal/config"
	"github.com/lilwiggy/twap-gateway/pkg/domain"
	"github.com/lilwiggy/twap-gateway/pkg/errors"
	"github.com/lilwiggy/twap-gateway/pkg/twap"
)

// httpServer owns the router and listener fronting a Server's components.
// Grounded on the teacher pack's read-only-API shape (middleware chain,
// subrouter, NotFoundHandler) generalised to a read-write surface.
type httpServer struct {
	srv      *Server
	router   *mux.Router
	upgrader websocket.Upgrader
	http     *http.Server
}

func newHTTPServer(srv *Server, cfg config.ServerConfig) *httpServer {
	router := mux.NewRouter()
	h := &httpServer{
		srv:    srv,
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		http: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	h.setupRoutes()
	return h
}

func (h *httpServer) setupRoutes() {
	h.router.Use(h.requestIDMiddleware)
	h.router.Use(h.requestLoggingMiddleware)

	h.router.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)
	h.router.HandleFunc("/exchanges", h.handleExchanges).Methods(http.MethodGet)
	h.router.HandleFunc("/pairs/{exchange}", h.handlePairs).Methods(http.MethodGet)
	h.router.HandleFunc("/klines/{exchange}/{symbol}", h.handleKlines).Methods(http.MethodGet)

	// /orders/twap is canonical, /twap is accepted as an alias per
	// SPEC_FULL §4/§9's "both request shapes SHOULD be accepted".
	h.router.HandleFunc("/orders/twap", h.handleSubmitTWAP).Methods(http.MethodPost)
	h.router.HandleFunc("/twap", h.handleSubmitTWAP).Methods(http.MethodPost)
	h.router.HandleFunc("/orders/{order_id}", h.handleOrderStatus).Methods(http.MethodGet)
	h.router.HandleFunc("/orders/{order_id}/cancel", h.handleCancelOrder).Methods(http.MethodPost)

	h.router.HandleFunc("/ws", h.handleWebSocket).Methods(http.MethodGet)

	h.router.NotFoundHandler = http.HandlerFunc(h.handleNotFound)
}

func (h *httpServer) Start() error {
	return h.http.ListenAndServe()
}

func (h *httpServer) Shutdown(ctx context.Context) error {
	return h.http.Shutdown(ctx)
}

func (h *httpServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (h *httpServer) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

func (h *httpServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	password := r.URL.Query().Get("password")

	token, err := h.srv.auth.Authenticate(username, password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *httpServer) handleExchanges(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.srv.exchanges))
	for name := range h.srv.exchanges {
		names = append(names, name)
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *httpServer) handlePairs(w http.ResponseWriter, r *http.Request) {
	exchange := mux.Vars(r)["exchange"]
	driver, ok := h.srv.driverFor(exchange)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported exchange")
		return
	}
	pairs, err := driver.RestPairs(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

func (h *httpServer) handleKlines(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	exchange, symbol := vars["exchange"], vars["symbol"]

	driver, ok := h.srv.driverFor(exchange)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported exchange")
		return
	}

	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	klines, err := driver.RestKlines(r.Context(), symbol, interval, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, klines)
}

func (h *httpServer) handleSubmitTWAP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if _, err := h.srv.auth.VerifyToken(token); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	req, err := parseTWAPRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Slices > h.srv.cfg.TWAP.MaxSlices {
		writeError(w, http.StatusBadRequest, "slices exceeds configured maximum")
		return
	}
	if req.DurationSecs > h.srv.cfg.TWAP.MaxDurationSecs {
		writeError(w, http.StatusBadRequest, "duration_secs exceeds configured maximum")
		return
	}
	if _, ok := h.srv.exchanges[req.Exchange]; !ok {
		writeError(w, http.StatusBadRequest, "unsupported exchange")
		return
	}

	order, err := h.srv.engine.Submit(h.srv.ctx, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"order_id": order.ID,
		"status":   string(order.Status),
	})
}

func parseTWAPRequest(r *http.Request) (*domain.TWAPRequest, error) {
	q := r.URL.Query()
	req := &domain.TWAPRequest{
		Exchange: q.Get("exchange"),
		Symbol:   q.Get("symbol"),
		Side:     q.Get("side"),
	}

	if totalQty := q.Get("total_qty"); totalQty != "" {
		d, err := domain.NewDecimal(totalQty)
		if err != nil {
			return nil, err
		}
		req.TotalQty = d
	}
	if slices := q.Get("slices"); slices != "" {
		n, err := strconv.Atoi(slices)
		if err != nil {
			return nil, err
		}
		req.Slices = n
	}
	if duration := q.Get("duration_secs"); duration != "" {
		n, err := strconv.Atoi(duration)
		if err != nil {
			return nil, err
		}
		req.DurationSecs = n
	}
	if limit := q.Get("limit_price"); limit != "" {
		d, err := domain.NewDecimal(limit)
		if err != nil {
			return nil, err
		}
		req.LimitPrice = d
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func (h *httpServer) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if _, err := h.srv.auth.VerifyToken(token); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	orderID := mux.Vars(r)["order_id"]
	order, err := h.srv.orders.Get(orderID)
	if err != nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, twap.Snapshot(order))
}

func (h *httpServer) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if _, err := h.srv.auth.VerifyToken(token); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	orderID := mux.Vars(r)["order_id"]
	if err := h.srv.engine.Cancel(orderID); err != nil {
		if _, ok := err.(*errors.NotFoundError); ok {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *httpServer) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
