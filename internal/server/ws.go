package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/lilwiggy/twap-gateway/pkg/session"
)

// handleWebSocket upgrades the connection and hands it to a fresh
// ClientSession, which owns the rest of the connection's lifetime (C4).
func (h *httpServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := session.NewClientSession(conn, h.srv.auth, h.srv.agg, h.srv.symbols)
	go client.Run()
}
