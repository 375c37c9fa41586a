package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"chanrpc/frame"
	"chanrpc/transport"
)

// handleUpgrade implements spec.md §4.10: validate path (handled by the
// ServeMux route itself), require a non-empty id, check the configured
// secret if any, then upgrade and send the CONNECT handshake.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("id")
	if clientID == "" {
		http.Error(w, "missing id", http.StatusUnauthorized)
		return
	}
	if s.config.Secret != "" && r.URL.Query().Get("secret") != s.config.Secret {
		http.Error(w, "invalid secret", http.StatusUnauthorized)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	socket := transport.New(wsConn, 0)
	maxDelay := int64(s.config.MaxDelay)
	c := newConn(socket, clientID, maxDelay, s.handler, s.log)
	s.clients.Store(clientID, c)

	socket.WriteFrame(frame.CONNECT, s.config.ServerID)

	ctx := context.Background()
	socket.Listen(
		func(f *frame.Frame) { c.handle(ctx, f) },
		func(err error) {
			c.closeIterators(ctx)
			s.clients.Delete(clientID)
		},
	)
}
