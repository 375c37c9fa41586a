package server

import (
	"strconv"
	"time"

	"chanrpc/frame"
)

const keepaliveInterval = 30 * time.Second

// nowMillis is the Go-side application clock used for PING/PONG timestamps —
// kept as a variable (not direct time.Now() calls) so tests can substitute a
// fake clock.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// normalizeMillis applies spec.md §4.6's "10-digit (seconds-scale) timestamp
// ×1000" coercion, resolving the open question the source left ambiguous by
// computing `now() - ts` on the *value*, never on a function reference
// (spec.md §9 open question).
func normalizeMillis(ts int64) int64 {
	if len(strconv.FormatInt(ts, 10)) == 10 {
		return ts * 1000
	}
	return ts
}

// keepaliveLoop runs for the lifetime of the server, pinging every connected
// client every 30 seconds and disconnecting any client that didn't answer
// the previous ping (spec.md §4.6).
func (s *Server) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closing:
			return
		case <-ticker.C:
			s.clients.Range(func(_ string, c *conn) bool {
				if !c.isAlive.CompareAndSwap(true, false) {
					c.socket.Close()
					return true
				}
				c.socket.WriteFrame(frame.PING, nowMillis())
				return true
			})
		}
	}
}
