package client

import (
	"context"
	"time"
)

// reconnectInterval is the fixed retry interval spec.md §4.7 specifies (no
// backoff — a deliberately simple, predictable supervisor).
const reconnectInterval = 2 * time.Second

// reconnectLoop retries conn.Open at a fixed interval until it succeeds or
// the client is paused (spec.md §4.7). A successful Open triggers conn's
// onConnect callback asynchronously via the new read pump's CONNECT frame,
// which re-marks the client's routing tables ready — this loop's only job
// is to keep dialing.
func (c *Client) reconnectLoop(conn *Conn) {
	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		paused := c.paused
		c.mu.Unlock()
		if paused {
			return
		}
		if conn.IsOpen() {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), reconnectInterval)
		err := conn.Open(ctx)
		cancel()
		if err != nil {
			c.errorHandler(err)
			continue
		}
		return
	}
}
