package server

import "chanrpc/frame"

// Publish sends topic/data to every client whose id is in clientIDs, or to
// every connected client if clientIDs is empty (spec.md §4.9). Delivery is
// best-effort: a write failure to one client does not stop delivery to the
// others, and no acknowledgment is collected.
func (s *Server) Publish(topic string, data any, clientIDs ...string) {
	filter := make(map[string]bool, len(clientIDs))
	for _, id := range clientIDs {
		filter[id] = true
	}
	s.clients.Range(func(id string, c *conn) bool {
		if len(filter) == 0 || filter[id] {
			c.socket.WriteFrame(frame.PUBLISH, topic, data)
		}
		return true
	})
}
