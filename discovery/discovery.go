// Package discovery is the optional layer that lets servers advertise
// themselves under a shared group name and lets clients auto-populate a
// router.Table from whatever servers are currently advertised, instead of
// listing every server's DSN by hand. It supplements the static
// multi-server configuration spec.md §4.8 describes — nothing in the core
// channel depends on it, and a deployment with a fixed, hand-configured
// server list never needs to import this package.
//
// Grounded on the teacher's registry package (registry/registry.go defines
// the same Register/Deregister/Discover/Watch shape); adapted from
// per-method service discovery to per-server advertisement, since chanrpc
// routes by serverId across a RemoteSingletonTable rather than by looking
// up instances of a named service.
package discovery

// Advertisement is what a server publishes about itself: the serverId
// clients key their RemoteHandle table by, and the DSN they dial to reach
// it.
type Advertisement struct {
	ServerID string
	DSN      string
}

// Directory is the service-discovery interface. EtcdDirectory is the
// production implementation; a test double can satisfy this without etcd.
type Directory interface {
	// Advertise registers this server under group with a TTL lease —
	// crashing without deregistering lets the entry expire instead of
	// leaving a ghost entry for clients to keep dialing.
	Advertise(group string, ad Advertisement, ttlSeconds int64) error

	// Withdraw removes this server's advertisement, used during graceful
	// shutdown before the listener closes.
	Withdraw(group string, serverID string) error

	// List returns every advertisement currently registered under group.
	List(group string) ([]Advertisement, error)

	// Watch emits the full advertisement list under group whenever it
	// changes, so a client can keep its router.Table in sync without
	// polling.
	Watch(group string) <-chan []Advertisement
}
