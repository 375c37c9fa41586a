package router

import (
	"fmt"

	"chanrpc/rpcerr"
)

// ModuleProxy is the explicit, statically-typed stand-in for the original's
// dynamic attribute-chain module accessor (spec.md §1: "the module proxy
// accessor syntax ... is replaced by an explicit registry-lookup
// interface"). One ModuleProxy is bound to one module name and its
// RemoteSingletonTable; client.Client.Register returns one per module.
type ModuleProxy struct {
	Name  string
	Table *Table
}

// NewModuleProxy creates a proxy over an empty table for the given module
// name; the client fills the table as servers connect.
func NewModuleProxy(name string) *ModuleProxy {
	return &ModuleProxy{Name: name, Table: NewTable()}
}

// Select runs spec.md §4.8's call-site selection algorithm for the given
// route — args[0] of the call, or nil if the call took no arguments.
func (p *ModuleProxy) Select(route any) (*RemoteHandle, error) {
	if s, ok := route.(string); ok && s != "" {
		if h, ok := p.Table.Get(s); ok {
			return h, nil
		}
	}

	ready := p.Table.Ready()
	switch len(ready) {
	case 0:
		return nil, fmt.Errorf("%w: %s", rpcerr.ErrServiceUnavailable, rpcerr.ServiceUnavailable(p.Name).Message)
	case 1:
		return ready[0], nil
	default:
		id := RouteID(route)
		return ready[id%uint64(len(ready))], nil
	}
}
