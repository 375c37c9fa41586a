package client

import (
	"context"

	"chanrpc/router"
)

// ModuleProxy is the explicit stand-in for the original's dynamic module
// accessor (spec.md §1/§6.4), returned by Client.Register. It embeds
// router.ModuleProxy (route selection, the RemoteSingletonTable) and adds
// Invoke, which is defined here rather than on router.ModuleProxy itself to
// avoid a client↔router import cycle: router.Caller.Invoke returns `any` so
// router never needs to know about *RemoteCall.
type ModuleProxy struct {
	*router.ModuleProxy
}

// Invoke selects a remote handle for the given route (args[0], or nil for
// no route) and sends the call, returning immediately with a handle the
// caller drives as either a future (Await) or an iterator (Next/Send/
// Return/Throw) — spec.md §4.8 selection followed by §4.3 invocation.
func (p *ModuleProxy) Invoke(ctx context.Context, method string, args ...any) *RemoteCall {
	var route any
	if len(args) > 0 {
		route = args[0]
	}
	handle, err := p.Select(route)
	if err != nil {
		return &RemoteCall{err: err}
	}
	result := handle.Conn.Invoke(p.Name, method, args)
	call, ok := result.(*RemoteCall)
	if !ok {
		// Unreachable outside tests that stub router.Caller with something
		// other than *Conn.
		return &RemoteCall{}
	}
	return call
}
