package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chanrpc/frame"
	"chanrpc/rpcerr"
	"chanrpc/task"
)

// RemoteCall is the dual-natured handle Conn.Invoke returns (spec.md §9):
// the caller doesn't know, at invocation time, whether the remote method
// will resolve as a single value (Await) or a generator (Next/Send/Return/
// Throw) — the server never acknowledges an INVOKE that resolved to a
// generator (spec.md §4.4: "Initial INVOKE is acknowledged implicitly by
// next YIELD response"), so both shapes share one underlying frame
// exchange.
//
// Invoke always pushes exactly one awaiter for the INVOKE frame itself.
// Await simply waits on it. Next's first call instead reclaims that
// awaiter: if it is still pending, Next cancels it and sends a real YIELD
// frame with a fresh awaiter of its own; if the INVOKE awaiter has already
// resolved — a race meaning the method turned out to be a plain value, not
// a generator — that resolved value is surfaced as Next's first (and only)
// result instead of sending a now-meaningless YIELD. This avoids relying on
// the original implementation's coincidental FIFO queue-position behavior
// for the same case (original_source/alar/rpc/client.py AwaitableGenerator),
// which only works because nothing else is ever queued ahead of the first
// YIELD — a coincidence, not a contract.
type RemoteCall struct {
	conn  *Conn
	id    int64
	queue *task.Queue

	pending *task.Waiter
	ch      <-chan task.Result

	started bool
	err     error // set when Invoke failed to even send the INVOKE frame

	timeout time.Duration
}

// Await waits for the call to resolve as a single value and decodes it into
// out (nil to discard the value). Use this for non-generator methods.
func (r *RemoteCall) Await(ctx context.Context, out any) error {
	if r.err != nil {
		return r.err
	}
	res, err := r.wait(ctx, r.pending, r.ch)
	if err != nil {
		return err
	}
	if out == nil || len(res.Data) == 0 {
		return nil
	}
	return json.Unmarshal(res.Data, out)
}

// ensureStarted reclaims the INVOKE awaiter on the first Next/Send/Return/
// Throw call. It returns a non-nil result only in the race case described
// above, meaning the caller should treat it as the call's sole outcome
// instead of sending a frame.
func (r *RemoteCall) ensureStarted() *task.Result {
	if r.started {
		return nil
	}
	r.started = true

	select {
	case res, ok := <-r.ch:
		if ok {
			return &res
		}
	default:
	}

	if r.queue.Cancel(r.pending) {
		return nil
	}
	// Lost the race: the INVOKE awaiter resolved between our non-blocking
	// check and Cancel, so the channel is guaranteed ready now.
	res := <-r.ch
	return &res
}

// Next advances a generator one step, sending input (nil if none) and
// returning the yielded value and whether the generator is now finished.
func (r *RemoteCall) Next(ctx context.Context, input any) (json.RawMessage, bool, error) {
	if r.err != nil {
		return nil, false, r.err
	}
	if res := r.ensureStarted(); res != nil {
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Data, true, nil
	}

	payload, err := encodeInput(input)
	if err != nil {
		return nil, false, err
	}
	waiter, ch := r.queue.Push(frame.YIELD, payload)
	if err := r.conn.send(frame.YIELD, r.id, payload); err != nil {
		r.queue.Cancel(waiter)
		return nil, false, err
	}
	res, err := r.wait(ctx, waiter, ch)
	if err != nil {
		return nil, false, err
	}
	var body struct {
		Done  bool            `json:"done"`
		Value json.RawMessage `json:"value"`
	}
	if len(res.Data) > 0 {
		if err := json.Unmarshal(res.Data, &body); err != nil {
			return nil, false, fmt.Errorf("%w: decode yield reply: %v", rpcerr.ErrProtocol, err)
		}
	}
	return body.Value, body.Done, nil
}

// Return tells the remote generator to stop early (spec.md §4.3's generator
// return path), releasing its server-side iterator.
func (r *RemoteCall) Return(ctx context.Context) error {
	if r.err != nil {
		return r.err
	}
	if res := r.ensureStarted(); res != nil {
		return res.Err
	}
	waiter, ch := r.queue.Push(frame.RETURN, nil)
	if err := r.conn.send(frame.RETURN, r.id); err != nil {
		r.queue.Cancel(waiter)
		return err
	}
	_, err := r.wait(ctx, waiter, ch)
	return err
}

// Throw raises cause inside the remote generator at its current suspension
// point (spec.md §4.4 point 4).
func (r *RemoteCall) Throw(ctx context.Context, cause error) error {
	if r.err != nil {
		return r.err
	}
	if res := r.ensureStarted(); res != nil {
		return res.Err
	}
	wire := rpcerr.FromGo(cause)
	wirePayload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("%w: encode throw cause: %v", rpcerr.ErrProtocol, err)
	}
	waiter, ch := r.queue.Push(frame.THROW, wirePayload)
	if sendErr := r.conn.send(frame.THROW, r.id, wire); sendErr != nil {
		r.queue.Cancel(waiter)
		return sendErr
	}
	_, err = r.wait(ctx, waiter, ch)
	return err
}

func encodeInput(input any) (json.RawMessage, error) {
	if input == nil {
		return nil, nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("%w: encode yield input: %v", rpcerr.ErrProtocol, err)
	}
	return data, nil
}

// wait blocks for the waiter's reply, applying the call's timeout if set. On
// a timeout it cancels the waiter so a frame that arrives later finds
// nothing to resolve, rather than completing a waiter the caller has
// already given up on.
func (r *RemoteCall) wait(ctx context.Context, waiter *task.Waiter, ch <-chan task.Result) (task.Result, error) {
	waitCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	select {
	case res, ok := <-ch:
		if !ok {
			return task.Result{}, fmt.Errorf("%w: connection closed", rpcerr.ErrConnection)
		}
		return res, res.Err
	case <-waitCtx.Done():
		r.queue.Cancel(waiter)
		return task.Result{}, fmt.Errorf("%w: %v", rpcerr.ErrTimeout, waitCtx.Err())
	}
}
