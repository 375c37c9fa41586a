// Package rpcerr defines the transport-neutral error kinds exchanged across
// the RPC channel: protocol violations, unavailable services, call timeouts,
// user method failures, and connection-level failures.
//
// Every kind wraps a plain error so callers can use errors.Is/errors.As
// instead of string-matching messages, while the wire representation stays a
// flat {name, message, code} object for interop with non-Go endpoints.
package rpcerr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel kinds for errors.Is matching across package boundaries.
var (
	ErrProtocol         = errors.New("protocol error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout          = errors.New("call timeout")
	ErrMethod           = errors.New("method error")
	ErrConnection       = errors.New("connection error")
)

// Wire is the {name, message, code, stack} shape carried in THROW frames
// (spec grammar: err: {name, message, code?, stack?}).
type Wire struct {
	Name    string `json:"name"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

func (w *Wire) Error() string {
	if w.Message != "" {
		return w.Message
	}
	return w.Name
}

// Is lets errors.Is match a *Wire against the sentinel kind Reconstruct maps
// it to (e.g. a TimeoutError wire matches ErrTimeout).
func (w *Wire) Is(target error) bool {
	return errors.Is(Reconstruct(w), target)
}

// ServiceUnavailable builds the canonical "Service <name> is not available"
// ReferenceError used whenever a module is unregistered or not ready.
func ServiceUnavailable(module string) *Wire {
	return &Wire{Name: "ReferenceError", Message: fmt.Sprintf("Service %s is not available", module)}
}

// Timeout builds the canonical "<module>.<method>() timeout after <n>s" error,
// matching the original implementation's `str(timeout_ms / 1000) + "s"`
// (original_source/alar/rpc/client.py): unlike Go's default float
// formatting, Python's str() always keeps at least one decimal place, so
// 1.0 renders "1.0s" rather than "1s".
func Timeout(module, method string, seconds float64) *Wire {
	return &Wire{
		Name:    "TimeoutError",
		Message: fmt.Sprintf("%s.%s() timeout after %ss", module, method, formatSeconds(seconds)),
	}
}

func formatSeconds(seconds float64) string {
	s := strconv.FormatFloat(seconds, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FromGo wraps an arbitrary Go error raised by a user method handler into
// the wire shape, preserving its message as-is.
func FromGo(err error) *Wire {
	if err == nil {
		return nil
	}
	var w *Wire
	if errors.As(err, &w) {
		return w
	}
	return &Wire{Name: "Error", Message: err.Error()}
}

// Reconstruct maps a received {name, code} wire error back to a canonical Go
// error kind, matching spec.md §7's pattern-matching requirement on the
// caller side. Codes win over names when both are present, following the
// original implementation's precedence (original_source/microse/utils.py
// parseException).
func Reconstruct(w *Wire) error {
	if w == nil {
		return nil
	}
	base := func(kind error) error {
		if w.Message == "" {
			return fmt.Errorf("%w: %s", kind, w.Name)
		}
		return fmt.Errorf("%w: %s", kind, w.Message)
	}

	switch w.Code {
	case "MODULE_NOT_FOUND", "ERR_MODULE_NOT_FOUND":
		return base(ErrServiceUnavailable)
	case "ERR_BUFFER_TOO_LARGE", "ERR_OUTOFMEMORY", "ERR_OUT_OF_RANGE":
		return base(ErrMethod)
	}

	switch w.Name {
	case "ReferenceError":
		return base(ErrServiceUnavailable)
	case "TimeoutError":
		return base(ErrTimeout)
	default:
		return base(ErrMethod)
	}
}
