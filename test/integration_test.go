// Package test holds end-to-end scenarios exercising the full client/server
// stack over a real websocket connection, grounded on the teacher's
// test/integration_test.go (one real listener, a real client, no mocks) and
// on spec.md §8's scenarios S1-S4 and S6 (there is no reconnect test for S5).
package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"chanrpc/client"
	"chanrpc/dsn"
	"chanrpc/middleware"
	"chanrpc/router"
	"chanrpc/server"
)

// detailModule mirrors original_source/tests/app/services/detail.py: a
// settable name, a plain getter, a three-item async generator, and a
// slow method used to exercise timeouts.
type detailModule struct{ name string }

func (d *detailModule) Invoke(ctx context.Context, method string, args []json.RawMessage) (any, error) {
	switch method {
	case "setName":
		var name string
		json.Unmarshal(args[0], &name)
		d.name = name
		return nil, nil
	case "getName":
		return d.name, nil
	case "getOrgs":
		return &orgIterator{orgs: []string{"Mozilla", "GitHub", "Linux"}}, nil
	case "triggerTimeout":
		time.Sleep(1500 * time.Millisecond)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown method %s", method)
}

type orgIterator struct {
	orgs []string
	i    int
}

func (it *orgIterator) Yield(ctx context.Context, input json.RawMessage) (any, bool, error) {
	if it.i >= len(it.orgs) {
		return nil, true, nil
	}
	v := it.orgs[it.i]
	it.i++
	return v, false, nil
}
func (it *orgIterator) Return(ctx context.Context) error           { it.i = len(it.orgs); return nil }
func (it *orgIterator) Throw(ctx context.Context, cause error) error { return cause }

func freePort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func waitListening(t testing.TB, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("tcp", addr); err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server never came up on %s", addr)
}

func newDetailServer(t testing.TB, port int, path, secret string) *server.Server {
	t.Helper()
	cfg, err := dsn.FromOptions(dsn.Config{Host: "127.0.0.1", Port: port, Path: path, Secret: secret})
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(*cfg, nil)
	srv.Register("tests.app.services.detail", func() server.Module { return &detailModule{} }, nil, nil)
	if err := srv.Open(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close(context.Background(), time.Second) })
	waitListening(t, fmt.Sprintf("127.0.0.1:%d", port))
	return srv
}

// S1: handshake & echo.
func TestScenario1HandshakeAndEcho(t *testing.T) {
	port := freePort(t)
	newDetailServer(t, port, "/svc", "")

	c := client.New()
	ctx := context.Background()
	cfg, _ := dsn.FromOptions(dsn.Config{Host: "127.0.0.1", Port: port, Path: "/svc", ID: "c1"})
	conn, err := c.Connect(ctx, *cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close(ctx) })

	deadline := time.Now().Add(2 * time.Second)
	for conn.ServerID() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if conn.ServerID() == "" {
		t.Fatal("never received CONNECT handshake")
	}

	detail := c.Register("tests.app.services.detail")
	if err := detail.Invoke(ctx, "setName", "Mr. Handsome").Await(ctx, nil); err != nil {
		t.Fatalf("setName: %v", err)
	}
	var name string
	if err := detail.Invoke(ctx, "getName").Await(ctx, &name); err != nil {
		t.Fatalf("getName: %v", err)
	}
	if name != "Mr. Handsome" {
		t.Fatalf("getName = %q, want %q", name, "Mr. Handsome")
	}
}

// S2: auth failure — connecting without the configured secret must fail the
// upgrade with 401, never reaching a CONNECT frame.
func TestScenario2AuthFailure(t *testing.T) {
	port := freePort(t)
	newDetailServer(t, port, "/svc", "tesla")

	c := client.New()
	cfg, _ := dsn.FromOptions(dsn.Config{Host: "127.0.0.1", Port: port, Path: "/svc", ID: "c1"})
	_, err := c.Connect(context.Background(), *cfg)
	if err == nil {
		t.Fatal("expected connect to fail without the shared secret")
	}
}

// S3: generator consumption.
func TestScenario3GeneratorConsumption(t *testing.T) {
	port := freePort(t)
	newDetailServer(t, port, "/svc", "")

	c := client.New()
	ctx := context.Background()
	cfg, _ := dsn.FromOptions(dsn.Config{Host: "127.0.0.1", Port: port, Path: "/svc", ID: "c1"})
	if _, err := c.Connect(ctx, *cfg); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close(ctx) })

	detail := c.Register("tests.app.services.detail")
	call := detail.Invoke(ctx, "getOrgs")

	want := []string{"Mozilla", "GitHub", "Linux"}
	for _, org := range want {
		value, done, err := call.Next(ctx, nil)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if done {
			t.Fatalf("unexpected done=true before %q", org)
		}
		var got string
		json.Unmarshal(value, &got)
		if got != org {
			t.Fatalf("Next() = %q, want %q", got, org)
		}
	}
	if _, done, err := call.Next(ctx, nil); err != nil || !done {
		t.Fatalf("expected final done=true, got done=%v err=%v", done, err)
	}
}

// S4: timeout — a server-side dispatch deadline shorter than the method's
// runtime must reject with the canonical TimeoutError message.
func TestScenario4Timeout(t *testing.T) {
	port := freePort(t)
	cfg, err := dsn.FromOptions(dsn.Config{Host: "127.0.0.1", Port: port, Path: "/svc"})
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(*cfg, nil)
	srv.Use(middleware.Timeout(1 * time.Second))
	srv.Register("tests.app.services.detail", func() server.Module { return &detailModule{} }, nil, nil)
	if err := srv.Open(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close(context.Background(), time.Second) })
	waitListening(t, fmt.Sprintf("127.0.0.1:%d", port))

	c := client.New()
	ctx := context.Background()
	clientCfg, _ := dsn.FromOptions(dsn.Config{Host: "127.0.0.1", Port: port, Path: "/svc", ID: "c1"})
	if _, err := c.Connect(ctx, *clientCfg); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close(ctx) })

	detail := c.Register("tests.app.services.detail")
	err = detail.Invoke(ctx, "triggerTimeout").Await(ctx, nil)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	want := "tests.app.services.detail.triggerTimeout() timeout after 1.0s"
	if err.Error() != fmt.Sprintf("call timeout: %s", want) {
		t.Fatalf("error = %q, want %q", err.Error(), "call timeout: "+want)
	}
}

// S6: multi-server routing — an exact-string route bypasses readiness and
// goes straight to the named handle; a blank route picks deterministically
// by hash among the ready handles; pausing one handle routes everything to
// the other.
func TestScenario6MultiServerRouting(t *testing.T) {
	portA := freePort(t)
	portB := freePort(t)
	newDetailServer(t, portA, "/svc", "")
	newDetailServer(t, portB, "/svc", "")

	c := client.New()
	ctx := context.Background()
	cfgA, _ := dsn.FromOptions(dsn.Config{Host: "127.0.0.1", Port: portA, Path: "/svc", ID: "c1"})
	cfgB, _ := dsn.FromOptions(dsn.Config{Host: "127.0.0.1", Port: portB, Path: "/svc", ID: "c1"})

	connA, err := c.Connect(ctx, *cfgA)
	if err != nil {
		t.Fatalf("connect A: %v", err)
	}
	connB, err := c.Connect(ctx, *cfgB)
	if err != nil {
		t.Fatalf("connect B: %v", err)
	}
	t.Cleanup(func() { c.Close(ctx) })

	deadline := time.Now().Add(2 * time.Second)
	for (connA.ServerID() == "" || connB.ServerID() == "") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	detail := c.Register("tests.app.services.detail")

	// Wait for both remote handles to be registered and ready.
	deadline = time.Now().Add(2 * time.Second)
	for detail.Table.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if detail.Table.Len() != 2 {
		t.Fatalf("expected 2 remote handles, got %d", detail.Table.Len())
	}

	handleA, ok := detail.Table.Get(connA.ServerID())
	if !ok {
		t.Fatalf("no handle for server A (%s)", connA.ServerID())
	}
	if handleA.Conn != router.Caller(connA) {
		t.Fatal("exact-route handle did not match connection A")
	}
	if h, err := detail.Select(connA.ServerID()); err != nil || h != handleA {
		t.Fatalf("Select(%q) did not return handle A (err=%v)", connA.ServerID(), err)
	}

	// A blank route's selection must be stable across repeated calls while
	// readiness is unchanged (invariant 4).
	first, err := detail.Select(nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := detail.Select(nil)
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if again != first {
			t.Fatal("route selection is not deterministic across repeated calls")
		}
	}
	ready := detail.Table.Ready()
	if want := ready[router.RouteID(nil)%uint64(len(ready))]; first != want {
		t.Fatalf("blank route picked %s, want %s by hash-mod over the ready handles", first.ServerID, want.ServerID)
	}

	// Pausing A's handle must route every subsequent blank-route call to B.
	handleA.SetReady(false)
	for i := 0; i < 5; i++ {
		h, err := detail.Select(nil)
		if err != nil {
			t.Fatalf("select after pausing A: %v", err)
		}
		if h.ServerID != connB.ServerID() {
			t.Fatalf("expected routing to fall back to B, got %s", h.ServerID)
		}
	}

	// The exact route to A still reaches A while A is paused.
	if h, err := detail.Select(connA.ServerID()); err != nil || h != handleA {
		t.Fatalf("exact route to paused A did not return handle A (err=%v)", err)
	}
}
