package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"chanrpc/client"
	"chanrpc/dsn"
	"chanrpc/rpcerr"
	"chanrpc/server"
)

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
	case "countTo":
		var n int
		json.Unmarshal(args[0], &n)
		return &countIterator{limit: n}, nil
	}
	return nil, nil
}

type countIterator struct{ limit, cur int }

func (it *countIterator) Yield(ctx context.Context, input json.RawMessage) (any, bool, error) {
	if it.cur >= it.limit {
		return nil, true, nil
	}
	it.cur++
	return it.cur, false, nil
}
func (it *countIterator) Return(ctx context.Context) error           { return nil }
func (it *countIterator) Throw(ctx context.Context, err error) error { return err }

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func startServer(t *testing.T) (*server.Server, int) {
	t.Helper()
	port := freePort(t)
	cfg, err := dsn.FromOptions(dsn.Config{Host: "127.0.0.1", Port: port, Path: "/rpc"})
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(*cfg, nil)
	srv.Register("Detail", func() server.Module { return &detailModule{} }, nil, nil)
	if err := srv.Open(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close(context.Background(), time.Second) })

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("tcp", addr); err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return srv, port
}

func connectClient(t *testing.T, port int) (*client.Client, *client.Conn) {
	t.Helper()
	c := client.New()
	cfg, err := dsn.FromOptions(dsn.Config{Host: "127.0.0.1", Port: port, Path: "/rpc", ID: "test-client"})
	if err != nil {
		t.Fatal(err)
	}
	conn, err := c.Connect(context.Background(), *cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close(context.Background()) })

	deadline := time.Now().Add(2 * time.Second)
	for conn.ServerID() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return c, conn
}

func TestInvokeAwaitRoundTrip(t *testing.T) {
	_, port := startServer(t)
	c, _ := connectClient(t, port)

	detail := c.Register("Detail")
	ctx := context.Background()

	if err := detail.Invoke(ctx, "setName", "Ben").Await(ctx, nil); err != nil {
		t.Fatalf("setName failed: %v", err)
	}

	var name string
	if err := detail.Invoke(ctx, "getName").Await(ctx, &name); err != nil {
		t.Fatalf("getName failed: %v", err)
	}
	if name != "Ben" {
		t.Fatalf("getName = %q, want Ben", name)
	}
}

func TestInvokeUnknownModuleReturnsServiceUnavailable(t *testing.T) {
	_, port := startServer(t)
	c, _ := connectClient(t, port)

	ghost := c.Register("Ghost")
	ctx := context.Background()
	err := ghost.Invoke(ctx, "noop").Await(ctx, nil)
	if !errors.Is(err, rpcerr.ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable for an unregistered module", err)
	}
}

func TestInvokeGeneratorSequence(t *testing.T) {
	_, port := startServer(t)
	c, _ := connectClient(t, port)

	detail := c.Register("Detail")
	ctx := context.Background()
	call := detail.Invoke(ctx, "countTo", 3)

	for want := 1; want <= 3; want++ {
		value, done, err := call.Next(ctx, nil)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if done {
			t.Fatalf("unexpected done=true at step %d", want)
		}
		var got int
		json.Unmarshal(value, &got)
		if got != want {
			t.Fatalf("Next() = %d, want %d", got, want)
		}
	}

	_, done, err := call.Next(ctx, nil)
	if err != nil {
		t.Fatalf("final Next failed: %v", err)
	}
	if !done {
		t.Fatal("expected done=true at end of stream")
	}
}

func TestSubscribePublish(t *testing.T) {
	srv, port := startServer(t)
	c, conn := connectClient(t, port)
	_ = conn

	received := make(chan string, 1)
	c.Subscribe("greeting", func(data json.RawMessage) {
		var s string
		json.Unmarshal(data, &s)
		received <- s
	})

	time.Sleep(50 * time.Millisecond) // let the subscription propagate
	srv.Publish("greeting", "hello")

	select {
	case got := <-received:
		if got != "hello" {
			t.Fatalf("received %q, want hello", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
	}
}
