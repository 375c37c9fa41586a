// Command echoserver runs a single chanrpc server exposing a Detail module
// (spec.md scenario S1), grounded on original_source/tests/app/services/detail.py:
// a settable name, a plain getter, and an async-generator method.
package main

import (
	"context"
	"encoding/json"
	"flag"

	"go.uber.org/zap"

	"chanrpc/dsn"
	"chanrpc/middleware"
	"chanrpc/server"
)

type detail struct {
	name string
}

func (d *detail) Invoke(ctx context.Context, method string, args []json.RawMessage) (any, error) {
	switch method {
	case "setName":
		var name string
		if len(args) > 0 {
			json.Unmarshal(args[0], &name)
		}
		d.name = name
		return nil, nil
	case "getName":
		return d.name, nil
	case "getOrgs":
		return &orgIterator{orgs: []string{"Mozilla", "GitHub", "Linux"}}, nil
	default:
		return nil, errUnknownMethod(method)
	}
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

type errUnknownMethod string

func (e errUnknownMethod) Error() string { return "unknown method: " + string(e) }

func main() {
	host := flag.String("host", "127.0.0.1", "listen host")
	port := flag.Int("port", 8899, "listen port")
	path := flag.String("path", "/rpc", "websocket upgrade path")
	secret := flag.String("secret", "", "shared secret clients must present")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := dsn.FromOptions(dsn.Config{Host: *host, Port: *port, Path: *path, Secret: *secret})
	if err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	srv := server.New(*cfg, logger)
	srv.Use(middleware.Logging(logger))
	srv.Register("Detail", func() server.Module { return &detail{name: "Mr. World"} }, nil, nil)

	ctx := context.Background()
	if err := srv.Open(ctx, true); err != nil {
		logger.Fatal("open failed", zap.Error(err))
	}

	logger.Info("echoserver listening", zap.String("host", *host), zap.Int("port", *port), zap.String("path", *path))
	select {} // Open starts its own goroutines; block here until killed
}
