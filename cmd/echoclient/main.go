// Command echoclient connects to an echoserver instance and exercises its
// Detail module (spec.md scenario S1): set/get a plain value, then drain an
// async-generator method.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"chanrpc/client"
	"chanrpc/dsn"
)

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 8899, "server port")
	path := flag.String("path", "/rpc", "websocket upgrade path")
	secret := flag.String("secret", "", "shared secret")
	id := flag.String("id", "echoclient", "client id presented at handshake")
	flag.Parse()

	cfg, err := dsn.FromOptions(dsn.Config{Host: *host, Port: *port, Path: *path, Secret: *secret, ID: *id})
	if err != nil {
		panic(err)
	}

	c := client.New()
	ctx := context.Background()
	if _, err := c.Connect(ctx, *cfg); err != nil {
		panic(fmt.Errorf("connect: %w", err))
	}
	defer c.Close(ctx)

	detail := c.Register("Detail")

	if err := detail.Invoke(ctx, "setName", "Ben").Await(ctx, nil); err != nil {
		panic(fmt.Errorf("setName: %w", err))
	}

	var name string
	if err := detail.Invoke(ctx, "getName").Await(ctx, &name); err != nil {
		panic(fmt.Errorf("getName: %w", err))
	}
	fmt.Println("getName ->", name)

	call := detail.Invoke(ctx, "getOrgs")
	for {
		value, done, err := call.Next(ctx, nil)
		if err != nil {
			panic(fmt.Errorf("getOrgs: %w", err))
		}
		if done {
			break
		}
		var org string
		json.Unmarshal(value, &org)
		fmt.Println("getOrgs ->", org)
	}
}
