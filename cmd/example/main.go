// Command example wires up a single business line and issues one GET
// request through the Manager, demonstrating the library's normal
// startup sequence: construct stores, construct the registry and
// manager, register a business, send a request, wait on its completion
// slot.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ltyfantasy/goapn/config"
	"github.com/ltyfantasy/goapn/core"
	"github.com/ltyfantasy/goapn/cache"
	"github.com/ltyfantasy/goapn/manager"
	"github.com/ltyfantasy/goapn/promise"
	"github.com/ltyfantasy/goapn/registry"
	"github.com/ltyfantasy/goapn/transport"
)

func main() {
	cfg := config.Load()

	cacheStore, err := cache.New(cfg.CacheDBPath)
	if err != nil {
		log.Fatalf("cache store: %v", err)
	}
	promiseStore, err := promise.New(cfg.PromiseDBPath)
	if err != nil {
		log.Fatalf("promise store: %v", err)
	}

	// registry.New needs a global init gate up front, and manager.New
	// normally owns that gate itself — so build the gate first and hand
	// the same instance to both.
	initGate := core.NewGate()
	reg := registry.New(initGate, transport.NewFactory(), registry.WithDebugMode(cfg.DebugMode))
	mgr := manager.New(cacheStore, promiseStore, reg, manager.WithInitGate(initGate))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := reg.AddBusiness(ctx, registry.Business{
		Identifier:      "example",
		BaseURL:         "https://httpbin.org",
		Parser:          core.JSONParser{},
		Interceptor:     core.NoopInterceptor{},
		ConnectTimeout:  core.DefaultConnectTimeout,
		SendTimeout:     core.DefaultSendTimeout,
		RecvTimeout:     core.DefaultRecvTimeout,
		RetryIntervalMs: int(core.DefaultRetryInterval.Milliseconds()),
	}); err != nil {
		log.Fatalf("add business: %v", err)
	}

	req := core.GET("example", "/get")
	req.Retry = core.RetryConfig{Type: core.RetryLimit, Max: 2, IntervalMs: 200}
	mgr.Send(req)

	select {
	case resp := <-req.Done():
		if resp.Success() {
			fmt.Fprintf(os.Stdout, "ok: %v\n", resp.Data)
		} else {
			fmt.Fprintf(os.Stdout, "error: %v\n", resp.Error)
		}
	case <-ctx.Done():
		log.Fatal("request timed out")
	}
}
