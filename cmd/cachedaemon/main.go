// Command cachedaemon runs the cache sidecar: a single shared
// dual-quota LRU cache, served over a line-oriented loopback TCP
// protocol to resolver processes on the same host, at most 32
// connections at a time.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dnsscience/dnsiter/internal/cache"
	"github.com/dnsscience/dnsiter/internal/config"
	"github.com/dnsscience/dnsiter/internal/daemon"
)

var (
	listenAddr = flag.String("listen", daemon.DefaultAddr, "loopback address to listen on")
	configFlag = flag.String("config", "", "optional YAML configuration file")
	posCap     = flag.Int("positive-cap", 0, "positive entry cap (0 selects the default)")
	negCap     = flag.Int("negative-cap", 0, "negative entry cap (0 selects the default)")
)

func main() {
	flag.Parse()

	cacheCfg := cache.Config{PositiveCap: *posCap, NegativeCap: *negCap}
	if *configFlag != "" {
		f, err := config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cachedaemon: %v\n", err)
			os.Exit(1)
		}
		if cacheCfg.PositiveCap == 0 {
			cacheCfg.PositiveCap = f.CachePositiveCap
		}
		if cacheCfg.NegativeCap == 0 {
			cacheCfg.NegativeCap = f.CacheNegativeCap
		}
	}

	c := cache.New(cacheCfg)
	srv := daemon.NewServer(c)

	cp, cn := c.Caps()
	fmt.Println("cache_daemon starting")
	fmt.Printf("  listen:       %s\n", *listenAddr)
	fmt.Printf("  positive cap: %d\n", cp)
	fmt.Printf("  negative cap: %d\n", cn)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("cache_daemon shutting down")
		srv.Close()
	}()

	if err := srv.ListenAndServe(*listenAddr); err != nil {
		fmt.Fprintf(os.Stderr, "cachedaemon: %v\n", err)
		os.Exit(1)
	}
}
