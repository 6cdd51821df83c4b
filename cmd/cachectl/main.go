// Command cachectl is the cache sidecar's admin CLI: it issues a
// single STATUS or GET command against the daemon and prints the
// reply.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dnsscience/dnsiter/internal/daemon"
	"github.com/dnsscience/dnsiter/internal/wire"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  cachectl status")
	fmt.Fprintln(os.Stderr, "  cachectl get <name> <type>")
	fmt.Fprintln(os.Stderr, "    e.g. cachectl get www.example.com A")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := daemon.NewClient(daemon.DefaultAddr, 0)
	ctx := context.Background()
	if err := client.Connect(ctx); err != nil || !client.Available() {
		fmt.Fprintln(os.Stderr, "cache_daemon is not running.")
		os.Exit(2)
	}
	defer client.Close()

	switch os.Args[1] {
	case "status":
		runStatus(ctx, client)
	case "get":
		if len(os.Args) < 4 {
			usage()
			os.Exit(1)
		}
		runGet(ctx, client, os.Args[2], os.Args[3])
	default:
		usage()
		os.Exit(1)
	}
}

func runStatus(ctx context.Context, client *daemon.Client) {
	line, err := client.Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cachectl: %v\n", err)
		os.Exit(3)
	}
	fmt.Println(line)
}

func runGet(ctx context.Context, client *daemon.Client, name, qtypeStr string) {
	qtype := wire.TypeFromString(qtypeStr)
	res, err := client.Get(ctx, wire.Normalize(name), qtype)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cachectl: %v\n", err)
		os.Exit(3)
	}

	switch res.Kind {
	case daemon.NotFound:
		fmt.Println("NOTFOUND")
	case daemon.Negative:
		kind := "NODATA"
		if res.Rcode == 3 {
			kind = "NXDOMAIN"
		}
		fmt.Printf("NEG ttl=%d rcode=%d (%s)\n", res.TTL, res.Rcode, kind)
	case daemon.Positive:
		fmt.Printf("POS ttl=%d rr=%d\n", res.TTL, len(res.RRSet))
		for _, rr := range res.RRSet {
			fmt.Printf("  %d %d %d %x\n", rr.Type, rr.Class, rr.TTL, rr.RData)
		}
	default:
		fmt.Println("ERROR")
	}
}
