// Command dnsdig is the one-shot/iterative DNS client CLI: a single
// query to a named server in DNS or DoT mode, or a full iterative
// resolution starting from that server, printed the way
// cmd/dnsscienced's main prints its startup banner.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dnsscience/dnsiter/internal/config"
	"github.com/dnsscience/dnsiter/internal/resolver"
	"github.com/dnsscience/dnsiter/internal/wire"
)

var (
	nsFlag          = flag.String("ns", "", "nameserver IP to query")
	nameFlag        = flag.String("name", "", "query name")
	qtypeFlag       = flag.String("qtype", "A", "query type: A|AAAA|NS|MX|TXT|CNAME|SOA")
	iterFlag        = flag.Bool("iter", false, "engage iterative resolution instead of a single hop")
	traceFlag       = flag.Bool("trace", false, "print per-step classification decisions to stderr")
	modeFlag        = flag.String("mode", "dns", "transport mode: dns|dot")
	sniFlag         = flag.String("sni", "", "TLS SNI / certificate hostname, required in dot mode")
	insecureDoTFlag = flag.Bool("insecure-dot", false, "skip certificate verification in dot mode (diagnostics only)")
	configFlag      = flag.String("config", "", "optional YAML configuration file")
	daemonFlag      = flag.String("daemon", "", "cache sidecar address (overrides config)")
	timeoutFlag     = flag.Duration("timeout", 3*time.Second, "combined send/receive timeout")
)

func main() {
	flag.Parse()

	var cfgFile *config.File
	if *configFlag != "" {
		f, err := config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dnsdig: %v\n", err)
			os.Exit(1)
		}
		cfgFile = f
	}

	if *nsFlag == "" || *nameFlag == "" {
		flag.Usage()
		os.Exit(1)
	}

	mode := resolver.ModeDNS
	if *modeFlag == "dot" {
		mode = resolver.ModeDoT
	}

	sni := *sniFlag
	if sni == "" && cfgFile != nil {
		sni = cfgFile.DoT.ServerName
	}
	if mode == resolver.ModeDoT && sni == "" {
		fmt.Fprintln(os.Stderr, "dnsdig: --mode dot requires --sni <hostname> (e.g. cloudflare-dns.com or dns.google)")
		os.Exit(2)
	}

	daemonAddr := *daemonFlag
	if daemonAddr == "" && cfgFile != nil {
		daemonAddr = cfgFile.DaemonAddr
	}

	res := resolver.New(resolver.Config{
		Mode:        mode,
		ServerName:  sni,
		DoTInsecure: *insecureDoTFlag || (cfgFile != nil && cfgFile.DoT.Insecure),
		UseEDNS:     true,
		Timeout:     cfgFile.Timeout(*timeoutFlag),
		DaemonAddr:  daemonAddr,
		Trace:       *traceFlag,
	})

	qtype := wire.TypeFromString(*qtypeFlag)
	ctx := context.Background()

	if !*iterFlag {
		runSingleHop(ctx, res, mode)
		return
	}
	runIterative(ctx, res, qtype)
}

func runSingleHop(ctx context.Context, res *resolver.Resolver, mode resolver.Mode) {
	msg, err := res.SingleQuery(ctx, *nsFlag, *nameFlag, wire.TypeFromString(*qtypeFlag))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: no valid reply from server %s\n", *nsFlag)
		os.Exit(3)
	}

	fmt.Println("--- Result (direct query to nameserver) ---")
	if mode == resolver.ModeDoT {
		fmt.Printf("Via server: %s (TCP/TLS)\n", *nsFlag)
	} else {
		fmt.Printf("Via server: %s\n", *nsFlag)
	}
	fmt.Printf("RCODE=%d AA=%d TC=%d\n", msg.Header.Rcode(), flagBit(msg.Header.Flags, 0x0400), flagBit(msg.Header.Flags, 0x0200))
	fmt.Printf("Counts: QD=%d AN=%d NS=%d AR=%d\n", msg.Header.QDCount, msg.Header.ANCount, msg.Header.NSCount, msg.Header.ARCount)

	if len(msg.Answer) > 0 {
		fmt.Println("Answers (first 5):")
		printRRs(msg, msg.Answer, 5)
	}
	if len(msg.Authority) > 0 {
		fmt.Println("Authorities (first 3):")
		printRRs(msg, msg.Authority, 3)
	}
	if len(msg.Additional) > 0 {
		fmt.Println("Additionals (first 3):")
		printRRs(msg, msg.Additional, 3)
	}
}

func printRRs(msg *wire.Message, rrs []wire.RR, limit int) {
	for i, rr := range rrs {
		if i >= limit {
			break
		}
		fmt.Printf("  %s  TTL=%d  TYPE=%s", rr.Name, rr.TTL, wire.TypeToString(rr.Type))
		switch rr.Type {
		case wire.TypeA:
			if ip, ok := rr.A(); ok {
				fmt.Printf("  %s\n", ip)
				continue
			}
		case wire.TypeAAAA:
			if ip, ok := rr.AAAA(); ok {
				fmt.Printf("  %s\n", ip)
				continue
			}
		case wire.TypeCNAME, wire.TypeNS:
			if name, ok := rr.RDATAName(msg); ok {
				fmt.Printf("  -> %s\n", name)
				continue
			}
		}
		fmt.Printf("  RDLEN=%d\n", len(rr.RData))
	}
}

func runIterative(ctx context.Context, res *resolver.Resolver, qtype uint16) {
	result, err := res.Resolve(ctx, *nsFlag, *nameFlag, qtype)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Resolution failed.")
		os.Exit(4)
	}

	fmt.Println("--- Result (iterative + cache) ---")
	fmt.Printf("RCODE=%d\n", result.Rcode)

	switch result.Kind {
	case resolver.OK:
		fmt.Printf("OK (TTL=%ds) RRset:\n", result.TTL)
		for _, rr := range result.RRSet {
			fmt.Printf("  %s  TTL=%d  TYPE=%s  RDLEN=%d\n", rr.Name, rr.TTL, wire.TypeToString(rr.Type), len(rr.RData))
		}
	case resolver.NXDOMAIN:
		fmt.Printf("NXDOMAIN (TTL=%ds)\n", result.TTL)
	case resolver.NODATA:
		fmt.Printf("NODATA (TTL=%ds)\n", result.TTL)
	default:
		fmt.Println("ERROR")
	}
}

func flagBit(flags uint16, mask uint16) int {
	if flags&mask != 0 {
		return 1
	}
	return 0
}
