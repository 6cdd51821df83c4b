// Package resolver implements the iterative delegation walk: starting
// from one server IP, it sends one query at a time, classifies each
// reply as a final answer, a referral, a CNAME alias, or a negative
// answer, and drives the name-server work queue until it reaches a
// terminal result or exhausts its safety budget.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dnsscience/dnsiter/internal/cache"
	"github.com/dnsscience/dnsiter/internal/daemon"
	"github.com/dnsscience/dnsiter/internal/metrics"
	"github.com/dnsscience/dnsiter/internal/random"
	"github.com/dnsscience/dnsiter/internal/transport"
	"github.com/dnsscience/dnsiter/internal/wire"
)

// Mode selects the transport used for every query the resolver issues.
type Mode int

const (
	// ModeDNS sends UDP first and falls back to TCP on a truncated
	// response, per RFC 1035.
	ModeDNS Mode = iota
	// ModeDoT sends every query over a single TLS exchange (RFC 7858).
	ModeDoT
)

var (
	// ErrEmptyNSQueue means the walk ran out of candidate servers with
	// no further referral or retry work available.
	ErrEmptyNSQueue = errors.New("resolver: no remaining nameserver candidates")
	// ErrCNAMELoop means the alias chain exceeded MaxCNAMEHops.
	ErrCNAMELoop = errors.New("resolver: cname chain too long")
	// ErrSafetyExhausted means the global iteration budget ran out.
	ErrSafetyExhausted = errors.New("resolver: safety budget exhausted")
)

// ResultKind classifies a terminal Resolve outcome.
type ResultKind int

const (
	OK ResultKind = iota
	NXDOMAIN
	NODATA
	ErrorResult
)

func (k ResultKind) String() string {
	switch k {
	case OK:
		return "OK"
	case NXDOMAIN:
		return "NXDOMAIN"
	case NODATA:
		return "NODATA"
	default:
		return "ERROR"
	}
}

// Result is the terminal outcome of Resolve.
type Result struct {
	Kind  ResultKind
	Rcode uint16
	TTL   uint32
	RRSet []cache.RR
}

// DefaultNegativeTTL is the TTL given to a negative answer whose reply
// carried no SOA to hint a TTL from, or whose SOA hint is zero.
const DefaultNegativeTTL = 60 * time.Second

const (
	defaultMaxCNAMEHops = 10
	defaultSafetyBudget = 64
	defaultTimeout      = 3 * time.Second
)

// Config configures a Resolver.
type Config struct {
	Mode Mode

	// ServerName is the TLS SNI (and certificate hostname) used in
	// ModeDoT. Required when Mode is ModeDoT.
	ServerName string
	// DoTInsecure disables certificate verification in ModeDoT, for
	// diagnostics against servers with self-signed certificates.
	DoTInsecure bool

	UseEDNS bool
	Timeout time.Duration

	// Port is the UDP/TCP nameserver port (53 if zero). DoTPort is the
	// TLS port (853 if zero). Both are overridable for testing against
	// loopback stub servers.
	Port    int
	DoTPort int

	MaxCNAMEHops int
	SafetyBudget int

	CacheConfig cache.Config

	// DaemonAddr, if non-empty, is the cache sidecar to connect to at
	// startup. Leave empty to run without a sidecar.
	DaemonAddr string

	Trace bool
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxCNAMEHops == 0 {
		c.MaxCNAMEHops = defaultMaxCNAMEHops
	}
	if c.SafetyBudget == 0 {
		c.SafetyBudget = defaultSafetyBudget
	}
	if c.Port == 0 {
		c.Port = 53
	}
	if c.DoTPort == 0 {
		c.DoTPort = 853
	}
}

// Resolver drives iterative resolution for a single logical caller. It
// is not safe for concurrent use: each in-flight resolution owns the
// local cache and daemon client exclusively.
type Resolver struct {
	cfg    Config
	cache  *cache.Cache
	daemon *daemon.Client
	keyer  *cache.Keyer
}

// New creates a Resolver. If cfg.DaemonAddr is set, it attempts a
// single connect-with-handshake to the sidecar immediately; any
// failure leaves the resolver running cache-only for its lifetime.
func New(cfg Config) *Resolver {
	cfg.setDefaults()

	r := &Resolver{
		cfg:   cfg,
		cache: cache.New(cfg.CacheConfig),
	}
	if cfg.Trace {
		r.keyer = cache.NewKeyer()
	}

	if cfg.DaemonAddr != "" {
		r.daemon = daemon.NewClient(cfg.DaemonAddr, cfg.Timeout)
		err := r.daemon.Connect(context.Background())
		r.trace("daemon %s", availStr(err == nil && r.daemon.Available()))
	}

	return r
}

func availStr(ok bool) string {
	if ok {
		return "ON"
	}
	return "OFF"
}

func (r *Resolver) trace(format string, args ...any) {
	if !r.cfg.Trace {
		return
	}
	fmt.Fprintf(os.Stderr, "[trace] "+format+"\n", args...)
}

// SingleQuery sends one query to ns at the given name/type and returns
// the parsed reply, upgrading to TCP when the UDP reply is truncated
// (ModeDNS), or making a single TLS exchange (ModeDoT).
func (r *Resolver) SingleQuery(ctx context.Context, ns string, name string, qtype uint16) (*wire.Message, error) {
	name = wire.Normalize(name)
	id := random.TransactionID()
	payload, err := wire.BuildQuery(id, name, qtype, r.cfg.UseEDNS)
	if err != nil {
		return nil, err
	}

	if r.cfg.Mode == ModeDoT {
		metrics.Queries.WithLabelValues("dot").Inc()
		resp, err := transport.SendDoT(ctx, ns, r.cfg.DoTPort, payload, transport.DoTConfig{
			ServerName:         r.cfg.ServerName,
			InsecureSkipVerify: r.cfg.DoTInsecure,
		}, r.cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("resolver: dot query to %s: %w", ns, err)
		}
		return wire.Parse(resp)
	}

	metrics.Queries.WithLabelValues("udp").Inc()
	resp, err := transport.SendUDP(ctx, ns, r.cfg.Port, payload, r.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("resolver: udp query to %s: %w", ns, err)
	}
	msg, err := wire.Parse(resp)
	if err != nil {
		return nil, err
	}
	if msg.Header.Truncated() {
		metrics.Queries.WithLabelValues("tcp").Inc()
		respTCP, err := transport.SendTCP(ctx, ns, r.cfg.Port, payload, r.cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("resolver: tcp retry to %s: %w", ns, err)
		}
		return wire.Parse(respTCP)
	}
	return msg, nil
}

// Resolve performs the full iterative walk for name/qtype starting at
// startNS, first consulting the cache sidecar (if connected) and the
// local cache, then driving the delegation walk.
func (r *Resolver) Resolve(ctx context.Context, startNS string, name string, qtype uint16) (Result, error) {
	qname := wire.Normalize(name)
	r.trace("resolve %s %d (ns_start=%s)", qname, qtype, startNS)
	start := time.Now()

	if res, ok := r.lookupDaemon(ctx, qname, qtype); ok {
		metrics.ResolveDuration.WithLabelValues(res.Kind.String()).Observe(time.Since(start).Seconds())
		return res, nil
	}
	if res, ok := r.lookupCache(qname, qtype); ok {
		metrics.ResolveDuration.WithLabelValues(res.Kind.String()).Observe(time.Since(start).Seconds())
		return res, nil
	}
	r.trace("cache MISS %s %d", qname, qtype)

	res, err := r.walk(ctx, startNS, qname, qtype)
	metrics.ResolveDuration.WithLabelValues(res.Kind.String()).Observe(time.Since(start).Seconds())
	return res, err
}

func (r *Resolver) lookupDaemon(ctx context.Context, qname string, qtype uint16) (Result, bool) {
	if r.daemon == nil || !r.daemon.Available() {
		return Result{}, false
	}
	dg, err := r.daemon.Get(ctx, qname, qtype)
	if err != nil {
		return Result{}, false
	}
	switch dg.Kind {
	case daemon.Positive:
		r.trace("daemon HIT+ %s %d (ttl=%ds rr=%d)", qname, qtype, dg.TTL, len(dg.RRSet))
		return Result{Kind: OK, TTL: dg.TTL, RRSet: daemonRRSetToCache(dg.RRSet)}, true
	case daemon.Negative:
		r.trace("daemon HIT- %s %d (ttl=%ds rcode=%d)", qname, qtype, dg.TTL, dg.Rcode)
		kind := NODATA
		if dg.Rcode == 3 {
			kind = NXDOMAIN
		}
		return Result{Kind: kind, Rcode: dg.Rcode, TTL: dg.TTL}, true
	default:
		return Result{}, false
	}
}

func (r *Resolver) lookupCache(qname string, qtype uint16) (Result, bool) {
	now := time.Now()
	r.cache.PurgeExpired(now)
	key := cache.Key{Name: qname, Type: qtype, Class: wire.ClassIN}

	if pos, ok := r.cache.GetPositive(key, now); ok {
		ttl := remainingSeconds(pos.ExpiresAtMS, now)
		r.trace("cache HIT+ %s %d [%s] (ttl=%ds)", qname, qtype, r.keyFingerprint(key), ttl)
		return Result{Kind: OK, TTL: ttl, RRSet: pos.RRSet}, true
	}
	if neg, ok := r.cache.GetNegative(key, now); ok {
		ttl := remainingSeconds(neg.ExpiresAtMS, now)
		kind := NODATA
		if neg.Kind == cache.NXDOMAIN {
			kind = NXDOMAIN
		}
		r.trace("cache HIT- %s %d [%s] (ttl=%ds kind=%s)", qname, qtype, r.keyFingerprint(key), ttl, kind)
		return Result{Kind: kind, Rcode: neg.Rcode, TTL: ttl}, true
	}
	return Result{}, false
}

// keyFingerprint renders a compact per-key trace tag, only computed when
// tracing is enabled (r.keyer is nil otherwise).
func (r *Resolver) keyFingerprint(key cache.Key) string {
	if r.keyer == nil {
		return "-"
	}
	return fmt.Sprintf("%016x", r.keyer.Fingerprint(key))
}

// walk is the iterative delegation loop: a LIFO nameserver stack, a
// tried-set cleared on CNAME chase and successful referral, a CNAME
// hop counter, and a global safety budget.
func (r *Resolver) walk(ctx context.Context, startNS, qname string, qtype uint16) (Result, error) {
	currentName := qname
	nsQueue := []string{startNS}
	tried := map[string]bool{}
	cnameHops := 0
	safety := r.cfg.SafetyBudget

	for ; safety > 0; safety-- {
		if len(nsQueue) == 0 {
			return Result{Kind: ErrorResult}, ErrEmptyNSQueue
		}
		ns := nsQueue[len(nsQueue)-1]
		nsQueue = nsQueue[:len(nsQueue)-1]
		if tried[ns] {
			continue
		}
		tried[ns] = true

		r.trace("query %s %d -> %s", currentName, qtype, ns)
		msg, err := r.SingleQuery(ctx, ns, currentName, qtype)
		if err != nil {
			r.trace("timeout/error at %s: %v", ns, err)
			continue
		}

		d := classify(msg, currentName, qtype)
		r.trace("rcode=%d", d.rcode)
		metrics.Decisions.WithLabelValues(d.kind.String()).Inc()

		switch d.kind {
		case decisionFinalOK:
			r.trace("FINAL_OK %s %d (rr=%d)", currentName, qtype, len(d.rrset))
			return r.finalizeOK(currentName, qtype, d.rrset), nil

		case decisionFinalNXDOMAIN:
			ttl := d.negativeTTL
			r.trace("FINAL_NXDOMAIN ttl=%d", ttl)
			return r.finalizeNegative(currentName, qtype, true, ttl), nil

		case decisionFinalNODATA:
			ttl := d.negativeTTL
			r.trace("FINAL_NODATA ttl=%d", ttl)
			return r.finalizeNegative(currentName, qtype, false, ttl), nil

		case decisionCNAME:
			r.trace("CNAME %s -> %s", currentName, d.cnameTarget)
			currentName = d.cnameTarget
			cnameHops++
			if cnameHops > r.cfg.MaxCNAMEHops {
				return Result{Kind: ErrorResult}, ErrCNAMELoop
			}
			tried = map[string]bool{}
			nsQueue = []string{ns}
			continue

		case decisionReferral:
			r.trace("REFERRAL ns_names=%d glue_ips=%d", len(d.nextNSNames), len(d.nextNSIPs))
			next := append([]string{}, d.nextNSIPs...)
			if len(next) == 0 && len(d.nextNSNames) > 0 {
				for _, nsName := range d.nextNSNames {
					next = append(next, r.resolveHostIPs(ctx, startNS, nsName)...)
				}
			}
			if len(next) > 0 {
				tried = map[string]bool{}
				nsQueue = next
				continue
			}
			r.trace("REFERRAL with no usable NS, trying next candidate")
			continue

		default: // decisionRetry
			r.trace("RETRY next candidate")
			continue
		}
	}

	return Result{Kind: ErrorResult}, ErrSafetyExhausted
}

// resolveHostIPs sub-resolves a nameserver's A and AAAA records,
// starting the sub-walk from the same startNS as the outer query. Each
// sub-walk carries its own safety and CNAME budgets.
func (r *Resolver) resolveHostIPs(ctx context.Context, startNS, host string) []string {
	var ips []string

	if res, err := r.Resolve(ctx, startNS, host, wire.TypeA); err == nil && res.Kind == OK {
		for _, rr := range res.RRSet {
			if rr.Type == wire.TypeA && len(rr.RData) == 4 {
				ips = append(ips, fmt.Sprintf("%d.%d.%d.%d", rr.RData[0], rr.RData[1], rr.RData[2], rr.RData[3]))
			}
		}
	}
	if res, err := r.Resolve(ctx, startNS, host, wire.TypeAAAA); err == nil && res.Kind == OK {
		for _, rr := range res.RRSet {
			if rr.Type == wire.TypeAAAA && len(rr.RData) == 16 {
				if ip, ok := (wire.RR{Type: wire.TypeAAAA, RData: rr.RData}).AAAA(); ok {
					ips = append(ips, ip)
				}
			}
		}
	}
	return ips
}

func (r *Resolver) finalizeOK(qname string, qtype uint16, rrset []wire.RR) Result {
	cacheRRSet := toCacheRRSet(qname, rrset)
	ttl := minTTL(rrset)

	key := cache.Key{Name: qname, Type: qtype, Class: wire.ClassIN}
	now := time.Now()
	r.cache.PutPositive(key, cache.PositiveEntry{RRSet: cacheRRSet, ExpiresAtMS: cache.ExpiryFor(now, ttl)})

	if r.daemon != nil && r.daemon.Available() {
		if err := r.daemon.PutPositive(context.Background(), qname, qtype, ttl, toDaemonRRSet(cacheRRSet)); err != nil {
			r.trace("daemon PUTP failed: %v", err)
		}
	}

	return Result{Kind: OK, TTL: ttl, RRSet: cacheRRSet}
}

func (r *Resolver) finalizeNegative(qname string, qtype uint16, isNXDOMAIN bool, ttlHint uint32) Result {
	ttl := ttlHint
	if ttl == 0 {
		ttl = uint32(DefaultNegativeTTL / time.Second)
	}

	kind := cache.NODATA
	rcode := uint16(0)
	if isNXDOMAIN {
		kind = cache.NXDOMAIN
		rcode = 3
	}

	key := cache.Key{Name: qname, Type: qtype, Class: wire.ClassIN}
	now := time.Now()
	r.cache.PutNegative(key, cache.NegativeEntry{Kind: kind, Rcode: rcode, ExpiresAtMS: cache.ExpiryFor(now, ttl)})

	if r.daemon != nil && r.daemon.Available() {
		if err := r.daemon.PutNegative(context.Background(), qname, qtype, ttl, rcode); err != nil {
			r.trace("daemon PUTN failed: %v", err)
		}
	}

	resultKind := NODATA
	if isNXDOMAIN {
		resultKind = NXDOMAIN
	}
	return Result{Kind: resultKind, Rcode: rcode, TTL: ttl}
}

func remainingSeconds(expiresAtMS int64, now time.Time) uint32 {
	remainMS := expiresAtMS - now.UnixMilli()
	if remainMS <= 0 {
		return 0
	}
	return uint32(remainMS / 1000)
}

func minTTL(rrset []wire.RR) uint32 {
	if len(rrset) == 0 {
		return 0
	}
	m := rrset[0].TTL
	for _, rr := range rrset[1:] {
		if rr.TTL < m {
			m = rr.TTL
		}
	}
	return m
}

func toCacheRRSet(qname string, rrset []wire.RR) []cache.RR {
	out := make([]cache.RR, 0, len(rrset))
	for _, rr := range rrset {
		out = append(out, cache.RR{
			Name:  qname,
			Type:  rr.Type,
			Class: rr.Class,
			TTL:   rr.TTL,
			RData: rr.RData,
		})
	}
	return out
}

func toDaemonRRSet(rrset []cache.RR) []daemon.RR {
	out := make([]daemon.RR, 0, len(rrset))
	for _, rr := range rrset {
		out = append(out, daemon.RR{Type: rr.Type, Class: rr.Class, TTL: rr.TTL, RData: rr.RData})
	}
	return out
}

func daemonRRSetToCache(rrset []daemon.RR) []cache.RR {
	out := make([]cache.RR, 0, len(rrset))
	for _, rr := range rrset {
		out = append(out, cache.RR{Type: rr.Type, Class: rr.Class, TTL: rr.TTL, RData: rr.RData})
	}
	return out
}
