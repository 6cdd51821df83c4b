package daemon

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dnsscience/dnsiter/internal/cache"
	"github.com/dnsscience/dnsiter/internal/wire"
	"github.com/dnsscience/dnsiter/internal/worker"
)

// connWorkers bounds how many sidecar connections are served
// concurrently. The daemon is a loopback-only, low-fanout sidecar, so a
// small fixed pool (rather than one goroutine per connection) is enough
// to guard against a misbehaving client opening connections in a loop.
const connWorkers = 32

// Server is the cache sidecar: a single shared cache.Cache guarded by
// one mutex, with accepted connections dispatched onto a bounded worker
// pool rather than a goroutine per connection.
type Server struct {
	mu    sync.Mutex
	cache *cache.Cache

	ln   net.Listener
	pool *worker.Pool

	connWG sync.WaitGroup
	quit   chan struct{}
}

// NewServer creates a Server wrapping c.
func NewServer(c *cache.Cache) *Server {
	return &Server{
		cache: c,
		pool:  worker.NewPool(worker.Config{Workers: connWorkers, QueueSize: connWorkers * 4}),
		quit:  make(chan struct{}),
	}
}

// ListenAndServe binds addr (DefaultAddr if empty) and serves until
// Close is called.
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("daemon: listen %s: %w", addr, err)
	}
	s.ln = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				continue
			}
		}
		s.connWG.Add(1)
		job := worker.JobFunc(func(ctx context.Context) error {
			defer s.connWG.Done()
			s.handleConn(conn)
			return nil
		})
		if err := s.pool.Submit(job); err != nil {
			s.connWG.Done()
			conn.Close()
		}
	}
}

// Close stops accepting connections, closes the open ones, waits for
// their handlers to return, and shuts down the worker pool. Calls after
// the first return nil.
func (s *Server) Close() error {
	select {
	case <-s.quit:
		return nil
	default:
	}
	close(s.quit)
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.connWG.Wait()
	s.pool.Close()
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.quit:
			conn.Close()
		case <-done:
		}
	}()
	r := bufio.NewReaderSize(conn, maxLineBytes)

	for {
		line, err := r.ReadString('\n')
		if err != nil || len(line) > maxLineBytes {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return
		}

		fields := strings.Fields(line)
		cmd := fields[0]

		switch cmd {
		case "STATUS":
			s.mu.Lock()
			s.cache.PurgeExpired(time.Now())
			cp, cn := s.cache.Caps()
			s.mu.Unlock()
			writeLine(conn, fmt.Sprintf("OK cache_daemon %d/%d", cp, cn))

		case "GET":
			if len(fields) != 3 {
				writeLine(conn, "ERR bad GET")
				continue
			}
			s.handleGet(conn, fields[1], fields[2])

		case "PUTP":
			if len(fields) != 5 {
				writeLine(conn, "ERR bad PUTP")
				continue
			}
			if !s.handlePutP(conn, r, fields[1], fields[2], fields[3], fields[4]) {
				return
			}

		case "PUTN":
			if len(fields) != 5 {
				writeLine(conn, "ERR bad PUTN")
				continue
			}
			s.handlePutN(conn, fields[1], fields[2], fields[3], fields[4])

		case "QUIT", "EXIT":
			writeLine(conn, "BYE")
			return

		default:
			writeLine(conn, "ERR unknown")
		}
	}
}

func writeLine(conn net.Conn, line string) {
	conn.Write([]byte(line + "\n"))
}

func (s *Server) handleGet(conn net.Conn, nameRaw, typeRaw string) {
	qtype, err := strconv.ParseUint(typeRaw, 10, 16)
	if err != nil {
		writeLine(conn, "ERR bad GET")
		return
	}
	key := cache.Key{Name: wire.Normalize(nameRaw), Type: uint16(qtype), Class: wire.ClassIN}

	now := time.Now()
	s.mu.Lock()
	s.cache.PurgeExpired(now)
	pos, okPos := s.cache.GetPositive(key, now)
	var neg cache.NegativeEntry
	var okNeg bool
	if !okPos {
		neg, okNeg = s.cache.GetNegative(key, now)
	}
	s.mu.Unlock()

	switch {
	case okPos:
		ttl := remainingSeconds(pos.ExpiresAtMS, now)
		writeLine(conn, fmt.Sprintf("POS %d %d", ttl, len(pos.RRSet)))
		for _, rr := range pos.RRSet {
			writeLine(conn, fmt.Sprintf("%d %d %d %s", rr.Type, rr.Class, rr.TTL, encodeHex(rr.RData)))
		}
	case okNeg:
		ttl := remainingSeconds(neg.ExpiresAtMS, now)
		writeLine(conn, fmt.Sprintf("NEG %d %d", ttl, neg.Rcode))
	default:
		writeLine(conn, "NOTFOUND")
	}
}

func (s *Server) handlePutP(conn net.Conn, r *bufio.Reader, nameRaw, typeRaw, ttlRaw, countRaw string) bool {
	qtype, err1 := strconv.ParseUint(typeRaw, 10, 16)
	ttl, err2 := strconv.ParseUint(ttlRaw, 10, 32)
	n, err3 := strconv.ParseUint(countRaw, 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		writeLine(conn, "ERR bad PUTP")
		return true
	}

	now := time.Now()
	rrset := make([]cache.RR, 0, n)
	name := wire.Normalize(nameRaw)
	for i := uint64(0); i < n; i++ {
		line, err := r.ReadString('\n')
		if err != nil || len(line) > maxLineBytes {
			writeLine(conn, "ERR bad PUTP lines")
			return false
		}
		rr, err := parseCacheRRLine(name, strings.TrimRight(line, "\r\n"))
		if err != nil {
			writeLine(conn, "ERR bad RR line")
			return true
		}
		rrset = append(rrset, rr)
	}

	entry := cache.PositiveEntry{
		RRSet:       rrset,
		ExpiresAtMS: cache.ExpiryFor(now, uint32(ttl)),
	}
	key := cache.Key{Name: name, Type: uint16(qtype), Class: wire.ClassIN}

	s.mu.Lock()
	s.cache.PutPositive(key, entry)
	s.mu.Unlock()

	writeLine(conn, "OK")
	return true
}

func (s *Server) handlePutN(conn net.Conn, nameRaw, typeRaw, ttlRaw, rcodeRaw string) {
	qtype, err1 := strconv.ParseUint(typeRaw, 10, 16)
	ttl, err2 := strconv.ParseUint(ttlRaw, 10, 32)
	rcode, err3 := strconv.ParseUint(rcodeRaw, 10, 16)
	if err1 != nil || err2 != nil || err3 != nil {
		writeLine(conn, "ERR bad PUTN")
		return
	}

	now := time.Now()
	kind := cache.NODATA
	if rcode == 3 {
		kind = cache.NXDOMAIN
	}
	key := cache.Key{Name: wire.Normalize(nameRaw), Type: uint16(qtype), Class: wire.ClassIN}
	entry := cache.NegativeEntry{
		Kind:        kind,
		Rcode:       uint16(rcode),
		ExpiresAtMS: cache.ExpiryFor(now, uint32(ttl)),
	}

	s.mu.Lock()
	s.cache.PutNegative(key, entry)
	s.mu.Unlock()

	writeLine(conn, "OK")
}

func remainingSeconds(expiresAtMS int64, now time.Time) uint32 {
	remainMS := expiresAtMS - now.UnixMilli()
	if remainMS <= 0 {
		return 0
	}
	return uint32(remainMS / 1000)
}

func parseCacheRRLine(name, line string) (cache.RR, error) {
	rr, err := parseRRLine(line)
	if err != nil {
		return cache.RR{}, err
	}
	return cache.RR{Name: name, Type: rr.Type, Class: rr.Class, TTL: rr.TTL, RData: rr.RData}, nil
}
