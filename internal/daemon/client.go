package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dnsscience/dnsiter/internal/metrics"
)

// ErrUnavailable is returned by every Client method once the daemon has
// been marked unavailable, so callers can treat it identically to a
// cache miss without inspecting the error further.
var ErrUnavailable = errors.New("daemon: connection unavailable")

// Client is a connection to the cache sidecar daemon. Per the engine's
// connection policy, it connects exactly once: Connect dials and pings
// with STATUS, and any I/O failure thereafter drops the client to
// unavailable for the rest of its lifetime. There is no automatic
// reconnect and no per-query retry; callers that want the daemon back
// must construct a new Client.
type Client struct {
	mu        sync.Mutex
	addr      string
	dialer    net.Dialer
	conn      net.Conn
	r         *bufio.Reader
	connected bool
	available bool
}

// NewClient creates a Client targeting addr (DefaultAddr if empty).
// It does not dial until Connect is called.
func NewClient(addr string, dialTimeout time.Duration) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Client{
		addr:   addr,
		dialer: net.Dialer{Timeout: dialTimeout},
	}
}

// Connect dials the daemon and validates the connection with a STATUS
// ping. It is a no-op if already called. The returned error is purely
// informational: Available() reflects the outcome either way, and
// callers are expected to fall back to resolving without the daemon on
// failure rather than treat it as fatal.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	c.connected = true

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("daemon: dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.r = bufio.NewReaderSize(conn, maxLineBytes)
	c.available = true

	if err := c.sendLineLocked("STATUS"); err != nil {
		c.closeLocked()
		return err
	}
	if _, err := c.recvLineLocked(); err != nil {
		c.closeLocked()
		return fmt.Errorf("daemon: STATUS ping failed: %w", err)
	}
	metrics.DaemonAvailable.Set(1)
	return nil
}

// Available reports whether the daemon connection is still usable.
func (c *Client) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	c.available = false
	metrics.DaemonAvailable.Set(0)
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	return err
}

func (c *Client) sendLineLocked(line string) error {
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("daemon: write: %w", err)
	}
	return nil
}

func (c *Client) recvLineLocked() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("daemon: read: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Status issues a fresh STATUS command and returns the raw reply line
// (e.g. "OK cache_daemon 50/50"), for admin tooling that wants a live
// snapshot rather than the one taken at Connect time.
func (c *Client) Status(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return "", ErrUnavailable
	}
	if err := c.sendLineLocked("STATUS"); err != nil {
		c.closeLocked()
		return "", err
	}
	line, err := c.recvLineLocked()
	if err != nil {
		c.closeLocked()
		return "", err
	}
	return line, nil
}

// Get queries the sidecar cache for (name, qtype). Any connection or
// protocol failure tears down the connection and returns an error;
// the resolver should treat this identically to a cache miss and fall
// back to resolving directly.
func (c *Client) Get(ctx context.Context, nameNorm string, qtype uint16) (GetResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return GetResult{}, ErrUnavailable
	}

	cmd := fmt.Sprintf("GET %s %d", nameNorm, qtype)
	if err := c.sendLineLocked(cmd); err != nil {
		c.closeLocked()
		return GetResult{}, err
	}

	line, err := c.recvLineLocked()
	if err != nil {
		c.closeLocked()
		return GetResult{}, err
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		c.closeLocked()
		return GetResult{}, fmt.Errorf("daemon: empty GET response")
	}

	switch fields[0] {
	case "NOTFOUND":
		return GetResult{Kind: NotFound}, nil

	case "NEG":
		if len(fields) != 3 {
			c.closeLocked()
			return GetResult{Kind: ErrorResult}, fmt.Errorf("daemon: malformed NEG response: %q", line)
		}
		ttl, err1 := strconv.ParseUint(fields[1], 10, 32)
		rcode, err2 := strconv.ParseUint(fields[2], 10, 16)
		if err1 != nil || err2 != nil {
			c.closeLocked()
			return GetResult{Kind: ErrorResult}, fmt.Errorf("daemon: malformed NEG fields: %q", line)
		}
		return GetResult{Kind: Negative, TTL: uint32(ttl), Rcode: uint16(rcode)}, nil

	case "POS":
		if len(fields) != 3 {
			c.closeLocked()
			return GetResult{Kind: ErrorResult}, fmt.Errorf("daemon: malformed POS response: %q", line)
		}
		ttl, err1 := strconv.ParseUint(fields[1], 10, 32)
		n, err2 := strconv.ParseUint(fields[2], 10, 32)
		if err1 != nil || err2 != nil {
			c.closeLocked()
			return GetResult{Kind: ErrorResult}, fmt.Errorf("daemon: malformed POS fields: %q", line)
		}

		rrset := make([]RR, 0, n)
		for i := uint64(0); i < n; i++ {
			rrLine, err := c.recvLineLocked()
			if err != nil {
				c.closeLocked()
				return GetResult{}, err
			}
			rr, err := parseRRLine(rrLine)
			if err != nil {
				c.closeLocked()
				return GetResult{Kind: ErrorResult}, err
			}
			rrset = append(rrset, rr)
		}
		return GetResult{Kind: Positive, TTL: uint32(ttl), RRSet: rrset}, nil

	default:
		c.closeLocked()
		return GetResult{Kind: ErrorResult}, fmt.Errorf("daemon: unexpected GET reply tag %q", fields[0])
	}
}

// PutPositive stores a positive answer in the sidecar cache.
func (c *Client) PutPositive(ctx context.Context, nameNorm string, qtype uint16, ttl uint32, rrset []RR) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return ErrUnavailable
	}

	header := fmt.Sprintf("PUTP %s %d %d %d", nameNorm, qtype, ttl, len(rrset))
	if err := c.sendLineLocked(header); err != nil {
		c.closeLocked()
		return err
	}
	for _, rr := range rrset {
		line := fmt.Sprintf("%d %d %d %s", rr.Type, rr.Class, rr.TTL, encodeHex(rr.RData))
		if err := c.sendLineLocked(line); err != nil {
			c.closeLocked()
			return err
		}
	}

	return c.expectOKLocked()
}

// PutNegative stores a negative answer in the sidecar cache.
func (c *Client) PutNegative(ctx context.Context, nameNorm string, qtype uint16, ttl uint32, rcode uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		return ErrUnavailable
	}

	cmd := fmt.Sprintf("PUTN %s %d %d %d", nameNorm, qtype, ttl, rcode)
	if err := c.sendLineLocked(cmd); err != nil {
		c.closeLocked()
		return err
	}
	return c.expectOKLocked()
}

func (c *Client) expectOKLocked() error {
	line, err := c.recvLineLocked()
	if err != nil {
		c.closeLocked()
		return err
	}
	if line != "OK" {
		return fmt.Errorf("daemon: expected OK, got %q", line)
	}
	return nil
}

func parseRRLine(line string) (RR, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return RR{}, fmt.Errorf("daemon: malformed RR line: %q", line)
	}
	t, err1 := strconv.ParseUint(fields[0], 10, 16)
	class, err2 := strconv.ParseUint(fields[1], 10, 16)
	ttl, err3 := strconv.ParseUint(fields[2], 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return RR{}, fmt.Errorf("daemon: malformed RR fields: %q", line)
	}
	rdata, err := decodeHex(fields[3])
	if err != nil {
		return RR{}, err
	}
	return RR{Type: uint16(t), Class: uint16(class), TTL: uint32(ttl), RData: rdata}, nil
}
