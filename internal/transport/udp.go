// Package transport sends DNS queries to upstream nameservers over UDP,
// TCP, and DNS-over-TLS, and reads back their responses.
package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/dnsscience/dnsiter/internal/pool"
)

// SendUDP sends payload to server:port over UDP and returns the raw
// response bytes. The server string may be an IPv4 or IPv6 literal or a
// hostname; Go's net package resolves either.
func SendUDP(ctx context.Context, server string, port int, payload []byte, timeout time.Duration) ([]byte, error) {
	addr := net.JoinHostPort(server, portString(port))

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial udp %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("transport: set deadline: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("transport: udp write: %w", err)
	}

	buf := pool.GetUDPBuffer()
	defer pool.PutUDPBuffer(buf)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("transport: udp read: %w", err)
	}
	return append([]byte(nil), buf[:n]...), nil
}

func portString(port int) string {
	return fmt.Sprintf("%d", port)
}
