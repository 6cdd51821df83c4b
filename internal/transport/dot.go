package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// DoTConfig holds configuration for a DNS-over-TLS query (RFC 7858).
type DoTConfig struct {
	// ServerName is the TLS SNI / certificate hostname to verify against
	// (e.g. "dns.google", "cloudflare-dns.com"). Required.
	ServerName string
	// InsecureSkipVerify disables certificate verification. Only meant
	// for diagnostics against servers with self-signed certificates.
	InsecureSkipVerify bool
}

// SendDoT sends payload to server:port over a TLS-wrapped, length-prefixed
// DNS/TCP connection and returns the response payload.
func SendDoT(ctx context.Context, server string, port int, payload []byte, cfg DoTConfig, timeout time.Duration) ([]byte, error) {
	if cfg.ServerName == "" {
		return nil, fmt.Errorf("transport: DoT requires a ServerName for SNI and certificate verification")
	}

	addr := net.JoinHostPort(server, portString(port))

	d := net.Dialer{Timeout: timeout}
	tlsConfig := &tls.Config{
		ServerName:         cfg.ServerName,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	dialer := tls.Dialer{NetDialer: &d, Config: tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dot dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("transport: set deadline: %w", err)
	}

	return exchangeFramed(conn, payload)
}
