package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/dnsscience/dnsiter/internal/pool"
)

// maxTCPMessageSize is the largest length a DNS/TCP length prefix can
// express.
const maxTCPMessageSize = pool.FramedBufferSize

// SendTCP sends payload to server:port over a length-prefixed DNS/TCP
// connection (RFC 1035 §4.2.2) and returns the response payload with
// its length prefix stripped.
func SendTCP(ctx context.Context, server string, port int, payload []byte, timeout time.Duration) ([]byte, error) {
	addr := net.JoinHostPort(server, portString(port))

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("transport: set deadline: %w", err)
	}

	return exchangeFramed(conn, payload)
}

// exchangeFramed writes a 2-byte big-endian length prefix followed by
// payload, then reads and returns the length-prefixed response body.
// Shared by the plain TCP and DoT paths, which use identical framing.
func exchangeFramed(rw io.ReadWriter, payload []byte) ([]byte, error) {
	if len(payload) > maxTCPMessageSize {
		return nil, fmt.Errorf("transport: payload too large for TCP framing: %d bytes", len(payload))
	}

	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(payload)))
	if _, err := rw.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("transport: write length prefix: %w", err)
	}
	if _, err := rw.Write(payload); err != nil {
		return nil, fmt.Errorf("transport: write payload: %w", err)
	}

	if _, err := io.ReadFull(rw, hdr[:]); err != nil {
		return nil, fmt.Errorf("transport: read length prefix: %w", err)
	}
	respLen := binary.BigEndian.Uint16(hdr[:])
	if respLen == 0 {
		return nil, fmt.Errorf("transport: zero-length response")
	}

	buf := pool.GetFramedBuffer()
	defer pool.PutFramedBuffer(buf)
	if _, err := io.ReadFull(rw, buf[:respLen]); err != nil {
		return nil, fmt.Errorf("transport: read payload: %w", err)
	}
	return append([]byte(nil), buf[:respLen]...), nil
}
