package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"io"
	"math/big"
	"net"
	"testing"
	"time"
)

func TestSendUDPRoundTrip(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer pc.Close()

	go func() {
		buf := make([]byte, 512)
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		echo := append([]byte{}, buf[:n]...)
		pc.WriteTo(echo, addr)
	}()

	addr := pc.LocalAddr().(*net.UDPAddr)
	resp, err := SendUDP(context.Background(), "127.0.0.1", addr.Port, []byte("ping"), 2*time.Second)
	if err != nil {
		t.Fatalf("SendUDP: %v", err)
	}
	if string(resp) != "ping" {
		t.Errorf("resp = %q, want %q", resp, "ping")
	}
}

func TestSendUDPTimeout(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer pc.Close()
	// Never reply.

	addr := pc.LocalAddr().(*net.UDPAddr)
	_, err = SendUDP(context.Background(), "127.0.0.1", addr.Port, []byte("ping"), 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestSendTCPRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var hdr [2]byte
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint16(hdr[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		conn.Write(hdr[:])
		conn.Write(body)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	resp, err := SendTCP(context.Background(), "127.0.0.1", addr.Port, []byte("hello"), 2*time.Second)
	if err != nil {
		t.Fatalf("SendTCP: %v", err)
	}
	if string(resp) != "hello" {
		t.Errorf("resp = %q, want %q", resp, "hello")
	}
}

func TestSendTCPRejectsZeroLengthResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var hdr [2]byte
		io.ReadFull(conn, hdr[:])
		n := binary.BigEndian.Uint16(hdr[:])
		io.ReadFull(conn, make([]byte, n))
		conn.Write([]byte{0, 0})
	}()

	addr := ln.Addr().(*net.TCPAddr)
	_, err = SendTCP(context.Background(), "127.0.0.1", addr.Port, []byte("hi"), 2*time.Second)
	if err == nil {
		t.Fatal("expected an error for a zero-length response")
	}
}

// generateSelfSignedCert builds an in-memory self-signed certificate for
// localhost, valid for the duration of the test only.
func generateSelfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}
}

func TestSendDoTRoundTrip(t *testing.T) {
	cert := generateSelfSignedCert(t)
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}

	ln, err := tls.Listen("tcp", "127.0.0.1:0", tlsCfg)
	if err != nil {
		t.Fatalf("tls.Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var hdr [2]byte
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint16(hdr[:])
		body := make([]byte, n)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		conn.Write(hdr[:])
		conn.Write(body)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := DoTConfig{ServerName: "127.0.0.1", InsecureSkipVerify: true}
	resp, err := SendDoT(context.Background(), "127.0.0.1", addr.Port, []byte("query"), cfg, 2*time.Second)
	if err != nil {
		t.Fatalf("SendDoT: %v", err)
	}
	if string(resp) != "query" {
		t.Errorf("resp = %q, want %q", resp, "query")
	}
}

func TestSendDoTRequiresServerName(t *testing.T) {
	_, err := SendDoT(context.Background(), "127.0.0.1", 853, []byte("q"), DoTConfig{}, time.Second)
	if err == nil {
		t.Fatal("expected an error when ServerName is empty")
	}
}
