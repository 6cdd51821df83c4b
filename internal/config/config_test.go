package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "dnsiter.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadParsesRootHintsAndCaps(t *testing.T) {
	p := writeTemp(t, `
root_hints:
  - name: a.root-servers.net
    ip: 198.41.0.4
cache_positive_cap: 200
cache_negative_cap: 100
timeout_seconds: 5
daemon_addr: 127.0.0.1:5353
dot:
  server_name: dns.google
  insecure: false
`)
	f, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.RootHints) != 1 || f.RootHints[0].IP != "198.41.0.4" {
		t.Errorf("root hints = %+v", f.RootHints)
	}
	if f.CachePositiveCap != 200 || f.CacheNegativeCap != 100 {
		t.Errorf("caps = %d/%d", f.CachePositiveCap, f.CacheNegativeCap)
	}
	if f.Timeout(3*time.Second) != 5*time.Second {
		t.Errorf("timeout = %v", f.Timeout(3*time.Second))
	}
	if f.DoT.ServerName != "dns.google" {
		t.Errorf("dot server name = %q", f.DoT.ServerName)
	}
	ip, ok := f.FirstRootHint()
	if !ok || ip != "198.41.0.4" {
		t.Errorf("first root hint = %q, %v", ip, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestNilFileTimeoutFallsBackToDefault(t *testing.T) {
	var f *File
	if got := f.Timeout(7 * time.Second); got != 7*time.Second {
		t.Errorf("timeout = %v", got)
	}
}
