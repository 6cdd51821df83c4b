// Package config loads the optional YAML configuration file shared by
// the dnsdig CLI and the cachedaemon sidecar: root hints, cache caps,
// timeouts, and DoT defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RootHint is one well-known starting server for iterative resolution.
type RootHint struct {
	Name string `yaml:"name"`
	IP   string `yaml:"ip"`
}

// DoTDefaults holds the default DNS-over-TLS parameters applied when
// the CLI doesn't override them with flags.
type DoTDefaults struct {
	ServerName string `yaml:"server_name"`
	Insecure   bool   `yaml:"insecure"`
}

// File is the top-level YAML configuration structure.
type File struct {
	RootHints []RootHint `yaml:"root_hints,omitempty"`

	CachePositiveCap int `yaml:"cache_positive_cap,omitempty"`
	CacheNegativeCap int `yaml:"cache_negative_cap,omitempty"`

	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`

	DaemonAddr string `yaml:"daemon_addr,omitempty"`

	DoT DoTDefaults `yaml:"dot,omitempty"`
}

// Timeout returns TimeoutSeconds as a time.Duration, falling back to
// def when unset.
func (f *File) Timeout(def time.Duration) time.Duration {
	if f == nil || f.TimeoutSeconds == 0 {
		return def
	}
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// Load reads and parses a YAML configuration file at path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// FirstRootHint returns the IP of the first configured root hint, or
// ok=false if none are configured.
func (f *File) FirstRootHint() (string, bool) {
	if f == nil || len(f.RootHints) == 0 {
		return "", false
	}
	return f.RootHints[0].IP, true
}
