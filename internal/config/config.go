// Package config provides configuration loading and management for the
// TLS interception proxy.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fnzv/mitmproxy/internal/paths"
	"gopkg.in/yaml.v3"
)

// Config represents the complete proxy configuration. Field names mirror
// the configuration surface the TLS orchestrator recognizes.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	TLS     TLSConfig     `yaml:"tls"`
	DNS     DNSConfig     `yaml:"dns"`
	Logging LoggingConfig `yaml:"logging"`
}

// ListenConfig configures the entrypoint the proxy accepts client
// connections on, and the default upstream it forges connections to
// when no per-connection redirect overrides it.
type ListenConfig struct {
	Addr     string `yaml:"addr"`
	Upstream string `yaml:"upstream"`
}

// TLSConfig is the set of options the orchestrator reads when deciding
// how to terminate and re-establish TLS on each side of a connection.
type TLSConfig struct {
	// ClientTLS and ServerTLS mirror client_tls/server_tls: whether TLS
	// is to be terminated on the client side and re-established towards
	// the upstream server, respectively.
	ClientTLS bool `yaml:"client_tls"`
	ServerTLS bool `yaml:"server_tls"`

	// NoUpstreamCert forges the client-facing certificate without first
	// contacting the upstream server for its certificate.
	NoUpstreamCert bool `yaml:"no_upstream_cert"`

	// HTTP2 controls whether "h2" is allowed to survive ALPN negotiation
	// towards the upstream server.
	HTTP2 bool `yaml:"http2"`

	// CiphersClient/CiphersServer are OpenSSL-style cipher-list strings.
	// Neither is applied to a handshake; both sides use Go's default
	// cipher suite selection. CiphersClient is not read by any part of the
	// proxy. CiphersServer, or when empty a list derived from the client's
	// offered cipher suites via the cipher-id table, only feeds the
	// orchestrator's diagnostic upstream cipher string.
	CiphersClient string `yaml:"ciphers_client,omitempty"`
	CiphersServer string `yaml:"ciphers_server,omitempty"`

	// MethodClient/MethodServer and OptionsClient/OptionsServer are kept
	// for interface parity with the OpenSSL-shaped configuration surface
	// this layer was distilled from. They are loaded and saved, but no part
	// of the proxy reads them: both handshakes use crypto/tls's default
	// protocol versions and options.
	MethodClient  string   `yaml:"method_client,omitempty"`
	MethodServer  string   `yaml:"method_server,omitempty"`
	OptionsClient []string `yaml:"options_client,omitempty"`
	OptionsServer []string `yaml:"options_server,omitempty"`

	// ClientCertFile/ClientKeyFile present a client certificate to the
	// upstream server for mutual TLS.
	ClientCertFile string `yaml:"client_cert_file,omitempty"`
	ClientKeyFile  string `yaml:"client_key_file,omitempty"`

	// VerifyUpstream controls whether the orchestrator requires the
	// upstream certificate to validate; when false, verification errors
	// are logged and ignored rather than aborting the handshake.
	VerifyUpstream bool   `yaml:"verify_upstream"`
	TrustedCADir   string `yaml:"trusted_ca_dir,omitempty"`
	TrustedCAFile  string `yaml:"trusted_ca_file,omitempty"`
}

// DNSConfig configures the built-in DNS server that resolves intercepted
// domains to this proxy.
type DNSConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Listen   string   `yaml:"listen"`
	Domains  []string `yaml:"domains"`
	Upstream string   `yaml:"upstream"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with sensible local-development values.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Addr:     ":8443",
			Upstream: "",
		},
		TLS: TLSConfig{
			ClientTLS:      true,
			ServerTLS:      true,
			NoUpstreamCert: false,
			HTTP2:          true,
			VerifyUpstream: false,
		},
		DNS: DNSConfig{
			Enabled:  false,
			Listen:   ":15353",
			Domains:  []string{"localhost"},
			Upstream: "8.8.8.8:53",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration from the default config file, creating one
// populated with defaults if it doesn't exist yet.
func Load() (*Config, error) {
	return LoadFromFile(paths.ConfigFile())
}

// LoadFromFile reads the configuration from the specified file path.
func LoadFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.SaveToFile(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveToFile(paths.ConfigFile())
}

// SaveToFile writes the configuration to the specified file path.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen.Addr == "" {
		return fmt.Errorf("listen.addr is required")
	}

	if c.TLS.ClientTLS && c.TLS.ServerTLS && c.Listen.Upstream == "" {
		return fmt.Errorf("listen.upstream is required when both client_tls and server_tls are enabled")
	}

	if c.DNS.Enabled {
		if c.DNS.Listen == "" {
			return fmt.Errorf("dns.listen is required when dns is enabled")
		}
		if len(c.DNS.Domains) == 0 {
			return fmt.Errorf("dns.domains must have at least one domain when dns is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}

// ClientTLSRequiresServerCert reports whether the client handshake must
// wait on a completed server handshake to know what certificate to forge.
// This mirrors the client_tls_requires_server_cert decision variable.
func (c *Config) ClientTLSRequiresServerCert() bool {
	return c.TLS.ClientTLS && c.TLS.ServerTLS && !c.TLS.NoUpstreamCert
}
