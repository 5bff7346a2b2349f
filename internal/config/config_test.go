package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Listen.Addr != ":8443" {
		t.Errorf("Listen.Addr = %q, want %q", cfg.Listen.Addr, ":8443")
	}
	if !cfg.TLS.ClientTLS || !cfg.TLS.ServerTLS {
		t.Error("TLS.ClientTLS / TLS.ServerTLS = false, want true")
	}
	if cfg.TLS.NoUpstreamCert {
		t.Error("TLS.NoUpstreamCert = true, want false")
	}
	if !cfg.TLS.HTTP2 {
		t.Error("TLS.HTTP2 = false, want true")
	}
	if cfg.DNS.Enabled {
		t.Error("DNS.Enabled = true, want false")
	}
	if cfg.DNS.Upstream != "8.8.8.8:53" {
		t.Errorf("DNS.Upstream = %q, want %q", cfg.DNS.Upstream, "8.8.8.8:53")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty listen addr",
			modify:  func(c *Config) { c.Listen.Addr = "" },
			wantErr: true,
		},
		{
			name: "both sides TLS without upstream address",
			modify: func(c *Config) {
				c.TLS.ClientTLS = true
				c.TLS.ServerTLS = true
				c.Listen.Upstream = ""
			},
			wantErr: true,
		},
		{
			name: "server-only TLS without upstream address is ok",
			modify: func(c *Config) {
				c.TLS.ClientTLS = false
				c.TLS.ServerTLS = true
				c.Listen.Upstream = ""
			},
			wantErr: false,
		},
		{
			name:    "dns enabled without listen",
			modify:  func(c *Config) { c.DNS.Enabled = true; c.DNS.Listen = "" },
			wantErr: true,
		},
		{
			name:    "dns enabled without domains",
			modify:  func(c *Config) { c.DNS.Enabled = true; c.DNS.Domains = nil },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Logging.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "valid log level debug",
			modify:  func(c *Config) { c.Logging.Level = "debug" },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Listen.Upstream = "backend.internal:443"
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "mitmproxy-config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := Default()
	cfg.Listen.Upstream = "backend.internal:443"
	cfg.DNS.Upstream = "1.1.1.1:53"
	cfg.Logging.Level = "debug"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if loaded.Listen.Upstream != "backend.internal:443" {
		t.Errorf("Listen.Upstream = %q, want %q", loaded.Listen.Upstream, "backend.internal:443")
	}
	if loaded.DNS.Upstream != "1.1.1.1:53" {
		t.Errorf("DNS.Upstream = %q, want %q", loaded.DNS.Upstream, "1.1.1.1:53")
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", loaded.Logging.Level, "debug")
	}
}

func TestLoadFromFile_CreatesDefault(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "mitmproxy-config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Listen.Addr != ":8443" {
		t.Errorf("Listen.Addr = %q, want %q", cfg.Listen.Addr, ":8443")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "mitmproxy-config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0600); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	_, err = LoadFromFile(configPath)
	if err == nil {
		t.Error("LoadFromFile() expected error for invalid YAML, got nil")
	}
}

func TestLoadFromFile_InvalidConfig(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "mitmproxy-config-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidConfig := `
logging:
  level: "invalid_level"
`
	if err := os.WriteFile(configPath, []byte(invalidConfig), 0600); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	_, err = LoadFromFile(configPath)
	if err == nil {
		t.Error("LoadFromFile() expected validation error, got nil")
	}
}

func TestClientTLSRequiresServerCert(t *testing.T) {
	cfg := Default()
	if !cfg.ClientTLSRequiresServerCert() {
		t.Error("ClientTLSRequiresServerCert() = false, want true for default config")
	}

	cfg.TLS.NoUpstreamCert = true
	if cfg.ClientTLSRequiresServerCert() {
		t.Error("ClientTLSRequiresServerCert() = true, want false when no_upstream_cert is set")
	}
}
