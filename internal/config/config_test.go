package config

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hive-corporation/actionables/internal/core/domain"
)

var exporters = []string{"hashes", "ips", "fqdns", "urls", "emails"}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(exporters); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	patterns, err := cfg.Import.CompileContextPatterns()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(patterns) != 3 || patterns[1].Type != domain.ContextIncidentResponse {
		t.Errorf("unexpected patterns %+v", patterns)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "actionables.yaml")
	data := []byte(`
import:
  exporters: [ips]
  outdated_tag: STALE
  lookback: 2h
logging:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Import.OutdatedTag != "STALE" || cfg.Import.Lookback != 2*time.Hour {
		t.Errorf("import section not applied: %+v", cfg.Import)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Neo4j.MaxRetries != 3 {
		t.Errorf("untouched section should keep defaults, got %d", cfg.Neo4j.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "bad regex",
			mutate:  func(c *Config) { c.Import.ContextPatterns = []ContextPattern{{Regex: "INVES-[", Type: "INVES"}} },
			wantErr: ErrInvalidContextRegex,
		},
		{
			name:   "unknown exporter",
			mutate: func(c *Config) { c.Import.Exporters = []string{"yara"} },
		},
		{
			name:   "no exporters",
			mutate: func(c *Config) { c.Import.Exporters = nil },
		},
		{
			name:   "empty outdated tag",
			mutate: func(c *Config) { c.Import.OutdatedTag = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate(exporters)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSecret(t *testing.T) {
	t.Setenv("ACTIONABLES_TEST_SECRET", "s3cr3t")
	if Secret("ACTIONABLES_TEST_SECRET") != "s3cr3t" {
		t.Error("secret not resolved")
	}
	if Secret("") != "" {
		t.Error("empty reference must resolve to empty")
	}
}

func TestDefaultListenersAreLoopbackOnly(t *testing.T) {
	cfg := DefaultConfig()
	for name, addr := range map[string]string{"api.addr": cfg.API.Addr, "api.grpc_addr": cfg.API.GRPCAddr} {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			t.Errorf("%s defaults to %q, want a loopback host", name, addr)
		}
	}
}
