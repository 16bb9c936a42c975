package config

import (
	"os"
	"testing"
)

// TestMaxCountDefault verifies the default worker-pool ceiling applied
// when max_count is unset.
func TestMaxCountDefault(t *testing.T) {
	f, err := os.CreateTemp("", "config-*.yml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())

	configYAML := `
deviceid: "agent-01"
server_url: "https://example.com/plugins/netdiscovery"
`
	if _, err := f.WriteString(configYAML); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.MaxCount != 64 {
		t.Errorf("expected default max_count 64, got %d", cfg.MaxCount)
	}
}

// TestMaxCountOverride verifies a configured max_count is honored, which
// bounds the scheduler's Phase-C worker pool regardless of any job's
// requested thread count.
func TestMaxCountOverride(t *testing.T) {
	f, err := os.CreateTemp("", "config-*.yml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())

	configYAML := `
deviceid: "agent-01"
server_url: "https://example.com/plugins/netdiscovery"
max_count: 8
`
	if _, err := f.WriteString(configYAML); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(f.Name())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.MaxCount != 8 {
		t.Errorf("expected max_count 8, got %d", cfg.MaxCount)
	}
}

func TestValidateConfigRejectsMaxCountOutOfRange(t *testing.T) {
	cfg := &Config{
		DeviceID:         "agent-01",
		ServerURL:        "https://example.com",
		TargetExpiration: 60_000_000_000,
		MaxCount:         0,
		SNMPRateLimit:    50,
		HealthCheckPort:  8080,
	}
	if _, err := ValidateConfig(cfg); err == nil {
		t.Fatal("expected error for max_count of 0")
	}
}
