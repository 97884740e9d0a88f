package config

import (
	"os"
	"path/filepath"
	"testing"
)

const testYAML = `
server:
  listen_addr: ":9090"
  tick_period: 2s
  shutdown_timeout: 5s
exchanges:
  binance:
    enabled: true
    rest_base_url: "https://api.binance.com"
    max_weight: 1200
    timeout: 10s
  kraken:
    enabled: false
    rest_base_url: "https://api.kraken.com"
    max_weight: 1200
    timeout: 10s
auth:
  users:
    alice: "$2a$10$examplehasheddata"
  token_byte_len: 32
twap:
  max_slices: 100
  max_duration_secs: 3600
freshness:
  max_age: 10s
  check_interval: 5s
logging:
  level: "debug"
  format: "console"
`

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return path
}

func TestLoadAppliesYAMLOverDefaults(t *testing.T) {
	path := writeTestConfig(t, testYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if !cfg.Exchanges.Binance.Enabled {
		t.Error("expected binance enabled")
	}
	if cfg.Exchanges.Kraken.Enabled {
		t.Error("expected kraken disabled by the test config")
	}
	if cfg.Auth.Users["alice"] == "" {
		t.Error("expected alice's hash to load from the users map")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadSeedUsersEnvOverridesFileUsers(t *testing.T) {
	path := writeTestConfig(t, testYAML)

	t.Setenv("GATEWAY_AUTH_SEED_USERS", "bob:hash1,carol:hash2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Auth.Users) != 2 {
		t.Fatalf("Users = %v, want exactly bob and carol", cfg.Auth.Users)
	}
	if cfg.Auth.Users["bob"] != "hash1" || cfg.Auth.Users["carol"] != "hash2" {
		t.Fatalf("Users = %v, want bob:hash1 carol:hash2", cfg.Auth.Users)
	}
}

func TestParseSeedUsersSkipsMalformedEntries(t *testing.T) {
	users := parseSeedUsers("alice:hash1, , malformed, bob:hash2")
	if len(users) != 2 {
		t.Fatalf("users = %v, want exactly 2 entries", users)
	}
	if users["alice"] != "hash1" || users["bob"] != "hash2" {
		t.Fatalf("users = %v, want alice:hash1 bob:hash2", users)
	}
}

func TestValidateRejectsNoEnabledExchange(t *testing.T) {
	cfg := Default()
	cfg.Exchanges.Binance.Enabled = false
	cfg.Exchanges.Kraken.Enabled = false
	cfg.Auth.Users = map[string]string{"alice": "hash"}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when no exchange is enabled")
	}
}

func TestValidateRejectsEmptyUsers(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when auth.users is empty")
	}
}
