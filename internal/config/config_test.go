package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  addr: ":9090"
  read_timeout: 10s
database:
  dsn: ":memory:"
redis:
  url: redis://localhost:6379/0
  op_timeout: 100ms
cache:
  default_ttl: 30m
rate_limits:
  profiles:
    auth_login:
      limit: 10
      window: 10m
identity:
  connection_uri: http://supertokens:3567
  api_key: secret
  breaker:
    min_samples: 20
    open_timeout: 45s
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read timeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("dsn = %q, want %q", cfg.Database.DSN, ":memory:")
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("redis url = %q", cfg.Redis.URL)
	}
	if cfg.Redis.OpTimeout != 100*time.Millisecond {
		t.Errorf("op timeout = %v, want 100ms", cfg.Redis.OpTimeout)
	}
	if cfg.Redis.DialTimeout != 2*time.Second {
		t.Errorf("dial timeout should keep its default, got %v", cfg.Redis.DialTimeout)
	}
	if cfg.Cache.DefaultTTL != 30*time.Minute {
		t.Errorf("default ttl = %v, want 30m", cfg.Cache.DefaultTTL)
	}
	p, ok := cfg.RateLimits.Profiles["auth_login"]
	if !ok || p.Limit != 10 || p.Window != 10*time.Minute {
		t.Errorf("auth_login override = %+v", p)
	}
	if cfg.Identity.APIKey != "secret" {
		t.Errorf("identity api key = %q", cfg.Identity.APIKey)
	}
	if cfg.Identity.Breaker.MinSamples != 20 || cfg.Identity.Breaker.OpenTimeout != 45*time.Second {
		t.Errorf("breaker = %+v", cfg.Identity.Breaker)
	}
}

func TestExpandEnv(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv
	t.Setenv("TEST_REDIS_URL", "redis://cache:6379")

	cfg, err := Load(writeConfig(t, "redis:\n  url: ${TEST_REDIS_URL}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redis.URL != "redis://cache:6379" {
		t.Errorf("redis url = %q, want expanded env value", cfg.Redis.URL)
	}

	// Unknown variables are left as-is.
	result := expandEnv([]byte("key: ${OTAKUSHELF_UNSET_VAR}"))
	if string(result) != "key: ${OTAKUSHELF_UNSET_VAR}" {
		t.Errorf("expandEnv = %q", string(result))
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Addr != ":8000" {
		t.Errorf("default addr = %q, want %q", cfg.Server.Addr, ":8000")
	}
	if cfg.Database.DSN != "otaku_shelf.db" {
		t.Errorf("default dsn = %q, want %q", cfg.Database.DSN, "otaku_shelf.db")
	}
	if cfg.Redis.URL != "" {
		t.Errorf("redis should be unset by default, got %q", cfg.Redis.URL)
	}
	if cfg.Cache.DefaultTTL != time.Hour {
		t.Errorf("default cache ttl = %v, want 1h", cfg.Cache.DefaultTTL)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format = %q, want json", cfg.Log.Format)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Parallel()
	if _, err := Load(writeConfig(t, "server: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadShippedConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join("..", "..", "configs", "otakushelf.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Redis.URL != "" {
		t.Errorf("shipped config should run local-only, got redis url %q", cfg.Redis.URL)
	}
	if got := cfg.RateLimits.Profiles["auth_login"]; got.Limit != 5 || got.Window != 5*time.Minute {
		t.Errorf("auth_login = %+v, want 5 per 5m", got)
	}
	if cfg.Identity.Breaker.OpenTimeout != 15*time.Second {
		t.Errorf("breaker open timeout = %v", cfg.Identity.Breaker.OpenTimeout)
	}
}
