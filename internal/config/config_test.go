package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/mnorrsken/kvshim/driver/memory"
)

var envKeys = []string{
	"KVSHIM_CONFIG", "KVSHIM_DRIVER", "REDIS_ADDRS", "REDIS_USERNAME", "REDIS_PASSWORD",
	"REDIS_DB", "REDIS_TLS", "REDIS_MASTER_NAME", "PG_HOST", "PG_PORT", "PG_USER",
	"PG_PASSWORD", "PG_DATABASE", "PG_SSLMODE", "SQLTRACE", "METRICS_ADDR", "DEBUG",
	"POLL_INTERVAL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("KVSHIM_DRIVER", "postgres")
	t.Setenv("REDIS_ADDRS", "a:1, b:2,,c:3")
	t.Setenv("REDIS_DB", "4")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("SQLTRACE", "true")
	t.Setenv("DEBUG", "1")
	t.Setenv("POLL_INTERVAL", "250ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Driver != DriverPostgres {
		t.Errorf("expected driver %q, got %q", DriverPostgres, cfg.Driver)
	}
	if !reflect.DeepEqual(cfg.RedisAddrs, []string{"a:1", "b:2", "c:3"}) {
		t.Errorf("unexpected addresses %v", cfg.RedisAddrs)
	}
	if cfg.RedisDB != 4 || !cfg.RedisTLS {
		t.Errorf("unexpected redis settings %+v", cfg)
	}
	if cfg.PGPort != 6543 {
		t.Errorf("expected port 6543, got %d", cfg.PGPort)
	}
	if cfg.SQLTrace != 1 {
		t.Errorf("expected trace level 1, got %d", cfg.SQLTrace)
	}
	if !cfg.Debug {
		t.Error("expected debug to be enabled")
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.PollInterval)
	}
}

func TestLoad_InvalidEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("PG_PORT", "not-a-port")
	t.Setenv("SQLTRACE", "loud")
	t.Setenv("POLL_INTERVAL", "soon")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PGPort != 5432 {
		t.Errorf("expected default port, got %d", cfg.PGPort)
	}
	if cfg.SQLTrace != 0 {
		t.Errorf("expected trace off, got %d", cfg.SQLTrace)
	}
	if cfg.PollInterval != 10*time.Millisecond {
		t.Errorf("expected default poll interval, got %v", cfg.PollInterval)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "kvshim.yaml")
	data := `
driver: memory
redis_addrs: [r1:6379, r2:6379]
pg_database: fromfile
sqltrace: 3
poll_interval: 50ms
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KVSHIM_CONFIG", path)
	t.Setenv("PG_DATABASE", "fromenv")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Driver != DriverMemory {
		t.Errorf("expected driver %q, got %q", DriverMemory, cfg.Driver)
	}
	if !reflect.DeepEqual(cfg.RedisAddrs, []string{"r1:6379", "r2:6379"}) {
		t.Errorf("unexpected addresses %v", cfg.RedisAddrs)
	}
	if cfg.PGDatabase != "fromenv" {
		t.Errorf("expected env to win, got %q", cfg.PGDatabase)
	}
	if cfg.SQLTrace != 3 {
		t.Errorf("expected trace level 3, got %d", cfg.SQLTrace)
	}
	if cfg.PollInterval != 50*time.Millisecond {
		t.Errorf("expected 50ms, got %v", cfg.PollInterval)
	}
	if cfg.PGHost != "localhost" {
		t.Errorf("expected default host to survive, got %q", cfg.PGHost)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("driver: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected error for malformed file")
	}

	t.Setenv("KVSHIM_DRIVER", "etcd")
	if _, err := Load(""); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"memory", func(c *Config) { c.Driver = DriverMemory }, false},
		{"redis without addresses", func(c *Config) { c.RedisAddrs = nil }, true},
		{"postgres without redis addresses", func(c *Config) { c.Driver = DriverPostgres; c.RedisAddrs = nil }, false},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"unknown driver", func(c *Config) { c.Driver = "x" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOpenDriver_Memory(t *testing.T) {
	cfg := Default()
	cfg.Driver = DriverMemory

	d, err := cfg.OpenDriver(context.Background())
	if err != nil {
		t.Fatalf("OpenDriver failed: %v", err)
	}
	defer d.Close()
	if _, ok := d.(*memory.Store); !ok {
		t.Errorf("expected *memory.Store, got %T", d)
	}
	if err := d.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
