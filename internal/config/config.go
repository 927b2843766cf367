// Package config resolves which backend driver the CLI talks to.
package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mnorrsken/kvshim/driver"
	"github.com/mnorrsken/kvshim/driver/goredis"
	"github.com/mnorrsken/kvshim/driver/memory"
	"github.com/mnorrsken/kvshim/driver/postgres"
)

// Driver names
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the client configuration
type Config struct {
	// Backend driver: redis, postgres or memory
	Driver string `yaml:"driver"`

	// Redis server addresses. Several addresses select cluster mode.
	RedisAddrs      []string `yaml:"redis_addrs"`
	RedisUsername   string   `yaml:"redis_username"`
	RedisPassword   string   `yaml:"redis_password"`
	RedisDB         int      `yaml:"redis_db"`
	RedisTLS        bool     `yaml:"redis_tls"`
	RedisMasterName string   `yaml:"redis_master_name"`

	// PostgreSQL configuration
	PGHost     string `yaml:"pg_host"`
	PGPort     int    `yaml:"pg_port"`
	PGUser     string `yaml:"pg_user"`
	PGPassword string `yaml:"pg_password"`
	PGDatabase string `yaml:"pg_database"`
	PGSSLMode  string `yaml:"pg_sslmode"`

	// SQL trace level (0 off, 1 important, 2 writes, 3 all)
	SQLTrace int `yaml:"sqltrace"`

	// Metrics server address; empty disables it
	MetricsAddr string `yaml:"metrics_addr"`

	Debug bool `yaml:"debug"`

	// How often the subscription poller pulls pending messages
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Driver:       DriverRedis,
		RedisAddrs:   []string{"localhost:6379"},
		PGHost:       "localhost",
		PGPort:       5432,
		PGUser:       "postgres",
		PGPassword:   "postgres",
		PGDatabase:   "kvshim",
		PGSSLMode:    "disable",
		PollInterval: 10 * time.Millisecond,
	}
}

// Load layers environment variables over an optional YAML file over the
// defaults. An empty path falls back to KVSHIM_CONFIG.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("KVSHIM_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Driver = getEnv("KVSHIM_DRIVER", c.Driver)
	if addrs := os.Getenv("REDIS_ADDRS"); addrs != "" {
		c.RedisAddrs = splitList(addrs)
	}
	c.RedisUsername = getEnv("REDIS_USERNAME", c.RedisUsername)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.RedisTLS = getEnvBool("REDIS_TLS", c.RedisTLS)
	c.RedisMasterName = getEnv("REDIS_MASTER_NAME", c.RedisMasterName)
	c.PGHost = getEnv("PG_HOST", c.PGHost)
	c.PGPort = getEnvInt("PG_PORT", c.PGPort)
	c.PGUser = getEnv("PG_USER", c.PGUser)
	c.PGPassword = getEnv("PG_PASSWORD", c.PGPassword)
	c.PGDatabase = getEnv("PG_DATABASE", c.PGDatabase)
	c.PGSSLMode = getEnv("PG_SSLMODE", c.PGSSLMode)
	c.SQLTrace = getTraceLevel("SQLTRACE", c.SQLTrace)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.Debug = getEnvBool("DEBUG", c.Debug)
	c.PollInterval = getEnvDuration("POLL_INTERVAL", c.PollInterval)
}

// Validate rejects configurations no driver can be built from.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverRedis:
		if len(c.RedisAddrs) == 0 {
			return fmt.Errorf("config: redis driver needs at least one address")
		}
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("config: unknown driver %q", c.Driver)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll interval must be positive, got %v", c.PollInterval)
	}
	return nil
}

// OpenDriver builds the configured driver. The caller owns it.
func (c *Config) OpenDriver(ctx context.Context) (driver.Driver, error) {
	switch c.Driver {
	case DriverRedis:
		if c.Debug {
			log.Printf("[DEBUG] Using Redis at %s", strings.Join(c.RedisAddrs, ","))
		}
		return goredis.Dial(goredis.Options{
			Addrs:      c.RedisAddrs,
			Username:   c.RedisUsername,
			Password:   c.RedisPassword,
			DB:         c.RedisDB,
			TLS:        c.RedisTLS,
			MasterName: c.RedisMasterName,
		}), nil
	case DriverPostgres:
		log.Printf("Connecting to PostgreSQL at %s:%d...", c.PGHost, c.PGPort)
		d, err := postgres.New(ctx, postgres.Config{
			Host:          c.PGHost,
			Port:          c.PGPort,
			User:          c.PGUser,
			Password:      c.PGPassword,
			Database:      c.PGDatabase,
			SSLMode:       c.PGSSLMode,
			SQLTraceLevel: c.SQLTrace,
			Debug:         c.Debug,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return d, nil
	case DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("config: unknown driver %q", c.Driver)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getTraceLevel accepts a level number or a boolean; true means level 1.
func getTraceLevel(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if level, err := strconv.Atoi(value); err == nil {
		return level
	}
	if on, err := strconv.ParseBool(value); err == nil {
		if on {
			return 1
		}
		return 0
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
