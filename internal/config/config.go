package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// sandboxcore configuration, YAML file + environment overrides
// =============================================================================

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Queue      QueueConfig      `yaml:"queue"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Identity   IdentityConfig   `yaml:"identity"`
	Database   DatabaseConfig   `yaml:"database"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	AuditStore AuditStoreConfig `yaml:"audit_store"`
}

// ServerConfig is the control plane's own gRPC listener, not an HTTP API.
type ServerConfig struct {
	GRPCAddr        string `yaml:"grpc_addr"`
	Env             string `yaml:"env"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

// QueueConfig carries the report-queue sizing and arena tunables spec.md
// §4.G leaves to deployment configuration.
type QueueConfig struct {
	DefaultSizeMiB int `yaml:"default_size_mib"`
	MaxSizeMiB     int `yaml:"max_size_mib"`
	ArenaSizeMiB   int `yaml:"arena_size_mib"`
}

// TrackerConfig carries the client liveness sweep parameters
// internal/clientio.Manager's background sweepLoop runs on, and the pip
// drain timeout internal/tracker.Tracker.ProcExit arms on root exit.
type TrackerConfig struct {
	AbnormalTimeoutSec int `yaml:"abnormal_timeout_sec"`
	SweepIntervalSec   int `yaml:"sweep_interval_sec"`
	DrainTimeoutSec    int `yaml:"drain_timeout_sec"`
}

// IdentityConfig points at the SPIRE agent socket and the admission
// allow-list internal/identity.Verifier gates mutating RPCs with.
type IdentityConfig struct {
	Enabled      bool     `yaml:"enabled"`
	SocketPath   string   `yaml:"socket_path"`
	TrustDomain  string   `yaml:"trust_domain"`
	AllowedSVIDs []string `yaml:"allowed_svids"`
}

// DatabaseConfig for Supabase, the backing store for internal/auditstore.
type DatabaseConfig struct {
	Supabase SupabaseConfig `yaml:"supabase"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

// MetricsConfig for the Prometheus exporter internal/metrics serves.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// BridgeConfig for the Socket.IO live diagnostics tap internal/bridge serves.
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// AuditStoreConfig toggles persistence of completed process trees.
type AuditStoreConfig struct {
	Enabled bool `yaml:"enabled"`
}

// =============================================================================
// Singleton pattern with environment overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton config instance, loading it from
// CONFIG_PATH (default config.yaml) on first call.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides, then defaults.
func (c *Config) applyEnvOverrides() {
	c.Server.GRPCAddr = getEnv("SANDBOXCORE_GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.Env = getEnv("SANDBOXCORE_ENV", c.Server.Env)
	if v := getEnvInt("SANDBOXCORE_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}

	if v := getEnvInt("SANDBOXCORE_QUEUE_SIZE_MIB", 0); v > 0 {
		c.Queue.DefaultSizeMiB = v
	}
	if v := getEnvInt("SANDBOXCORE_QUEUE_MAX_SIZE_MIB", 0); v > 0 {
		c.Queue.MaxSizeMiB = v
	}
	if v := getEnvInt("SANDBOXCORE_ARENA_SIZE_MIB", 0); v > 0 {
		c.Queue.ArenaSizeMiB = v
	}

	if v := getEnvInt("SANDBOXCORE_ABNORMAL_TIMEOUT_SEC", 0); v > 0 {
		c.Tracker.AbnormalTimeoutSec = v
	}
	if v := getEnvInt("SANDBOXCORE_SWEEP_INTERVAL_SEC", 0); v > 0 {
		c.Tracker.SweepIntervalSec = v
	}
	if v := getEnvInt("SANDBOXCORE_DRAIN_TIMEOUT_SEC", 0); v > 0 {
		c.Tracker.DrainTimeoutSec = v
	}

	c.Identity.Enabled = getEnvBool("SANDBOXCORE_IDENTITY_ENABLED", c.Identity.Enabled)
	c.Identity.SocketPath = getEnv("SPIFFE_ENDPOINT_SOCKET", c.Identity.SocketPath)
	c.Identity.TrustDomain = getEnv("SANDBOXCORE_TRUST_DOMAIN", c.Identity.TrustDomain)
	if ids := getEnv("SANDBOXCORE_ALLOWED_SVIDS", ""); ids != "" {
		c.Identity.AllowedSVIDs = splitCSV(ids)
	}

	c.Database.Supabase.URL = getEnv("SUPABASE_URL", c.Database.Supabase.URL)
	c.Database.Supabase.ServiceKey = getEnv("SUPABASE_SERVICE_KEY", c.Database.Supabase.ServiceKey)

	c.Metrics.Enabled = getEnvBool("SANDBOXCORE_METRICS_ENABLED", c.Metrics.Enabled)
	c.Metrics.Addr = getEnv("SANDBOXCORE_METRICS_ADDR", c.Metrics.Addr)

	c.Bridge.Enabled = getEnvBool("SANDBOXCORE_BRIDGE_ENABLED", c.Bridge.Enabled)
	c.Bridge.Addr = getEnv("SANDBOXCORE_BRIDGE_ADDR", c.Bridge.Addr)

	c.AuditStore.Enabled = getEnvBool("SANDBOXCORE_AUDITSTORE_ENABLED", c.AuditStore.Enabled)

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":7700"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if c.Queue.DefaultSizeMiB == 0 {
		c.Queue.DefaultSizeMiB = 2
	}
	if c.Queue.MaxSizeMiB == 0 {
		c.Queue.MaxSizeMiB = 64
	}
	if c.Queue.ArenaSizeMiB == 0 {
		c.Queue.ArenaSizeMiB = 16
	}
	if c.Tracker.AbnormalTimeoutSec == 0 {
		c.Tracker.AbnormalTimeoutSec = 30
	}
	if c.Tracker.SweepIntervalSec == 0 {
		c.Tracker.SweepIntervalSec = 5
	}
	if c.Tracker.DrainTimeoutSec == 0 {
		c.Tracker.DrainTimeoutSec = 2
	}
	if c.Identity.TrustDomain == "" {
		c.Identity.TrustDomain = "spiffe://sandboxcore.internal"
	}
	if c.Identity.SocketPath == "" {
		c.Identity.SocketPath = "unix:///run/spire/sockets/agent.sock"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Bridge.Addr == "" {
		c.Bridge.Addr = ":9091"
	}
}

// =============================================================================
// Helper functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}
