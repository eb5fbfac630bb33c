// Package config loads and validates the QTHLink configuration file.
package config

import (
	"fmt"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Security SecurityConfig `yaml:"security"`
	Auth     AuthConfig     `yaml:"auth"`
	Backend  BackendConfig  `yaml:"homeassistant"`
	Display  DisplayConfig  `yaml:"display"`
	Admin    AdminConfig    `yaml:"admin"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
}

// ListenConfig defines the line-protocol listener.
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// NodeSuppliedCallsign enables the gateway compatibility mode where
	// the first line of a connection is consumed as the caller's callsign
	// without a prompt (BPQ-style nodes send it automatically).
	NodeSuppliedCallsign bool `yaml:"node_supplied_callsign"`

	MaxConnections     int `yaml:"max_connections"`
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`

	// AllowedNets restricts source addresses to the listed CIDR
	// prefixes. Empty allows all sources.
	AllowedNets []string `yaml:"allowed_nets"`
}

// SecurityConfig defines authentication and abuse limits.
type SecurityConfig struct {
	WelcomeBanner          string  `yaml:"welcome_banner"`
	MaxAuthAttempts        int     `yaml:"max_auth_attempts"`        // per connection
	FailedAttemptThreshold int     `yaml:"failed_attempt_threshold"` // per identity, cross-connection
	LockoutSeconds         int     `yaml:"lockout_seconds"`
	LinesPerSecond         float64 `yaml:"lines_per_second"` // per-connection input rate
	LineBurst              int     `yaml:"line_burst"`
}

// AuthConfig locates the per-identity TOTP secret store.
// Exactly one of UsersFile or EncryptedUsersFile is used; the encrypted
// form takes precedence when both are set.
type AuthConfig struct {
	UsersFile          string `yaml:"users_file"`
	EncryptedUsersFile string `yaml:"encrypted_users_file"`
}

// BackendConfig defines the Home Assistant connection and entity cache.
type BackendConfig struct {
	URL             string       `yaml:"url"`
	Token           string       `yaml:"token"` // overridden by HA_TOKEN env var
	TimeoutSeconds  int          `yaml:"timeout_seconds"`
	CacheTTLSeconds int          `yaml:"cache_ttl_seconds"`
	EntityFilter    FilterConfig `yaml:"entity_filter"`
}

// FilterConfig selects which backend entities are exposed.
type FilterConfig struct {
	IncludeDomains  []string `yaml:"include_domains"`  // empty = all domains
	ExcludeEntities []string `yaml:"exclude_entities"` // entity ids or glob patterns
}

// DisplayConfig tunes output for the low-bandwidth link.
type DisplayConfig struct {
	PageSize    int                   `yaml:"page_size"`
	ValueRanges map[string]ValueRange `yaml:"value_ranges"` // per-domain SET overrides
}

// ValueRange bounds the SET command for one domain.
type ValueRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// AdminConfig defines the optional gRPC admin endpoint.
// Empty Addr disables it. A "unix:" prefix selects a unix socket.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// AuditConfig locates the audit database.
type AuditConfig struct {
	DBPath string `yaml:"db_path"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses the configuration file, applying defaults,
// environment overrides, and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration with the documented defaults.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Host:                 "0.0.0.0",
			Port:                 8023,
			NodeSuppliedCallsign: true,
			MaxConnections:       10,
			IdleTimeoutSeconds:   300,
		},
		Security: SecurityConfig{
			WelcomeBanner:          "QTHLink",
			MaxAuthAttempts:        3,
			FailedAttemptThreshold: 5,
			LockoutSeconds:         300,
			LinesPerSecond:         5,
			LineBurst:              10,
		},
		Auth: AuthConfig{
			UsersFile: "users.yaml",
		},
		Backend: BackendConfig{
			TimeoutSeconds:  10,
			CacheTTLSeconds: 60,
		},
		Display: DisplayConfig{
			PageSize: 10,
		},
		Audit: AuditConfig{
			DBPath: "qthlink-audit.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HA_TOKEN"); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv("QTHLINK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if c.Listen.MaxConnections < 1 {
		return fmt.Errorf("listen.max_connections must be >= 1")
	}
	if c.Listen.IdleTimeoutSeconds < 1 {
		return fmt.Errorf("listen.idle_timeout_seconds must be >= 1")
	}
	for _, cidr := range c.Listen.AllowedNets {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("listen.allowed_nets: %q is not a CIDR prefix", cidr)
		}
	}
	if c.Security.MaxAuthAttempts < 1 {
		return fmt.Errorf("security.max_auth_attempts must be >= 1")
	}
	if c.Security.FailedAttemptThreshold < 1 {
		return fmt.Errorf("security.failed_attempt_threshold must be >= 1")
	}
	if c.Security.LockoutSeconds < 1 {
		return fmt.Errorf("security.lockout_seconds must be >= 1")
	}
	if c.Auth.UsersFile == "" && c.Auth.EncryptedUsersFile == "" {
		return fmt.Errorf("auth.users_file or auth.encrypted_users_file is required")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("homeassistant.url is required")
	}
	if c.Backend.Token == "" {
		return fmt.Errorf("homeassistant.token is required (or set HA_TOKEN)")
	}
	if c.Backend.CacheTTLSeconds < 1 {
		return fmt.Errorf("homeassistant.cache_ttl_seconds must be >= 1")
	}
	if c.Display.PageSize < 1 {
		return fmt.Errorf("display.page_size must be >= 1")
	}
	for domain, r := range c.Display.ValueRanges {
		if r.Min > r.Max {
			return fmt.Errorf("display.value_ranges.%s: min %g > max %g", domain, r.Min, r.Max)
		}
	}
	return nil
}

// ListenAddr returns the host:port string for the line-protocol listener.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Listen.Host, c.Listen.Port)
}

// AllowedPrefixes returns the parsed source safelist. Call after
// Validate; entries are known to parse.
func (c *Config) AllowedPrefixes() []netip.Prefix {
	out := make([]netip.Prefix, 0, len(c.Listen.AllowedNets))
	for _, cidr := range c.Listen.AllowedNets {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
