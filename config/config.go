// Package config loads broker configuration from an optional file and the
// environment.
//
// Environment variables keep the names of existing deployments
// (VCENTER_HOST, TOKENS_TO_ROLES, RATE_LIMIT_RPS, ...). Map-valued variables
// are JSON objects; list-valued variables are comma separated. Secret fields
// accept ${VAR} expansion and secretref:<provider>:<ref> values.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonwraymond/vspherebroker/auth"
	"github.com/jonwraymond/vspherebroker/broker"
	"github.com/jonwraymond/vspherebroker/observe"
	"github.com/jonwraymond/vspherebroker/vcenter"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// placeholderHost is the value shipped in example deployments.
const placeholderHost = "CHANGE_ME"

// Config is the complete broker configuration.
type Config struct {
	VCenter   VCenterConfig   `mapstructure:"vcenter"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Server    ServerConfig    `mapstructure:"server"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// VCenterConfig describes the default vCenter and the hosts calls may target.
type VCenterConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	// APIMode is "api" or "rest".
	APIMode string `mapstructure:"api_mode"`

	Insecure bool   `mapstructure:"insecure"`
	CABundle string `mapstructure:"ca_bundle"`

	TimeoutSeconds float64 `mapstructure:"timeout_s"`
	Retries        int     `mapstructure:"retries"`

	// Backoff is the base retry delay in seconds.
	Backoff float64 `mapstructure:"backoff"`

	// AllowedHosts defaults to {Host}.
	AllowedHosts []string `mapstructure:"allowed_hosts"`

	// Hosts overrides the login per host. Hosts not listed use User and
	// Password.
	Hosts map[string]HostCredential `mapstructure:"hosts"`
}

// HostCredential is a per-host login.
type HostCredential struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// AuthConfig is the caller identity and role policy.
type AuthConfig struct {
	Enforce bool `mapstructure:"enforce"`

	// Tokens maps caller tokens to roles.
	Tokens map[string]string `mapstructure:"tokens_to_roles"`

	// Identities is the list form of Tokens. File loaders lower-case map
	// keys, so tokens with upper-case characters belong here.
	Identities []IdentityEntry `mapstructure:"identities"`

	// Roles maps role names to tool names or patterns.
	// Default: read/ops/admin
	Roles map[string][]string `mapstructure:"roles_to_tools"`

	// Destructive defaults to the catalog's destructive tools.
	Destructive []string `mapstructure:"destructive_tools"`

	JWTSecret   string `mapstructure:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience"`
}

// IdentityEntry binds one token to a role.
type IdentityEntry struct {
	Token string `mapstructure:"token"`
	Role  string `mapstructure:"role"`
}

// RateLimitConfig is the per-identity token bucket.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Name    string `mapstructure:"name"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	MCPPath string `mapstructure:"mcp_path"`
}

// AuditConfig selects the audit destination. Empty Path writes to stdout.
type AuditConfig struct {
	Path string `mapstructure:"path"`
}

// TelemetryConfig selects logging and OpenTelemetry exporters.
type TelemetryConfig struct {
	LogLevel        string  `mapstructure:"log_level"`
	TracesExporter  string  `mapstructure:"traces_exporter"`
	MetricsExporter string  `mapstructure:"metrics_exporter"`
	SampleRatio     float64 `mapstructure:"sample_ratio"`
	MetricsPath     string  `mapstructure:"metrics_path"`
}

// DefaultRoles is the role table used when none is configured.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		"read": {
			"list_vms", "get_vm_details", "list_hosts", "list_datastores",
			"list_networks", "list_datacenters", "get_datastore_usage",
			"get_resource_utilization_summary", "list_vm_snapshots",
		},
		"ops": {
			"power_on_vm", "power_off_vm", "restart_vm", "create_vm_snapshot",
			"delete_vm_snapshot", "list_vm_snapshots",
		},
		"admin": {"delete_vm", "modify_vm_resources", broker.ResetHostOperation},
	}
}

// normalize applies derived defaults after decoding.
func (c *Config) normalize() {
	c.VCenter.Host = strings.TrimSpace(c.VCenter.Host)
	c.VCenter.APIMode = strings.ToLower(strings.TrimSpace(c.VCenter.APIMode))

	hosts := make([]string, 0, len(c.VCenter.AllowedHosts))
	seen := make(map[string]bool, len(c.VCenter.AllowedHosts))
	for _, h := range c.VCenter.AllowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" && !seen[h] {
			seen[h] = true
			hosts = append(hosts, h)
		}
	}
	if len(hosts) == 0 && c.VCenter.Host != "" {
		hosts = []string{strings.ToLower(c.VCenter.Host)}
	}
	c.VCenter.AllowedHosts = hosts

	if len(c.VCenter.Hosts) > 0 {
		byHost := make(map[string]HostCredential, len(c.VCenter.Hosts))
		for h, cred := range c.VCenter.Hosts {
			byHost[strings.ToLower(strings.TrimSpace(h))] = cred
		}
		c.VCenter.Hosts = byHost
	}

	if c.Auth.Tokens == nil {
		c.Auth.Tokens = make(map[string]string, len(c.Auth.Identities))
	}
	for _, e := range c.Auth.Identities {
		c.Auth.Tokens[e.Token] = e.Role
	}
	c.Auth.Identities = nil
	if len(c.Auth.Roles) == 0 {
		c.Auth.Roles = DefaultRoles()
	}
	if c.Auth.Destructive == nil {
		c.Auth.Destructive = defaultDestructive()
	}

	c.Telemetry.LogLevel = strings.ToLower(strings.TrimSpace(c.Telemetry.LogLevel))
}

// Validate reports every problem in c, joined under ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.VCenter.Host {
	case "", placeholderHost:
		add("vcenter.host is required (VCENTER_HOST)")
	}
	if c.VCenter.User == "" {
		add("vcenter.user is required (VCENTER_USER)")
	}
	if _, err := vcenter.ParseAPIMode(c.VCenter.APIMode); err != nil {
		errs = append(errs, err)
	}
	if c.VCenter.TimeoutSeconds <= 0 {
		add("vcenter.timeout_s must be positive, got %v", c.VCenter.TimeoutSeconds)
	}
	if c.VCenter.Retries < 0 {
		add("vcenter.retries must not be negative, got %d", c.VCenter.Retries)
	}
	if c.VCenter.Backoff < 0 {
		add("vcenter.backoff must not be negative, got %v", c.VCenter.Backoff)
	}
	if c.VCenter.CABundle != "" {
		if _, err := os.Stat(c.VCenter.CABundle); err != nil {
			add("vcenter.ca_bundle: %w", err)
		}
	}

	allowed := make(map[string]bool, len(c.VCenter.AllowedHosts))
	for _, h := range c.VCenter.AllowedHosts {
		allowed[h] = true
	}
	if c.VCenter.Host != "" && !allowed[strings.ToLower(c.VCenter.Host)] {
		add("vcenter.host %q is not in allowed_hosts", c.VCenter.Host)
	}
	for _, h := range sortedKeys(c.VCenter.Hosts) {
		if !allowed[h] {
			add("vcenter.hosts: credentials for %q, which is not in allowed_hosts", h)
		}
		if c.VCenter.Hosts[h].User == "" {
			add("vcenter.hosts[%q].user is required", h)
		}
	}

	for _, tok := range sortedKeys(c.Auth.Tokens) {
		role := c.Auth.Tokens[tok]
		if strings.TrimSpace(tok) == "" {
			add("auth.tokens_to_roles: empty token")
			continue
		}
		if _, ok := c.Auth.Roles[role]; !ok {
			add("auth.tokens_to_roles: token %s references undefined role %q", auth.Fingerprint(tok), role)
		}
	}
	for _, role := range sortedKeys(c.Auth.Roles) {
		if len(c.Auth.Roles[role]) == 0 {
			add("auth.roles_to_tools: role %q grants no tools", role)
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			add("rate_limit.rps must be positive when enabled, got %v", c.RateLimit.RPS)
		}
		if c.RateLimit.Burst <= 0 {
			add("rate_limit.burst must be positive when enabled, got %d", c.RateLimit.Burst)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port out of range: %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.MCPPath, "/") {
		add("server.mcp_path must start with /, got %q", c.Server.MCPPath)
	}

	oc := c.ObserveConfig("")
	if err := oc.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Credentials returns the login for host: its own entry in Hosts, or the
// default user and password.
func (c *Config) Credentials(host string) (vcenter.Credential, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if cred, ok := c.VCenter.Hosts[host]; ok {
		return vcenter.Credential{Host: host, Username: cred.User, Password: cred.Password}, nil
	}
	if c.VCenter.User == "" {
		return vcenter.Credential{}, fmt.Errorf("config: no credentials for %s", host)
	}
	return vcenter.Credential{Host: host, Username: c.VCenter.User, Password: c.VCenter.Password}, nil
}

// BrokerConfig maps c onto broker.Config. Audit, Instrumenter, Logger and
// Catalog are left for the caller.
func (c *Config) BrokerConfig() broker.Config {
	mode, _ := vcenter.ParseAPIMode(c.VCenter.APIMode)
	return broker.Config{
		DefaultHost:  c.VCenter.Host,
		AllowedHosts: append([]string(nil), c.VCenter.AllowedHosts...),
		Credentials:  c.Credentials,
		Mode:         mode,
		TLS: vcenter.TLSConfig{
			Insecure: c.VCenter.Insecure,
			CABundle: c.VCenter.CABundle,
		},
		Timeout: seconds(c.VCenter.TimeoutSeconds),
		Retries: c.VCenter.Retries,
		Backoff: seconds(c.VCenter.Backoff),
		RateLimit: broker.RateLimitConfig{
			Enabled: c.RateLimit.Enabled,
			RPS:     c.RateLimit.RPS,
			Burst:   c.RateLimit.Burst,
		},
		Auth: auth.GateConfig{
			Tokens:      c.Auth.Tokens,
			Roles:       c.Auth.Roles,
			Destructive: c.Auth.Destructive,
			Enforce:     c.Auth.Enforce,
			JWTSecret:   []byte(c.Auth.JWTSecret),
			JWT: auth.JWTConfig{
				Issuer:   c.Auth.JWTIssuer,
				Audience: c.Auth.JWTAudience,
			},
		},
	}
}

// ObserveConfig maps the telemetry section onto observe.Config.
func (c *Config) ObserveConfig(version string) observe.Config {
	enabled := func(exporter string) bool { return exporter != "" && exporter != "none" }
	return observe.Config{
		ServiceName: c.Server.Name,
		Version:     version,
		Attributes: map[string]string{
			"vcenter.host":     c.VCenter.Host,
			"vcenter.api_mode": c.VCenter.APIMode,
		},
		Tracing: observe.TracingConfig{
			Enabled:   enabled(c.Telemetry.TracesExporter),
			Exporter:  c.Telemetry.TracesExporter,
			SamplePct: c.Telemetry.SampleRatio,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  enabled(c.Telemetry.MetricsExporter),
			Exporter: c.Telemetry.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Telemetry.LogLevel,
		},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
