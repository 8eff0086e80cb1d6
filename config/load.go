package config

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jonwraymond/vspherebroker/secret"
	"github.com/jonwraymond/vspherebroker/tools"
)

// keyDelim separates nested keys. Host names contain dots, so viper's
// default delimiter would split vcenter.hosts entries.
const keyDelim = "::"

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"vcenter.host":               "VCENTER_HOST",
	"vcenter.user":               "VCENTER_USER",
	"vcenter.password":           "VCENTER_PASSWORD",
	"vcenter.api_mode":           "VSPHERE_API_MODE",
	"vcenter.insecure":           "INSECURE",
	"vcenter.ca_bundle":          "VCENTER_CA_BUNDLE",
	"vcenter.timeout_s":          "VCENTER_TIMEOUT_S",
	"vcenter.retries":            "VCENTER_RETRIES",
	"vcenter.backoff":            "VCENTER_BACKOFF",
	"vcenter.allowed_hosts":      "ALLOWED_VCENTER_HOSTS",
	"auth.enforce":               "AUTH_ENFORCE",
	"auth.tokens_to_roles":       "TOKENS_TO_ROLES",
	"auth.roles_to_tools":        "ROLES_TO_TOOLS",
	"auth.destructive_tools":     "DESTRUCTIVE_TOOLS",
	"auth.jwt_secret":            "JWT_SECRET",
	"auth.jwt_issuer":            "JWT_ISSUER",
	"auth.jwt_audience":          "JWT_AUDIENCE",
	"rate_limit.enabled":         "RATE_LIMIT",
	"rate_limit.rps":             "RATE_LIMIT_RPS",
	"rate_limit.burst":           "RATE_LIMIT_BURST",
	"server.name":                "SERVER_NAME",
	"server.host":                "SERVER_HOST",
	"server.port":                "SERVER_PORT",
	"server.mcp_path":            "MCP_PATH",
	"audit.path":                 "AUDIT_LOG_PATH",
	"telemetry.log_level":        "LOG_LEVEL",
	"telemetry.traces_exporter":  "OTEL_TRACES_EXPORTER",
	"telemetry.metrics_exporter": "OTEL_METRICS_EXPORTER",
	"telemetry.sample_ratio":     "OTEL_TRACES_SAMPLER_ARG",
	"telemetry.metrics_path":     "METRICS_PATH",
}

// NewViper returns a viper instance with defaults and environment bindings
// installed. Callers may bind command-line flags to it, using Key for the
// flag's config path, before Load.
func NewViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelim))
	setDefaults(v)
	for k, env := range envBindings {
		_ = v.BindEnv(Key(k), env)
	}
	return v
}

// Key converts a dotted config path such as "server.port" to a viper key.
func Key(path string) string {
	return strings.ReplaceAll(path, ".", keyDelim)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(Key("vcenter.api_mode"), "api")
	v.SetDefault(Key("vcenter.insecure"), false)
	v.SetDefault(Key("vcenter.timeout_s"), 20.0)
	v.SetDefault(Key("vcenter.retries"), 3)
	v.SetDefault(Key("vcenter.backoff"), 0.5)

	v.SetDefault(Key("auth.enforce"), true)

	v.SetDefault(Key("rate_limit.enabled"), true)
	v.SetDefault(Key("rate_limit.rps"), 5.0)
	v.SetDefault(Key("rate_limit.burst"), 10)

	v.SetDefault(Key("server.name"), "vspherebroker")
	v.SetDefault(Key("server.host"), "0.0.0.0")
	v.SetDefault(Key("server.port"), 8000)
	v.SetDefault(Key("server.mcp_path"), "/mcp")

	v.SetDefault(Key("telemetry.log_level"), "info")
	v.SetDefault(Key("telemetry.traces_exporter"), "none")
	v.SetDefault(Key("telemetry.metrics_exporter"), "prometheus")
	v.SetDefault(Key("telemetry.sample_ratio"), 1.0)
	v.SetDefault(Key("telemetry.metrics_path"), "/metrics")
}

// Load reads path (if not empty) into v, decodes the result, resolves
// secret references and validates it.
func Load(ctx context.Context, v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		jsonStringToMapHook(),
		commaStringToSliceHook(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.normalize()

	resolver := secret.Default()
	defer func() { _ = resolver.Close() }()
	if err := cfg.resolveSecrets(ctx, resolver); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveSecrets expands passwords, the JWT secret and caller tokens.
func (c *Config) resolveSecrets(ctx context.Context, r *secret.Resolver) error {
	resolve := func(field string, dst *string) error {
		if *dst == "" {
			return nil
		}
		out, err := r.ResolveValue(ctx, *dst)
		if err != nil {
			return fmt.Errorf("config: %s: %w", field, err)
		}
		*dst = out
		return nil
	}

	if err := resolve("vcenter.password", &c.VCenter.Password); err != nil {
		return err
	}
	for _, host := range sortedKeys(c.VCenter.Hosts) {
		cred := c.VCenter.Hosts[host]
		if err := resolve("vcenter.hosts["+host+"].password", &cred.Password); err != nil {
			return err
		}
		c.VCenter.Hosts[host] = cred
	}
	if err := resolve("auth.jwt_secret", &c.Auth.JWTSecret); err != nil {
		return err
	}

	tokens := make(map[string]string, len(c.Auth.Tokens))
	for _, tok := range sortedKeys(c.Auth.Tokens) {
		resolved := tok
		if err := resolve("auth.tokens_to_roles", &resolved); err != nil {
			return err
		}
		tokens[resolved] = c.Auth.Tokens[tok]
	}
	c.Auth.Tokens = tokens
	return nil
}

// jsonStringToMapHook decodes a JSON object held in a string, as
// TOKENS_TO_ROLES and ROLES_TO_TOOLS are given in the environment.
func jsonStringToMapHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Map {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if s == "" {
			return map[string]any{}, nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("expected a JSON object: %w", err)
		}
		return out, nil
	}
}

// commaStringToSliceHook splits "a, b,c" into trimmed, non-empty elements.
func commaStringToSliceHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
			return data, nil
		}
		parts := strings.Split(data.(string), ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
}

func defaultDestructive() []string {
	return tools.Default().DestructiveNames()
}
