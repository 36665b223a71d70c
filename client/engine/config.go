package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "AUTHPROBE"

// DefaultScenarios is the run order used when no scenario list is configured.
var DefaultScenarios = []string{"jwks", "hash", "replay", "ratelimit", "metrics"}

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all parameters for the harness.
type Config struct {
	BaseURL          string        `mapstructure:"base_url" validate:"required,url"`
	MetricsPath      string        `mapstructure:"metrics_path" validate:"required,startswith=/"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Concurrency      int           `mapstructure:"concurrency" validate:"gte=0"`
	RPS              float64       `mapstructure:"rps" validate:"gte=0"`
	ScenarioDeadline time.Duration `mapstructure:"scenario_deadline" validate:"gt=0"`
	Scenarios        []string      `mapstructure:"scenarios" validate:"min=1,dive,oneof=jwks hash replay ratelimit metrics latency token"`
	TenantID         string        `mapstructure:"tenant_id"`
	Password         string        `mapstructure:"password" validate:"required"`

	Log     LogSection     `mapstructure:"log"`
	Color   string         `mapstructure:"color" validate:"oneof=auto always never"`
	Tracing TracingSection `mapstructure:"tracing"`

	JWKS      JWKSSection      `mapstructure:"jwks"`
	Hash      HashSection      `mapstructure:"hash"`
	Replay    ReplaySection    `mapstructure:"replay"`
	RateLimit RateLimitSection `mapstructure:"ratelimit"`
	Metrics   MetricsSection   `mapstructure:"metrics"`
	Latency   LatencySection   `mapstructure:"latency"`
	Token     TokenSection     `mapstructure:"token"`
}

type LogSection struct {
	Level string `mapstructure:"level" validate:"oneof=none error warn info debug"`
	JSON  bool   `mapstructure:"json"`
}

type TracingSection struct {
	Enabled     bool     `mapstructure:"enabled"`
	Endpoint    string   `mapstructure:"endpoint"`
	Insecure    bool     `mapstructure:"insecure"`
	ServiceName string   `mapstructure:"service_name"`
	SampleRatio float64  `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
	Propagators []string `mapstructure:"propagators" validate:"dive,oneof=tracecontext baggage b3 b3multi jaeger"`
}

type JWKSSection struct {
	Requests int `mapstructure:"requests" validate:"gt=0"`
}

type HashSection struct {
	Requests    int    `mapstructure:"requests" validate:"gt=0"`
	ServerLimit int    `mapstructure:"server_limit" validate:"gte=0"`
	BusyMarker  string `mapstructure:"busy_marker"`
	Strict      bool   `mapstructure:"strict"`
}

type ReplaySection struct {
	PrimaryIP    string `mapstructure:"primary_ip" validate:"ip"`
	PrimaryAgent string `mapstructure:"primary_agent"`
	ReplayIP     string `mapstructure:"replay_ip" validate:"ip"`
	ReplayAgent  string `mapstructure:"replay_agent"`
	LogFile      string `mapstructure:"log_file"`
	EventMarker  string `mapstructure:"event_marker"`
}

type RateLimitSection struct {
	Attempts  int           `mapstructure:"attempts" validate:"gt=0"`
	Delay     time.Duration `mapstructure:"delay" validate:"gte=0"`
	Threshold int           `mapstructure:"threshold" validate:"gte=0"`
}

type MetricsSection struct {
	Required   []string `mapstructure:"required" validate:"min=1"`
	MinPresent int      `mapstructure:"min_present" validate:"gte=0"`
}

type LatencySection struct {
	TenantID string        `mapstructure:"tenant_id"`
	Email    string        `mapstructure:"email"`
	Password string        `mapstructure:"password"`
	Requests int           `mapstructure:"requests" validate:"gt=0"`
	Delay    time.Duration `mapstructure:"delay" validate:"gte=0"`
	MaxP95   time.Duration `mapstructure:"max_p95" validate:"gte=0"`
}

type TokenSection struct {
	Audience string `mapstructure:"audience"`
	Issuer   string `mapstructure:"issuer"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "http://localhost:8081",
		MetricsPath:      "/metrics",
		Timeout:          10 * time.Second,
		ScenarioDeadline: 2 * time.Minute,
		Scenarios:        append([]string(nil), DefaultScenarios...),
		Password:         "SecurePass123!@#",
		Log:              LogSection{Level: "info"},
		Color:            "auto",
		Tracing: TracingSection{
			Endpoint:    "localhost:4318",
			ServiceName: "authprobe",
			SampleRatio: 1,
			Propagators: []string{"tracecontext", "baggage"},
		},
		JWKS: JWKSSection{Requests: 100},
		Hash: HashSection{Requests: 60, ServerLimit: 50, BusyMarker: "hash_busy"},
		Replay: ReplaySection{
			PrimaryIP:    "203.0.113.42",
			PrimaryAgent: "TestClient/1.0",
			ReplayIP:     "198.51.100.99",
			ReplayAgent:  "EvilClient/0.1",
			EventMarker:  "refresh_replay_detected",
		},
		RateLimit: RateLimitSection{Attempts: 10, Delay: 100 * time.Millisecond, Threshold: 5},
		Metrics: MetricsSection{
			Required: []string{
				"auth_register_total",
				"auth_login_total",
				"auth_refresh_total",
				"auth_http_request_duration_seconds",
			},
			MinPresent: 3,
		},
		Latency: LatencySection{Requests: 200, Delay: 10 * time.Millisecond},
		Token:   TokenSection{Audience: "7d-platform", Issuer: "auth-rs"},
	}
}

// maxConcurrency is the largest number of requests any fan-out scenario may have in flight.
func (c *Config) maxConcurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}

	return max(c.JWKS.Requests, c.Hash.Requests)
}

// MetricsURL is the absolute metrics endpoint derived from the base URL.
func (c *Config) MetricsURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.MetricsPath
}

// SetDefaults registers every default on v so that environment variables and config files can override nested keys.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("metrics_path", d.MetricsPath)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("rps", d.RPS)
	v.SetDefault("scenario_deadline", d.ScenarioDeadline)
	v.SetDefault("scenarios", d.Scenarios)
	v.SetDefault("tenant_id", d.TenantID)
	v.SetDefault("password", d.Password)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("color", d.Color)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
	v.SetDefault("tracing.propagators", d.Tracing.Propagators)
	v.SetDefault("jwks.requests", d.JWKS.Requests)
	v.SetDefault("hash.requests", d.Hash.Requests)
	v.SetDefault("hash.server_limit", d.Hash.ServerLimit)
	v.SetDefault("hash.busy_marker", d.Hash.BusyMarker)
	v.SetDefault("hash.strict", d.Hash.Strict)
	v.SetDefault("replay.primary_ip", d.Replay.PrimaryIP)
	v.SetDefault("replay.primary_agent", d.Replay.PrimaryAgent)
	v.SetDefault("replay.replay_ip", d.Replay.ReplayIP)
	v.SetDefault("replay.replay_agent", d.Replay.ReplayAgent)
	v.SetDefault("replay.log_file", d.Replay.LogFile)
	v.SetDefault("replay.event_marker", d.Replay.EventMarker)
	v.SetDefault("ratelimit.attempts", d.RateLimit.Attempts)
	v.SetDefault("ratelimit.delay", d.RateLimit.Delay)
	v.SetDefault("ratelimit.threshold", d.RateLimit.Threshold)
	v.SetDefault("metrics.required", d.Metrics.Required)
	v.SetDefault("metrics.min_present", d.Metrics.MinPresent)
	v.SetDefault("latency.tenant_id", d.Latency.TenantID)
	v.SetDefault("latency.email", d.Latency.Email)
	v.SetDefault("latency.password", d.Latency.Password)
	v.SetDefault("latency.requests", d.Latency.Requests)
	v.SetDefault("latency.delay", d.Latency.Delay)
	v.SetDefault("latency.max_p95", d.Latency.MaxP95)
	v.SetDefault("token.audience", d.Token.Audience)
	v.SetDefault("token.issuer", d.Token.Issuer)
}

// BindFlags registers the command line surface on fs and binds it to v. Only the frequently tuned settings get a
// flag; everything else is reachable through the config file or AUTHPROBE_* variables.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	d := DefaultConfig()

	fs.StringP("config", "c", "", "Optional config file (yaml, toml, json)")
	fs.StringP("url", "u", d.BaseURL, "Base URL of the target service")
	fs.Duration("timeout", d.Timeout, "Per-request timeout")
	fs.Int("concurrency", d.Concurrency, "Concurrency ceiling for fan-out batches (0 = batch size)")
	fs.Float64("rps", d.RPS, "Issue rate limit for fan-out batches (0 = unlimited)")
	fs.Duration("scenario-deadline", d.ScenarioDeadline, "Total deadline for a single scenario")
	fs.StringSlice("scenarios", d.Scenarios, "Scenarios to run, in order")
	fs.String("tenant", d.TenantID, "Tenant ID (default: random per run)")
	fs.String("log-level", d.Log.Level, "Log level: none|error|warn|info|debug")
	fs.Bool("log-json", d.Log.JSON, "Emit JSON log lines")
	fs.String("color", d.Color, "Color output: auto|always|never")
	fs.String("replay-log", d.Replay.LogFile, "Target event log inspected by the replay scenario")
	fs.Bool("hash-strict", d.Hash.Strict, "Require at least requests-server_limit busy responses")
	fs.Bool("tracing", d.Tracing.Enabled, "Export client spans via OTLP/HTTP")

	bindings := map[string]string{
		"base_url":          "url",
		"timeout":           "timeout",
		"concurrency":       "concurrency",
		"rps":               "rps",
		"scenario_deadline": "scenario-deadline",
		"scenarios":         "scenarios",
		"tenant_id":         "tenant",
		"log.level":         "log-level",
		"log.json":          "log-json",
		"color":             "color",
		"replay.log_file":   "replay-log",
		"hash.strict":       "hash-strict",
		"tracing.enabled":   "tracing",
	}

	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}

	return nil
}

// Load reads an optional config file, applies environment overrides and decodes the result into a validated Config.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	cfg := &Config{}

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))

	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	cfg.Scenarios = normalizeList(cfg.Scenarios)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints and the cross-field rules the struct tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Metrics.MinPresent > len(c.Metrics.Required) {
		return fmt.Errorf("%w: metrics.min_present %d exceeds %d required metrics",
			ErrInvalidConfig, c.Metrics.MinPresent, len(c.Metrics.Required))
	}

	if c.Latency.Email != "" {
		if c.Latency.Password == "" {
			return fmt.Errorf("%w: latency.email needs latency.password", ErrInvalidConfig)
		}

		if c.Latency.TenantID == "" && c.TenantID == "" {
			return fmt.Errorf("%w: latency.email needs latency.tenant_id or tenant_id", ErrInvalidConfig)
		}
	}

	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))

	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}

	return out
}
