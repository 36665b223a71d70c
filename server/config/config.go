// Copyright (C) 2024 Christian Rößner
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package config loads the settings of the reference target from flags, AUTHTARGET_* variables and an optional file.
package config

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

const EnvPrefix = "AUTHTARGET"

var ErrInvalidConfig = errors.New("invalid target configuration")

// Config holds the behaviour knobs of the target.
type Config struct {
	Address  string `mapstructure:"address" validate:"required,hostname_port"`
	Instance string `mapstructure:"instance"`

	Log LogSection `mapstructure:"log"`

	// Concurrent password hash computations. Excess requests wait up to HashAcquireTimeout, then get 503.
	HashLimit          int           `mapstructure:"hash_limit" validate:"gt=0"`
	HashAcquireTimeout time.Duration `mapstructure:"hash_acquire_timeout" validate:"gte=0"`
	HashCost           time.Duration `mapstructure:"hash_cost" validate:"gte=0"`
	Argon2             Argon2Section `mapstructure:"argon2"`

	LoginPerMinPerEmail    int `mapstructure:"login_per_min_per_email" validate:"gte=0"`
	RegisterPerMinPerEmail int `mapstructure:"register_per_min_per_email" validate:"gte=0"`
	RefreshPerMinPerToken  int `mapstructure:"refresh_per_min_per_token" validate:"gte=0"`

	Token TokenSection `mapstructure:"token"`

	RefreshStore string       `mapstructure:"refresh_store" validate:"oneof=memory redis"`
	Redis        RedisSection `mapstructure:"redis"`

	StatsInterval time.Duration `mapstructure:"stats_interval" validate:"gte=0"`

	// MaxConnections caps concurrently accepted connections. Zero means unlimited.
	MaxConnections int  `mapstructure:"max_connections" validate:"gte=0"`
	ProxyProtocol  bool `mapstructure:"proxy_protocol"`

	// IPPerMinute bounds all API requests per client address. Zero disables it.
	IPPerMinute int  `mapstructure:"ip_per_minute" validate:"gte=0"`
	Pprof       bool `mapstructure:"pprof"`

	Tracing TracingSection `mapstructure:"tracing"`
}

type LogSection struct {
	Level     string `mapstructure:"level" validate:"oneof=none error warn info debug"`
	JSON      bool   `mapstructure:"json"`
	Color     bool   `mapstructure:"color"`
	EventFile string `mapstructure:"event_file"`
}

type Argon2Section struct {
	Time    uint32 `mapstructure:"time" validate:"gt=0"`
	Memory  uint32 `mapstructure:"memory" validate:"gt=0"`
	Threads uint8  `mapstructure:"threads" validate:"gt=0"`
	KeyLen  uint32 `mapstructure:"key_len" validate:"gte=16"`
}

type TokenSection struct {
	Issuer     string        `mapstructure:"issuer" validate:"required"`
	Audience   string        `mapstructure:"audience" validate:"required"`
	AccessTTL  time.Duration `mapstructure:"access_ttl" validate:"gt=0"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" validate:"gt=0"`
	KeyBits    int           `mapstructure:"key_bits" validate:"oneof=1024 2048 3072 4096"`
}

type RedisSection struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Prefix   string `mapstructure:"prefix"`
}

type TracingSection struct {
	Enabled     bool     `mapstructure:"enabled"`
	Endpoint    string   `mapstructure:"endpoint"`
	Insecure    bool     `mapstructure:"insecure"`
	ServiceName string   `mapstructure:"service_name"`
	SampleRatio float64  `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
	Propagators []string `mapstructure:"propagators" validate:"dive,oneof=tracecontext baggage b3 b3multi jaeger"`
}

// Default returns the settings the probe expects out of the box.
func Default() *Config {
	return &Config{
		Address:   "127.0.0.1:8081",
		Instance:  "authtarget",
		Log:       LogSection{Level: "info"},
		HashLimit: 50,
		Argon2:    Argon2Section{Time: 1, Memory: 19 * 1024, Threads: 1, KeyLen: 32},

		LoginPerMinPerEmail:   5,
		RefreshPerMinPerToken: 10,

		Token: TokenSection{
			Issuer:     "auth-rs",
			Audience:   "7d-platform",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			KeyBits:    2048,
		},

		RefreshStore:  "memory",
		Redis:         RedisSection{Address: "127.0.0.1:6379", Prefix: "authtarget:"},
		StatsInterval: 10 * time.Second,

		Tracing: TracingSection{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "authtarget",
			SampleRatio: 1,
			Propagators: []string{"tracecontext", "baggage"},
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("address", d.Address)
	v.SetDefault("instance", d.Instance)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.color", d.Log.Color)
	v.SetDefault("log.event_file", d.Log.EventFile)
	v.SetDefault("hash_limit", d.HashLimit)
	v.SetDefault("hash_acquire_timeout", d.HashAcquireTimeout)
	v.SetDefault("hash_cost", d.HashCost)
	v.SetDefault("argon2.time", d.Argon2.Time)
	v.SetDefault("argon2.memory", d.Argon2.Memory)
	v.SetDefault("argon2.threads", d.Argon2.Threads)
	v.SetDefault("argon2.key_len", d.Argon2.KeyLen)
	v.SetDefault("login_per_min_per_email", d.LoginPerMinPerEmail)
	v.SetDefault("register_per_min_per_email", d.RegisterPerMinPerEmail)
	v.SetDefault("refresh_per_min_per_token", d.RefreshPerMinPerToken)
	v.SetDefault("token.issuer", d.Token.Issuer)
	v.SetDefault("token.audience", d.Token.Audience)
	v.SetDefault("token.access_ttl", d.Token.AccessTTL)
	v.SetDefault("token.refresh_ttl", d.Token.RefreshTTL)
	v.SetDefault("token.key_bits", d.Token.KeyBits)
	v.SetDefault("refresh_store", d.RefreshStore)
	v.SetDefault("redis.address", d.Redis.Address)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.prefix", d.Redis.Prefix)
	v.SetDefault("stats_interval", d.StatsInterval)
	v.SetDefault("max_connections", d.MaxConnections)
	v.SetDefault("proxy_protocol", d.ProxyProtocol)
	v.SetDefault("ip_per_minute", d.IPPerMinute)
	v.SetDefault("pprof", d.Pprof)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
	v.SetDefault("tracing.propagators", d.Tracing.Propagators)
}

// BindFlags registers the command line surface.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	d := Default()

	fs.StringP("config", "c", "", "Optional config file")
	fs.StringP("address", "a", d.Address, "Listen address")
	fs.Int("hash-limit", d.HashLimit, "Concurrent password hash computations")
	fs.Duration("hash-acquire-timeout", d.HashAcquireTimeout, "How long a request waits for a hash slot")
	fs.Int("login-per-min", d.LoginPerMinPerEmail, "Logins per minute and email (0 = unlimited)")
	fs.String("log-level", d.Log.Level, "Log level: none|error|warn|info|debug")
	fs.Bool("log-json", d.Log.JSON, "Emit JSON log lines")
	fs.String("event-log", d.Log.EventFile, "Append security events to this file")
	fs.String("refresh-store", d.RefreshStore, "Refresh token store: memory|redis")
	fs.Bool("pprof", d.Pprof, "Serve runtime profiles under /debug/pprof")
	fs.Int("max-connections", d.MaxConnections, "Concurrent connection cap (0 = unlimited)")
	fs.Bool("proxy-protocol", d.ProxyProtocol, "Accept PROXY protocol headers on the listener")
	fs.Bool("tracing", d.Tracing.Enabled, "Export OpenTelemetry traces via OTLP/HTTP")

	bindings := map[string]string{
		"address":                 "address",
		"hash_limit":              "hash-limit",
		"hash_acquire_timeout":    "hash-acquire-timeout",
		"login_per_min_per_email": "login-per-min",
		"log.level":               "log-level",
		"log.json":                "log-json",
		"log.event_file":          "event-log",
		"refresh_store":           "refresh-store",
		"pprof":                   "pprof",
		"max_connections":         "max-connections",
		"proxy_protocol":          "proxy-protocol",
		"tracing.enabled":         "tracing",
	}

	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return err
		}
	}

	return nil
}

// Load merges defaults, file, environment and flags into a validated Config.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)

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

	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.RefreshStore == "redis" && c.Redis.Address == "" {
		return fmt.Errorf("%w: redis.address is required for the redis refresh store", ErrInvalidConfig)
	}

	return nil
}
