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

package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")

	require.NoError(t, err)
	assert.Equal(t, 50, cfg.HashLimit)
	assert.Equal(t, 5, cfg.LoginPerMinPerEmail)
	assert.Equal(t, "memory", cfg.RefreshStore)
	assert.Equal(t, "7d-platform", cfg.Token.Audience)
	assert.Equal(t, 7*24*time.Hour, cfg.Token.RefreshTTL)
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("AUTHTARGET_HASH_COST", "150ms")
	t.Setenv("AUTHTARGET_TOKEN_ISSUER", "issuer-x")

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	require.NoError(t, BindFlags(fs, v))
	require.NoError(t, fs.Parse([]string{"--hash-limit", "3", "--login-per-min", "0", "--proxy-protocol", "--max-connections", "64"}))

	cfg, err := Load(v, "")

	require.NoError(t, err)
	assert.Equal(t, 3, cfg.HashLimit)
	assert.Equal(t, 0, cfg.LoginPerMinPerEmail)
	assert.Equal(t, 150*time.Millisecond, cfg.HashCost)
	assert.Equal(t, "issuer-x", cfg.Token.Issuer)
	assert.True(t, cfg.ProxyProtocol)
	assert.Equal(t, 64, cfg.MaxConnections)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.HashLimit = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default()
	cfg.RefreshStore = "redis"
	cfg.Redis.Address = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = Default()
	cfg.Token.KeyBits = 512
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	assert.NoError(t, Default().Validate())
}

func TestLoadTracingFromEnv(t *testing.T) {
	t.Setenv("AUTHTARGET_TRACING_ENABLED", "true")
	t.Setenv("AUTHTARGET_TRACING_PROPAGATORS", "b3,jaeger")

	cfg, err := Load(viper.New(), "")

	require.NoError(t, err)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, []string{"b3", "jaeger"}, cfg.Tracing.Propagators)
	assert.Equal(t, "authtarget", cfg.Tracing.ServiceName)

	t.Setenv("AUTHTARGET_TRACING_PROPAGATORS", "zipkin")

	_, err = Load(viper.New(), "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
