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

package app

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestModuleLifecycle(t *testing.T) {
	cfg := testConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.StatsInterval = 10 * time.Millisecond
	cfg.Log.Level = "none"

	var target *Target

	fxApp := fxtest.New(t, fx.NopLogger, Module(cfg), fx.Populate(&target))
	fxApp.RequireStart()

	require.NotNil(t, target)
	assert.NotEmpty(t, target.Signer.KeyID())

	fxApp.RequireStop()
}

func TestModuleFailsOnInvalidAddress(t *testing.T) {
	cfg := testConfig()
	cfg.Address = "256.0.0.1:80"
	cfg.Log.Level = "none"

	fxApp := fx.New(fx.NopLogger, Module(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.Error(t, fxApp.Start(ctx))
}

func TestHostServiceStopWithoutStart(t *testing.T) {
	svc := &HostService{}

	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Stop(context.Background()))
}

func TestWrapListenerProxyProtocol(t *testing.T) {
	cfg := testConfig()
	cfg.ProxyProtocol = true
	cfg.MaxConnections = 4

	raw, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ln := WrapListener(raw, cfg)
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	defer client.Close()

	_, err = client.Write([]byte("PROXY TCP4 203.0.113.7 127.0.0.1 40000 80\r\n"))
	require.NoError(t, err)

	conn, err := ln.Accept()
	require.NoError(t, err)

	defer conn.Close()

	assert.Equal(t, "203.0.113.7:40000", conn.RemoteAddr().String())
}

func TestWrapListenerPassthrough(t *testing.T) {
	raw, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer raw.Close()

	assert.Same(t, raw, WrapListener(raw, testConfig()))
}
