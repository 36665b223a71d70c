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

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/croessner/authprobe/server/app"
	"github.com/croessner/authprobe/server/config"
	svrlog "github.com/croessner/authprobe/server/log"

	"github.com/go-kit/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

var (
	version   = "dev"
	buildTime = ""
)

func loadConfig(args []string) (*config.Config, bool, error) {
	fs := pflag.NewFlagSet("authtarget", pflag.ContinueOnError)
	showVersion := fs.BoolP("version", "V", false, "Print the version and exit")

	v := viper.New()

	if err := config.BindFlags(fs, v); err != nil {
		return nil, false, err
	}

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	if *showVersion {
		return nil, true, nil
	}

	configFile, _ := fs.GetString("config")

	cfg, err := config.Load(v, configFile)

	return cfg, false, err
}

func main() {
	cfg, versionOnly, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Unable to load the configuration:", err)
		os.Exit(2)
	}

	if versionOnly {
		fmt.Printf("authtarget %s (%s)\n", version, buildTime)
		os.Exit(0)
	}

	bootLogger, err := svrlog.New(os.Stderr, cfg.Log.Level, cfg.Log.JSON, false, cfg.Instance)
	if err != nil {
		bootLogger = log.NewLogfmtLogger(os.Stderr)
	}

	app.Version = version

	fApp := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return svrlog.NewFxEventLogger(bootLogger)
		}),
		app.Module(cfg),
	)

	fApp.Run()
}
