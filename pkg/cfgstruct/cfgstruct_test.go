// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package cfgstruct

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Address      string        `help:"listen address" default:":8080"`
	Debug        bool          `help:"enable debug" default:"true"`
	Workers      int           `help:"worker count" default:"4"`
	MaxSize      int64         `help:"max request size" default:"1048576"`
	Margin       float64       `help:"capacity margin" default:"1.1"`
	PollInterval time.Duration `help:"poll interval" default:"30s"`

	Database struct {
		WriteURL string `help:"write store url" default:"sqlite3://registry.db"`
	}
}

func TestBindDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var config testConfig
	Bind(flags, &config)

	require.NoError(t, flags.Parse(nil))
	require.Equal(t, ":8080", config.Address)
	require.True(t, config.Debug)
	require.Equal(t, 4, config.Workers)
	require.Equal(t, int64(1048576), config.MaxSize)
	require.Equal(t, 1.1, config.Margin)
	require.Equal(t, 30*time.Second, config.PollInterval)
	require.Equal(t, "sqlite3://registry.db", config.Database.WriteURL)
}

func TestBindOverrides(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var config testConfig
	Bind(flags, &config)

	require.NoError(t, flags.Parse([]string{
		"--address", ":9090",
		"--debug=false",
		"--poll-interval", "1m",
		"--database.write-url", "postgres://localhost/registry",
	}))
	require.Equal(t, ":9090", config.Address)
	require.False(t, config.Debug)
	require.Equal(t, time.Minute, config.PollInterval)
	require.Equal(t, "postgres://localhost/registry", config.Database.WriteURL)
}

func TestBindFlagNames(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var config struct {
		TokenSecret string `help:"secret" default:""`
		HTTPServer  struct {
			ReadTimeout time.Duration `help:"read timeout" default:"10s"`
		}
	}
	Bind(flags, &config)

	require.NotNil(t, flags.Lookup("token-secret"))
	require.NotNil(t, flags.Lookup("httpserver.read-timeout"))
}

func TestBindRejectsNonPointer(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.Panics(t, func() { Bind(flags, testConfig{}) })
	require.Panics(t, func() { Bind(flags, new(int)) })
}
