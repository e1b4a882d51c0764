// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package process provides process-wide configuration and logging plumbing
// for registry commands.
package process

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Exec runs a root cobra command with viper-backed configuration: flags may
// be supplied on the command line, through GCREGISTRY_* environment
// variables, or from a yaml config file.
func Exec(cmd *cobra.Command) {
	cfgFile := flag.String("config", "", "config file")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	cobra.OnInitialize(func() {
		vip := viper.New()
		_ = vip.BindPFlags(cmd.Flags())
		vip.SetEnvPrefix("gcregistry")
		vip.AutomaticEnv()
		if *cfgFile != "" {
			vip.SetConfigFile(*cfgFile)
			_ = vip.ReadInConfig()
		}

		// Propagate viper settings back into unchanged flags so that
		// cfgstruct-bound configs observe file and env values.
		for _, key := range vip.AllKeys() {
			if f := cmd.Flags().Lookup(key); f != nil && !f.Changed {
				_ = cmd.Flags().Set(key, vip.GetString(key))
			}
		}
	})

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Ctx returns a context that is cancelled when the process receives an
// interrupt or termination signal.
func Ctx(cmd *cobra.Command) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()

	return ctx
}
