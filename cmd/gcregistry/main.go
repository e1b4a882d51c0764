// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/energytag/gcregistry/pkg/cfgstruct"
	"github.com/energytag/gcregistry/pkg/process"
	"github.com/energytag/gcregistry/registry"
	"github.com/energytag/gcregistry/registry/events/boltstream"
	"github.com/energytag/gcregistry/registry/registrydb"
)

var (
	rootCmd = &cobra.Command{
		Use:   "gcregistry",
		Short: "Granular certificate registry",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the registry",
		RunE:  cmdRun,
	}
	setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Create a config file with defaults",
		RunE:  cmdSetup,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Bring both stores to the latest schema",
		RunE:  cmdMigrate,
	}

	runCfg   registry.Config
	setupCfg registry.Config

	confDir string
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(migrateCmd)

	rootCmd.PersistentFlags().StringVar(&confDir, "config-dir", ".", "directory for configuration files")

	cfgstruct.Bind(runCmd.Flags(), &runCfg)
	cfgstruct.Bind(migrateCmd.Flags(), &runCfg)
	cfgstruct.Bind(setupCmd.Flags(), &setupCfg)
}

func openDB(log *zap.Logger) (registry.DB, error) {
	return registrydb.Open(log.Named("db"), runCfg.Database.WriteURL, runCfg.Database.ReadURL)
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := openDB(log)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.MigrateToLatest(ctx, log); err != nil {
		return err
	}

	stream, err := boltstream.Open(runCfg.Events.Path)
	if err != nil {
		return err
	}

	peer, err := registry.New(log, db, stream, runCfg)
	if err != nil {
		return errs.Combine(err, stream.Close())
	}
	defer func() { err = errs.Combine(err, peer.Close()) }()

	log.Info("registry starting", zap.String("address", runCfg.Web.Address))
	return peer.Run(ctx)
}

func cmdMigrate(cmd *cobra.Command, args []string) (err error) {
	ctx := process.Ctx(cmd)

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := openDB(log)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	return db.MigrateToLatest(ctx, log)
}

func cmdSetup(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(confDir, 0700); err != nil {
		return err
	}
	return process.SaveConfig(cmd, filepath.Join(confDir, "config.yaml"), nil)
}

func main() {
	process.Exec(rootCmd)
}
