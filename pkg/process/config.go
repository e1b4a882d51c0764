// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package process

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	yaml "gopkg.in/yaml.v2"
)

// SaveConfig writes the current flag values of cmd to outfile as yaml, with
// values in overrides taking precedence over flag values.
func SaveConfig(cmd *cobra.Command, outfile string, overrides map[string]interface{}) error {
	settings := map[string]interface{}{}

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" {
			return
		}
		settings[f.Name] = f.Value.String()
	})
	for key, value := range overrides {
		settings[key] = value
	}

	return atomicWriteYAML(outfile, settings)
}

func atomicWriteYAML(outfile string, settings map[string]interface{}) (err error) {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return Error.Wrap(err)
	}

	fh, err := os.CreateTemp(filepath.Dir(outfile), filepath.Base(outfile))
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		if err != nil {
			err = Error.Wrap(err)
			_ = fh.Close()
			_ = os.Remove(fh.Name())
		}
	}()

	if _, err := fh.Write(data); err != nil {
		return err
	}
	if err := fh.Chmod(0600); err != nil {
		return err
	}
	if err := fh.Close(); err != nil {
		return err
	}
	return os.Rename(fh.Name(), outfile)
}
