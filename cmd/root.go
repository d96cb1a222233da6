// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd wires the rollforward CLI: a cobra root command plus
// "recover" and "check" subcommands, binding flags through viper exactly
// as the teacher's mount command does.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rollforward/rollforward/cfg"
	"github.com/rollforward/rollforward/internal/logger"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error

	// Config is the fully resolved configuration, populated by
	// initConfig before any subcommand's RunE runs.
	Config cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "rollforward",
	Short: "Roll-forward fsync recovery for a log-structured filesystem",
	Long: `rollforward replays the post-checkpoint fsync chain a log-structured
filesystem leaves behind after an unclean shutdown, reinstating every
fsync'd file's data, directory entry, and inode attributes without a
full journal replay.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		if len(args) > 0 {
			resolved, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving device path: %w", err)
			}
			Config.Recovery.Device = cfg.ResolvedPath(resolved)
		}
		if err := cfg.ValidateConfig(&Config); err != nil {
			return err
		}
		return logger.InitLogFile(Config.Logging)
	},
}

// exitCoder is implemented by errors that carry a specific process exit
// code (e.g. exitCodeError for a pending offline quota repair) rather
// than the default failure code.
type exitCoder interface {
	ExitCode() int
}

// Execute runs the root command, exiting the process with a non-zero
// status on any returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code := 1
		var ec exitCoder
		if errors.As(err, &ec) {
			code = ec.ExitCode()
		}
		os.Exit(code)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(checkCmd)
}

func initConfig() {
	Config = cfg.GetDefaultConfig()

	if cfgFile != "" {
		resolved, err := filepath.Abs(cfgFile)
		if err != nil {
			configFileErr = fmt.Errorf("resolving config file path: %w", err)
			return
		}
		viper.SetConfigFile(resolved)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			configFileErr = fmt.Errorf("reading config file: %w", err)
			return
		}
	}

	unmarshalErr = viper.Unmarshal(&Config, viper.DecodeHook(cfg.DecodeHook()))
}
