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

package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags registers the rollforward flag surface on flagSet and binds
// each flag into viper under the matching dotted config key, so that
// flags, environment variables, and an optional YAML file all resolve
// into the same Config via viper.Unmarshal.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.BoolP("check-only", "", false, "Discover fsync-recoverable inodes without mutating the device; exit 1 if recovery is needed.")
	if err = viper.BindPFlag("recovery.check-only", flagSet.Lookup("check-only")); err != nil {
		return err
	}

	flagSet.BoolP("zoned", "", false, "Treat the device as zoned and fix up curseg write pointers at the end of recovery.")
	if err = viper.BindPFlag("recovery.zoned", flagSet.Lookup("zoned")); err != nil {
		return err
	}

	flagSet.Uint32P("read-ahead-min-blocks", "", DefaultReadAheadMinBlocks, "Floor of the discovery pass's adaptive read-ahead window.")
	if err = viper.BindPFlag("recovery.read-ahead-min-blocks", flagSet.Lookup("read-ahead-min-blocks")); err != nil {
		return err
	}

	flagSet.Uint32P("read-ahead-max-blocks", "", DefaultReadAheadMaxBlocks, "Cap of the discovery pass's adaptive read-ahead window.")
	if err = viper.BindPFlag("recovery.read-ahead-max-blocks", flagSet.Lookup("read-ahead-max-blocks")); err != nil {
		return err
	}

	flagSet.Uint32P("retry-bound", "", DefaultRetryBound, "Bound on case (d)'s reserve_new_block fault-injection retry loop. 0 means unbounded.")
	if err = viper.BindPFlag("recovery.retry-bound", flagSet.Lookup("retry-bound")); err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", INFO, "One of TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "One of text, json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "Path to a log file. Empty means stderr.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.StringP("tracing-mode", "", "", "One of \"\" (disabled), \"stdout\".")
	if err = viper.BindPFlag("monitoring.tracing-mode", flagSet.Lookup("tracing-mode")); err != nil {
		return err
	}

	flagSet.StringP("metrics-addr", "", "", "Address to serve Prometheus metrics on for the run's duration. Empty disables metrics serving.")
	if err = viper.BindPFlag("monitoring.metrics-addr", flagSet.Lookup("metrics-addr")); err != nil {
		return err
	}

	return nil
}
