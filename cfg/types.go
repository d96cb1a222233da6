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

// ResolvedPath is a filesystem path that has already been made absolute by
// a decode hook at config-parse time. Symlinks in it are not resolved.
type ResolvedPath string

// LogSeverity is one of TRACE/DEBUG/INFO/WARNING/ERROR/OFF, validated by a
// decode hook when the config is parsed from flags, env, or file.
type LogSeverity string

// LogRotateConfig mirrors the on-disk log rotation knobs lumberjack exposes.
type LogRotateConfig struct {
	MaxFileSizeMB   int  `yaml:"max-file-size-mb" mapstructure:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count" mapstructure:"backup-file-count"`
	Compress        bool `yaml:"compress" mapstructure:"compress"`
}

// LoggingConfig controls internal/logger's output.
type LoggingConfig struct {
	Severity  LogSeverity     `yaml:"severity" mapstructure:"severity"`
	Format    string          `yaml:"format" mapstructure:"format"`
	FilePath  ResolvedPath    `yaml:"file-path" mapstructure:"file-path"`
	LogRotate LogRotateConfig `yaml:"log-rotate" mapstructure:"log-rotate"`
}

// RecoveryConfig controls the roll-forward engine itself (§4.8, §9).
type RecoveryConfig struct {
	// Device is the backing block device or disk image path.
	Device ResolvedPath `yaml:"device" mapstructure:"device"`

	// CheckOnly runs discovery without mutating persistent state (§4.3,
	// outward surface in spec.md §6: recover_fsync_data(sbi, check_only)).
	CheckOnly bool `yaml:"check-only" mapstructure:"check-only"`

	// Zoned enables the zoned-device write-pointer fix-up at the end of
	// recovery (§4.8).
	Zoned bool `yaml:"zoned" mapstructure:"zoned"`

	// ReadAheadMinBlocks/ReadAheadMaxBlocks bound the discovery pass's
	// adaptive prefetch window (§4.3 step 7).
	ReadAheadMinBlocks uint32 `yaml:"read-ahead-min-blocks" mapstructure:"read-ahead-min-blocks"`
	ReadAheadMaxBlocks uint32 `yaml:"read-ahead-max-blocks" mapstructure:"read-ahead-max-blocks"`

	// RetryBound bounds case (d)'s reserve_new_block fault-injection retry
	// loop (§9 open question). Zero means unbounded, the source's behavior.
	RetryBound uint32 `yaml:"retry-bound" mapstructure:"retry-bound"`
}

// MonitoringConfig controls internal/monitor's tracing and metrics.
type MonitoringConfig struct {
	// TracingMode is one of "", "stdout": empty disables tracing.
	TracingMode string `yaml:"tracing-mode" mapstructure:"tracing-mode"`
	// MetricsAddr, if non-empty, serves Prometheus metrics on this
	// address (e.g. ":9090") for the duration of the recovery run.
	MetricsAddr string `yaml:"metrics-addr" mapstructure:"metrics-addr"`
}

// Config is the top-level configuration for the rollforward CLI, parsed
// from flags, environment variables, and an optional YAML config file.
type Config struct {
	Recovery   RecoveryConfig   `yaml:"recovery" mapstructure:"recovery"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}
