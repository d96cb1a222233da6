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

// GetDefaultLoggingConfig returns the default configuration that is to be used
// during application startup, before the provided configuration has been
// parsed.
func GetDefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Severity: INFO,
		Format:   "text",
		LogRotate: LogRotateConfig{
			BackupFileCount: 10,
			Compress:        true,
			MaxFileSizeMB:   512,
		},
	}
}

// GetDefaultRecoveryConfig returns the default recovery knobs.
func GetDefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		ReadAheadMinBlocks: DefaultReadAheadMinBlocks,
		ReadAheadMaxBlocks: DefaultReadAheadMaxBlocks,
		RetryBound:         DefaultRetryBound,
	}
}

// GetDefaultMonitoringConfig returns the default monitoring knobs:
// tracing and metrics both off.
func GetDefaultMonitoringConfig() MonitoringConfig {
	return MonitoringConfig{}
}

// GetDefaultConfig returns the full default Config.
func GetDefaultConfig() Config {
	return Config{
		Recovery:   GetDefaultRecoveryConfig(),
		Logging:    GetDefaultLoggingConfig(),
		Monitoring: GetDefaultMonitoringConfig(),
	}
}
