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

import "fmt"

func isValidLogRotateConfig(c *LogRotateConfig) error {
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("max-file-size-mb should be at least 1")
	}
	if c.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (retain all) or positive")
	}
	return nil
}

func isValidRecoveryConfig(c *RecoveryConfig) error {
	if c.Device == "" {
		return fmt.Errorf("recovery.device must be set")
	}
	if c.ReadAheadMinBlocks == 0 {
		return fmt.Errorf("read-ahead-min-blocks must be positive")
	}
	if c.ReadAheadMaxBlocks < c.ReadAheadMinBlocks {
		return fmt.Errorf("read-ahead-max-blocks (%d) must be >= read-ahead-min-blocks (%d)", c.ReadAheadMaxBlocks, c.ReadAheadMinBlocks)
	}
	return nil
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(c *Config) error {
	if err := isValidLogRotateConfig(&c.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}
	if err := isValidRecoveryConfig(&c.Recovery); err != nil {
		return fmt.Errorf("error parsing recovery config: %w", err)
	}
	return nil
}
