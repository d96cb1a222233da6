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

package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rollforward/rollforward/internal/blockdev"
	"github.com/rollforward/rollforward/internal/logger"
	"github.com/rollforward/rollforward/internal/monitor"
	"github.com/rollforward/rollforward/rollforward"
)

// needsRecoveryExitCode is returned by check when an unclean fsync
// chain is present but was left untouched, so scripts can branch on it
// without scraping stdout.
const needsRecoveryExitCode = 1

var checkCmd = &cobra.Command{
	Use:   "check <device>",
	Short: "Report whether a device carries an unreplayed fsync chain, without repairing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context())
	},
}

func runCheck(ctx context.Context) error {
	dev, err := blockdev.OpenReadOnly(string(Config.Recovery.Device))
	if err != nil {
		return err
	}
	defer dev.Close()

	reg := prometheus.NewRegistry()
	shutdown := monitor.SetupTracing(ctx, Config.Monitoring, monitor.NewRunID())
	if shutdown != nil {
		defer shutdown(ctx)
	}

	engine, cache, err := buildEngine(dev, reg)
	if err != nil {
		return err
	}

	out, err := engine.RecoverFsyncData(ctx, true)
	if destroyErr := rollforward.DestroyRecoveryCache(cache); destroyErr != nil {
		logger.Warnf("recovery cache teardown: %v", destroyErr)
	}
	if err != nil {
		return err
	}

	if out.NeedsRecovery {
		fmt.Printf("needs recovery: device carries an unreplayed fsync chain\n")
		return &exitCodeError{code: needsRecoveryExitCode, err: fmt.Errorf("device needs recovery")}
	}
	fmt.Printf("clean: no unreplayed fsync chain found\n")
	return nil
}
