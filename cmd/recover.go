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
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/blockdev"
	"github.com/rollforward/rollforward/internal/inode"
	"github.com/rollforward/rollforward/internal/logger"
	"github.com/rollforward/rollforward/internal/monitor"
	"github.com/rollforward/rollforward/internal/ondisk"
	"github.com/rollforward/rollforward/internal/rferrors"
	"github.com/rollforward/rollforward/rollforward"
)

// quotaRepairExitCode is returned when recovery succeeded but flagged at
// least one inode for offline quota repair (spec.md §7, §D.4): distinct
// from both success (0) and failure (1) so automation can tell the
// difference without parsing logs.
const quotaRepairExitCode = 2

var recoverCmd = &cobra.Command{
	Use:   "recover <device>",
	Short: "Roll forward the post-checkpoint fsync chain and write a new checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecover(cmd.Context())
	},
}

func runRecover(ctx context.Context) error {
	dev, err := blockdev.Open(string(Config.Recovery.Device))
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

	out, err := engine.RecoverFsyncData(ctx, Config.Recovery.CheckOnly)
	if destroyErr := rollforward.DestroyRecoveryCache(cache); destroyErr != nil {
		logger.Warnf("recovery cache teardown: %v", destroyErr)
	}

	needsQuotaRepair := false
	if err != nil {
		var quotaErr *rferrors.QuotaRepairNeededError
		if errors.As(err, &quotaErr) {
			logger.Warnf("ino %d needs offline quota repair; continuing", quotaErr.Ino)
			needsQuotaRepair = true
		} else {
			return err
		}
	}

	if Config.Recovery.CheckOnly && out.NeedsRecovery {
		fmt.Printf("needs recovery: device carries an unreplayed fsync chain\n")
		return &exitCodeError{code: needsRecoveryExitCode, err: fmt.Errorf("device needs recovery")}
	}

	if out.Recovered {
		fmt.Printf("recovery complete: checkpoint written\n")
	} else {
		fmt.Printf("nothing to recover: device was already clean\n")
	}

	if needsQuotaRepair {
		return &exitCodeError{code: quotaRepairExitCode, err: fmt.Errorf("recovery finished but one or more inodes still need offline quota repair")}
	}
	return nil
}

func buildEngine(dev *blockdev.Device, reg prometheus.Registerer) (*rollforward.Engine, *inode.Cache, error) {
	collab, err := NewCollaborators(dev)
	if err != nil {
		return nil, nil, err
	}

	// An inode's own node page shares its nid with its ino (f3fs's own
	// invariant); nat.NodeLayer has no nid-to-block-address lookup, so
	// the handle's last-known address starts out NullAddr and is
	// corrected the first time this inode's page is rewritten.
	cache := rollforward.CreateRecoveryCache(func(ino uint32) (ondisk.RawInode, blockaddr.Addr, error) {
		page, err := collab.NodeLayer.GetNodePage(ino)
		if err != nil {
			return ondisk.RawInode{}, blockaddr.NullAddr, err
		}
		_, raw, err := ondisk.DecodeNodePage(page.Raw, false)
		return raw, blockaddr.NullAddr, err
	})

	b := rollforward.Backend{
		Segment:           collab.Segment,
		NodeLayer:         collab.NodeLayer,
		Quota:             collab.Quota,
		Dir:               collab.Dir,
		Inodes:            cache,
		Load:              func(addr blockaddr.Addr) ([]byte, error) { return dev.ReadBlock(addr) },
		Superblock:        collab.Superblock,
		Scratch:           collab.Scratch,
		DirHash:           collab.DirHash,
		Hooks:             collab.Hooks,
		BlockSize:         ondisk.BlockSize,
		CheckpointVersion: collab.CheckpointVersion,
		MaxSteps:          maxSteps(dev),
		ReadAheadMin:      Config.Recovery.ReadAheadMinBlocks,
		ReadAheadMax:      Config.Recovery.ReadAheadMaxBlocks,
		Zoned:             Config.Recovery.Zoned,
		RetryBound:        Config.Recovery.RetryBound,
	}

	return rollforward.NewEngine(b, reg), cache, nil
}

// maxSteps bounds both chain walks at the number of free main-area
// blocks (spec.md §4.3 step 6). Computing the real bound needs the
// segment allocator's own bookkeeping; a sane filesystem-wide ceiling
// stands in since collaborator.Segment exposes per-segment, not
// whole-device, counts.
func maxSteps(dev *blockdev.Device) uint32 {
	return 1 << 20
}

// exitCodeError carries a distinguished process exit code past cobra's
// plain error return, for outcomes (like a pending offline quota repair)
// that are not full failures but that scripts driving this CLI still
// need to tell apart from a clean run.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }
func (e *exitCodeError) ExitCode() int { return e.code }
