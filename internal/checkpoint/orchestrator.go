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

// Package checkpoint implements f3fs_recover_fsync_data (spec.md §4.8):
// the orchestrator that drives discovery and data repair under the
// checkpoint lock, then tears down and, if anything changed, writes the
// final roll-forward checkpoint.
package checkpoint

import (
	"context"
	"sync"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/collision"
	"github.com/rollforward/rollforward/internal/datarepair"
	"github.com/rollforward/rollforward/internal/dirops"
	"github.com/rollforward/rollforward/internal/dirrepair"
	"github.com/rollforward/rollforward/internal/discovery"
	"github.com/rollforward/rollforward/internal/fsyncinode"
	"github.com/rollforward/rollforward/internal/inode"
	"github.com/rollforward/rollforward/internal/inoderepair"
	"github.com/rollforward/rollforward/internal/nat"
	"github.com/rollforward/rollforward/internal/quota"
	"github.com/rollforward/rollforward/internal/readahead"
	"github.com/rollforward/rollforward/internal/segment"
	"github.com/rollforward/rollforward/internal/zoned"
)

// CheckpointReason names the write_checkpoint cause recovery passes the
// superblock, distinct from a user-initiated sync or periodic
// checkpoint (spec.md §6's "write_checkpoint(reason)").
const CheckpointReason = "RECOVERY"

// Superblock is the superblock-level contract recovery consumes
// (spec.md §6): flags, read-only state, and the final checkpoint write.
// A real mount path implements this against its own superblock; this
// package never parses or lays out the superblock itself.
type Superblock interface {
	ReadOnly() bool
	SetReadOnly(bool)

	EnableQuotaFiles() error
	DisableQuotaFiles() error

	SetPORDoing()
	ClearPORDoing()
	SetIsRecovered()
	SetQuotaNeedRepair()

	WriteCheckpoint(reason string) error
}

// ScratchPageCache is the page-cache truncation contract recovery
// consumes at teardown (spec.md §4.8, §6): dropping the scratch pages
// recovery dirtied so a failed run never leaks into the next checkpoint.
type ScratchPageCache interface {
	// TruncateMetaPastMain drops cached META-mapping pages past
	// MAIN_BLKADDR, run unconditionally at teardown.
	TruncateMetaPastMain() error
	// TruncateNodeAndMetaFull drops every cached NODE and META page, run
	// only when recovery failed.
	TruncateNodeAndMetaFull() error
}

// Outcome is recover_fsync_data's return value (spec.md §6): 0/success
// folds into Recovered (false when there was nothing to do), check-only
// folds into NeedsRecovery.
type Outcome struct {
	// Recovered is true if data repair actually ran and a final
	// checkpoint was written.
	Recovered bool
	// NeedsRecovery is true only for a check-only run that found
	// fsync-marked blocks post-checkpoint.
	NeedsRecovery bool
}

// Backend bundles every out-of-scope collaborator recovery needs
// (spec.md §1's "out of scope" list, §6's inward contracts). A real
// filesystem driver constructs one against its own NAT, segment
// allocator, quota subsystem, and directory layer.
type Backend struct {
	Segment    segment.Allocator
	NodeLayer  nat.NodeLayer
	Quota      quota.Manager
	Dir        dirops.Directory
	Inodes     *inode.Cache
	Load       discovery.BlockLoader
	Superblock Superblock
	Scratch    ScratchPageCache

	// DirHash computes a directory's lookup hash for a name (spec.md
	// §4.6 step 2); sourced from the same out-of-scope directory layer
	// as Dir.
	DirHash dirrepair.HashFunc
	// Hooks are the page-kind-specific helpers do_recover_data
	// delegates to (spec.md §4.4 steps 1-2).
	Hooks datarepair.Hooks

	// BlockSize is the fixed on-disk block size, for i_size extension
	// arithmetic (spec.md §4.4).
	BlockSize uint64
	// CheckpointVersion is the just-mounted checkpoint's version, the
	// bound against which a page's recoverability is judged.
	CheckpointVersion uint64
	// MaxSteps bounds both chain walks at the number of free main-area
	// blocks (spec.md §4.3 step 6).
	MaxSteps uint32
	// RetryBound caps datarepair's case (d) reserve_new_block retry loop
	// on OutOfMemory (cfg.RetryBound, spec.md §9); zero means unbounded.
	RetryBound uint32
	// ReadAheadMin/Max bound discovery's adaptive prefetch window
	// (spec.md §4.3 step 7).
	ReadAheadMin, ReadAheadMax uint32

	// Prefetch is the discovery pass's read-ahead issuer; nil disables
	// prefetching.
	Prefetch *readahead.Prefetcher

	// Zoned enables the zoned-device write-pointer fix-up at teardown
	// (spec.md §4.8).
	Zoned bool
}

// Orchestrator drives recover_fsync_data against one Backend.
type Orchestrator struct {
	b Backend

	// cpLock serializes recovery against any other checkpoint writer
	// this process hosts. In the real FS this lock is filesystem-wide,
	// shared with every other checkpoint-taking path; here recovery is
	// the only such path, so the orchestrator owns the lock itself.
	cpLock sync.Mutex
}

// New returns an Orchestrator over the given Backend.
func New(b Backend) *Orchestrator {
	return &Orchestrator{b: b}
}

// RecoverFsyncData implements recover_fsync_data(sbi, check_only)
// (spec.md §4.8). checkOnly skips data repair entirely and reports
// whether recovery is needed instead of performing it.
func (o *Orchestrator) RecoverFsyncData(ctx context.Context, checkOnly bool) (Outcome, error) {
	wasReadOnly := o.b.Superblock.ReadOnly()
	if wasReadOnly {
		o.b.Superblock.SetReadOnly(false)
	}
	defer o.b.Superblock.SetReadOnly(wasReadOnly)

	if err := o.b.Superblock.EnableQuotaFiles(); err != nil {
		return Outcome{}, err
	}
	defer o.b.Superblock.DisableQuotaFiles()

	o.cpLock.Lock()
	o.b.Superblock.SetPORDoing()

	table := fsyncinode.New(o.b.Inodes, o.b.Quota)
	tmp := fsyncinode.New(o.b.Inodes, o.b.Quota)
	dirList := fsyncinode.New(o.b.Inodes, o.b.Quota)

	window := readahead.NewWindow(o.b.ReadAheadMin, o.b.ReadAheadMax)
	disc := discovery.New(o.b.Segment, o.b.NodeLayer, table, o.b.Load, o.b.Prefetch, window, o.b.CheckpointVersion, o.b.MaxSteps)

	needsRecovery, discErr := disc.Run(ctx, checkOnly)

	if discErr == nil && checkOnly {
		o.teardown(table, tmp, dirList, nil)
		o.cpLock.Unlock()
		return Outcome{NeedsRecovery: needsRecovery}, nil
	}

	var repairErr error
	needCheckpoint := false
	if discErr == nil && table.Len() > 0 {
		needCheckpoint = true
		resolver := collision.New(o.b.Segment, o.b.NodeLayer, o.b.Inodes, o.b.Quota)
		dataRepairer := datarepair.New(o.b.NodeLayer, resolver, o.b.Hooks, o.b.BlockSize, func(a blockaddr.Addr) bool {
			return o.b.Segment.IsValidBlkaddr(a, blockaddr.MetaPOR)
		}, o.b.RetryBound)
		dirRepairer := dirrepair.New(o.b.Dir, dirList, o.b.Quota, o.b.Inodes, o.b.DirHash)
		inodeRepairer := inoderepair.New(o.b.Quota)

		pass := newDataRepairer(o.b.NodeLayer, o.b.Segment, o.b.Load, table, tmp, inodeRepairer, dirRepairer, dataRepairer, o.b.CheckpointVersion, o.b.MaxSteps)
		repairErr = pass.run()
	}

	err := discErr
	if err == nil {
		err = repairErr
	}

	o.teardown(table, tmp, dirList, err)

	fixPointers := !checkOnly || !needsRecovery
	if err == nil && fixPointers {
		err = zoned.Fix(o.b.Segment, o.b.Zoned, wasReadOnly, checkOnly, needsRecovery)
	}
	if err == nil {
		o.b.Superblock.ClearPORDoing()
	}
	o.cpLock.Unlock()

	if needCheckpoint {
		o.b.Superblock.SetIsRecovered()
		if err == nil {
			err = o.b.Superblock.WriteCheckpoint(CheckpointReason)
		}
	}

	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Recovered: needCheckpoint}, nil
}

// teardown destroys both tables unconditionally and truncates the
// scratch page cache (spec.md §4.8's unconditional teardown block).
func (o *Orchestrator) teardown(table, tmp, dirList *fsyncinode.Table, err error) {
	drop := err != nil
	table.Destroy(drop)
	tmp.Destroy(drop)
	_ = o.b.Scratch.TruncateMetaPastMain()
	if drop {
		_ = o.b.Scratch.TruncateNodeAndMetaFull()
	}
	dirList.Destroy(drop)
}
