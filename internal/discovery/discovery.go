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

// Package discovery implements find_fsync_dnodes (spec.md §4.3): walk
// the post-checkpoint warm-node chain, populate the fsync-inode table,
// and detect corruption in the chain itself.
package discovery

import (
	"context"
	"errors"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/fsyncinode"
	"github.com/rollforward/rollforward/internal/nat"
	"github.com/rollforward/rollforward/internal/ondisk"
	"github.com/rollforward/rollforward/internal/readahead"
	"github.com/rollforward/rollforward/internal/rferrors"
	"github.com/rollforward/rollforward/internal/segment"
)

// BlockLoader reads the raw bytes of the node block at addr.
type BlockLoader func(addr blockaddr.Addr) ([]byte, error)

// Discoverer drives find_fsync_dnodes over a node chain.
type Discoverer struct {
	seg      segment.Allocator
	nl       nat.NodeLayer
	table    *fsyncinode.Table
	load     BlockLoader
	prefetch *readahead.Prefetcher
	window   *readahead.Window

	checkpointVersion uint64
	maxSteps          uint32
}

// New returns a Discoverer. checkpointVersion is the just-mounted
// checkpoint's version, against which a page's recoverability is judged
// (spec.md §3). maxSteps bounds the walk at the number of free
// main-area blocks (spec.md §4.3 step 6); exceeding it means a loop.
func New(seg segment.Allocator, nl nat.NodeLayer, table *fsyncinode.Table, load BlockLoader, prefetch *readahead.Prefetcher, window *readahead.Window, checkpointVersion uint64, maxSteps uint32) *Discoverer {
	return &Discoverer{
		seg:               seg,
		nl:                nl,
		table:             table,
		load:              load,
		prefetch:          prefetch,
		window:            window,
		checkpointVersion: checkpointVersion,
		maxSteps:          maxSteps,
	}
}

// Run walks the chain starting at the warm-node current segment's next
// free block. In check-only mode no inode page is materialized and no
// entry is added to the fsync-inode table — discovery only tracks which
// inos it would have recovered, to answer "needs recovery" without
// mutating any persistent state.
func (d *Discoverer) Run(ctx context.Context, checkOnly bool) (needsRecovery bool, err error) {
	cs, err := d.seg.CursegOf(segment.CursegWarmNode)
	if err != nil {
		return false, err
	}
	addr := cs.NextFreeBlkadr

	seen := map[uint32]bool{}
	var steps uint32

	for {
		if !d.seg.IsValidBlkaddr(addr, blockaddr.MetaPOR) {
			break // step 1: reached the end of the post-checkpoint chain
		}

		raw, err := d.load(addr)
		if err != nil {
			return false, err
		}
		page, rawInode, err := ondisk.DecodeNodePage(raw, false)
		if err != nil {
			return false, err
		}

		if !page.Footer.IsRecoverable(d.checkpointVersion) {
			break // step 2
		}

		next := page.Footer.NextBlkaddr

		if !page.Footer.IsFsyncMarked() {
			// step 3: skip straight to the advance step.
			if err := d.advance(ctx, addr, next, &steps); err != nil {
				return false, err
			}
			addr = next
			continue
		}

		ino := page.Footer.Ino
		if checkOnly {
			seen[ino] = true
		} else if d.table.Find(ino) == nil {
			if err := d.materialize(page, rawInode, ino); err != nil {
				if errors.As(err, new(*rferrors.NotFoundError)) {
					// scenario 8: data-only fsync node whose inode never
					// arrives; harmless drop, keep walking the chain.
				} else {
					return false, err
				}
			} else if entry := d.table.Find(ino); entry != nil {
				entry.FirstBlkaddr = addr
			}
		}

		if !checkOnly {
			if entry := d.table.Find(ino); entry != nil {
				entry.LastBlkaddr = addr
				if page.Footer.IsInode() && page.Footer.IsDentryMarked() {
					entry.LastDentryBlkaddr = addr
				}
			}
		}

		if err := d.advance(ctx, addr, next, &steps); err != nil {
			return false, err
		}
		addr = next
	}

	if checkOnly {
		return len(seen) > 0, nil
	}
	return d.table.Len() > 0, nil
}

// materialize adds ino to the fsync-inode table, first recovering its
// inode from page if this is a fresh inode page carrying a new dentry
// (spec.md §4.3 step 4).
func (d *Discoverer) materialize(page *ondisk.NodePage, rawInode ondisk.RawInode, ino uint32) error {
	if page.Footer.IsInode() && page.Footer.IsDentryMarked() {
		if err := d.nl.RecoverInodePage(page, rawInode); err != nil {
			return err
		}
		_, err := d.table.Add(ino, true)
		return err
	}
	_, err := d.table.Add(ino, false)
	return err
}

// advance applies loop detection (spec.md §4.3 step 6) and the
// read-ahead window adjustment (step 7).
func (d *Discoverer) advance(ctx context.Context, cur, next blockaddr.Addr, steps *uint32) error {
	if next == cur {
		return &rferrors.CorruptFormatError{Reason: "node chain points at itself"}
	}
	*steps++
	if *steps >= d.maxSteps {
		return &rferrors.CorruptFormatError{Reason: "node chain exceeds free main-area block count"}
	}

	if next == cur+1 {
		d.window.OnContiguous()
	} else {
		d.window.OnSegmentJump()
	}
	if d.prefetch != nil {
		d.prefetch.Issue(ctx, next, d.window.Size())
	}
	return nil
}
