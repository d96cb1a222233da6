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

// Package collision implements check_index_in_prev_nodes (spec.md
// §4.5): before a data-index repair redirects a logical index to dest,
// find and detach any older index elsewhere that still points at it.
package collision

import (
	"fmt"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/dnode"
	"github.com/rollforward/rollforward/internal/inode"
	"github.com/rollforward/rollforward/internal/nat"
	"github.com/rollforward/rollforward/internal/ondisk"
	"github.com/rollforward/rollforward/internal/quota"
	"github.com/rollforward/rollforward/internal/segment"
)

// Resolver holds the collaborators check_index_in_prev_nodes needs.
type Resolver struct {
	seg    segment.Allocator
	nl     nat.NodeLayer
	inodes *inode.Cache
	quota  quota.Manager
}

// New returns a Resolver over the given collaborators.
func New(seg segment.Allocator, nl nat.NodeLayer, inodes *inode.Cache, q quota.Manager) *Resolver {
	return &Resolver{seg: seg, nl: nl, inodes: inodes, quota: q}
}

// Current bundles the node page recovery is currently repairing, so the
// resolver's fast paths (spec.md §4.5 step 3) can reuse it instead of
// fetching it again.
type Current struct {
	Inode      *inode.Handle
	InodeNid   uint32 // == Inode.ID() for an inode page; present for clarity at call sites
	DnodeNid   uint32
	InodePage  *nat.Locator // nil if the current node page is not the inode page
	DnodePage  *nat.Locator // nil if the current node page is not a plain dnode page
}

// Resolve detaches any pre-existing index that already points at dest,
// if one is found via the segment summary, before the caller installs
// dest as the new index (spec.md §4.5).
func (r *Resolver) Resolve(cur Current, dest blockaddr.Addr) error {
	segno := r.seg.SegnoOf(dest)
	ofs := r.seg.OffsetInSegOf(dest)

	entry, err := r.seg.GetSegEntry(segno)
	if err != nil {
		return err
	}
	if !entry.IsValid(ofs) {
		return nil // step 1: not marked valid, no collision
	}

	sum, err := r.summaryFor(segno, ofs)
	if err != nil {
		return err
	}

	// Step 3 fast paths.
	if cur.InodePage != nil && sum.Nid == cur.InodeNid {
		return r.truncate(*cur.InodePage, int(sum.OfsInNode))
	}
	if cur.DnodePage != nil && sum.Nid == cur.DnodeNid {
		return r.truncate(*cur.DnodePage, int(sum.OfsInNode))
	}

	// Step 4: slow path.
	info, err := r.nl.GetNodeInfo(sum.Nid)
	if err != nil {
		return err
	}

	lookupIno := cur.Inode.ID()
	var foreign *inode.Handle
	if info.Ino != cur.Inode.ID() {
		if err := dnode.WithForeignInode(cur.Inode, func() error {
			h, err := r.inodes.Iget(info.Ino)
			if err != nil {
				return err
			}
			if err := r.quota.Initialize(info.Ino); err != nil {
				r.inodes.Iput(info.Ino)
				return err
			}
			foreign = h
			return nil
		}); err != nil {
			return err
		}
		defer r.inodes.Iput(info.Ino)
		lookupIno = info.Ino
	}

	start, err := r.nl.StartBidxOfNode(info.Ofs, lookupIno)
	if err != nil {
		return err
	}
	bidx := start + int(sum.OfsInNode)

	loc, err := dnode.Acquire(r.nl, lookupIno, bidx, nat.LookupNode)
	if err != nil {
		return err // not found is not fatal to the caller's overall repair; let them decide
	}
	defer loc.Close()

	addr, err := loc.Locator().Page.IndexSlot(bidx - loc.Locator().StartIndex)
	if err != nil {
		return err
	}
	if addr == dest {
		return r.truncate(loc.Locator(), bidx-loc.Locator().StartIndex)
	}
	_ = foreign
	return nil
}

func (r *Resolver) summaryFor(segno uint32, ofs int) (ondisk.SummaryEntry, error) {
	for _, t := range []segment.CursegType{segment.CursegHotData, segment.CursegWarmData, segment.CursegColdData} {
		cs, err := r.seg.CursegOf(t)
		if err != nil {
			return ondisk.SummaryEntry{}, err
		}
		if cs.Segno == segno {
			return segment.SummaryAt(cs.SumBlk, ofs)
		}
	}
	blk, err := r.seg.GetSumPage(segno)
	if err != nil {
		return ondisk.SummaryEntry{}, err
	}
	return segment.SummaryAt(blk, ofs)
}

func (r *Resolver) truncate(loc nat.Locator, ofsInNode int) error {
	if loc.Page == nil {
		return fmt.Errorf("collision: locator has no page to truncate at ofs %d", ofsInNode)
	}
	loc.Ofs = uint16(ofsInNode)
	return r.nl.TruncateDataBlocksRange(loc, 1)
}
