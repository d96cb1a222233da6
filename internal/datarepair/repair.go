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

// Package datarepair implements do_recover_data (spec.md §4.4): per
// recovered node page, reinstate xattr, inline data, then each
// data-index slot according to the five-way case analysis.
package datarepair

import (
	"errors"
	"fmt"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/collision"
	"github.com/rollforward/rollforward/internal/dnode"
	"github.com/rollforward/rollforward/internal/nat"
	"github.com/rollforward/rollforward/internal/ondisk"
	"github.com/rollforward/rollforward/internal/rferrors"
)

// InlineResult is the outcome of the inline-data recovery helper
// (spec.md §4.4 step 2).
type InlineResult int

const (
	InlineNone    InlineResult = iota // no inline data on this inode
	InlineHandled                     // inline data handled; no further index work
)

// Hooks are the page-kind-specific helpers do_recover_data delegates to,
// each grounded on a real on-disk detail out of this package's scope
// (xattr block layout, inline-data encoding, i_size bookkeeping).
type Hooks struct {
	RecoverInlineXattr   func(page *ondisk.NodePage) error
	RecoverXattrBlock    func(page *ondisk.NodePage) error
	RecoverInlineData    func(page *ondisk.NodePage, raw ondisk.RawInode) (InlineResult, error)
	IsXattrBlock         func(page *ondisk.NodePage) bool
	KeepISize            func(raw ondisk.RawInode) bool
	ExtendISize          func(ino uint32, newSize uint64) error
}

// Repairer drives do_recover_data for one node page at a time.
type Repairer struct {
	nl         nat.NodeLayer
	resolver   *collision.Resolver
	hooks      Hooks
	blockSize  uint64
	validate   func(blockaddr.Addr) bool
	retryBound uint32
}

// New returns a Repairer over the given node layer, collision resolver,
// and page-kind hooks. validate reports whether an address is
// META_POR-valid (spec.md §3); it gates every dest/src this Repairer
// touches before acting on it. retryBound caps case (d)'s
// reserve_new_block retry loop on OutOfMemory (spec.md §9's open
// question, cfg.RetryBound); zero means unbounded, matching the source.
func New(nl nat.NodeLayer, resolver *collision.Resolver, hooks Hooks, blockSize uint64, validate func(blockaddr.Addr) bool, retryBound uint32) *Repairer {
	return &Repairer{nl: nl, resolver: resolver, hooks: hooks, blockSize: blockSize, validate: validate, retryBound: retryBound}
}

// Result reports what RepairPage did, for the orchestrator's
// first-node-block bookkeeping (spec.md §4.4's last paragraph).
type Result struct {
	// Handled is true once this page has had its indices (or inline
	// data, or xattr) processed — i.e. the caller need not do anything
	// further with it.
	Handled bool
}

// RepairPage runs steps 1-3 of do_recover_data against one recovered
// node page belonging to ino. cur identifies the current inode/dnode
// context the collision resolver's fast paths can reuse.
func (r *Repairer) RepairPage(ino uint32, page *ondisk.NodePage, raw ondisk.RawInode, cur collision.Current) (Result, error) {
	// Step 1: xattr.
	if page.Footer.IsInode() {
		if err := r.hooks.RecoverInlineXattr(page); err != nil {
			return Result{}, err
		}
	} else if r.hooks.IsXattrBlock(page) {
		if err := r.hooks.RecoverXattrBlock(page); err != nil {
			return Result{}, err
		}
		return Result{Handled: true}, nil
	}

	// Step 2: inline data.
	if page.Footer.IsInode() {
		res, err := r.hooks.RecoverInlineData(page, raw)
		if err != nil {
			return Result{}, err
		}
		if res == InlineHandled {
			return Result{Handled: true}, nil
		}
	}

	// Step 3: indices.
	start, err := r.nl.StartBidxOfNode(0, ino)
	if err != nil {
		return Result{}, err
	}
	loc, err := dnode.Acquire(r.nl, ino, start, nat.AllocNode)
	if err != nil {
		return Result{}, err
	}
	defer loc.Close()

	if loc.Locator().Nid != page.Footer.Nid {
		// Sanity check per spec.md §4.4 step 3: the dnode locator found
		// by walking the index tree at this offset must resolve to the
		// same node the recovered page claims to be, or the chain is
		// inconsistent.
		return Result{}, &rferrors.CorruptFormatError{Reason: fmt.Sprintf("dnode nid mismatch: locator %d, page %d", loc.Locator().Nid, page.Footer.Nid)}
	}

	// Fetch node info for its nid (spec.md §4.4 step 3): case (e)'s
	// replace carries this node's version, so a later write naturally
	// supersedes an older one (spec.md §5).
	info, err := r.nl.GetNodeInfo(page.Footer.Nid)
	if err != nil {
		return Result{}, err
	}

	end := start + page.SlotCount()
	for i := start; i < end; i++ {
		dest, err := page.IndexSlot(i - start)
		if err != nil {
			return Result{}, err
		}
		if err := r.repairSlot(ino, raw, loc, i, dest, cur, info.Version); err != nil {
			return Result{}, err
		}
	}

	return Result{Handled: true}, nil
}

func (r *Repairer) repairSlot(ino uint32, raw ondisk.RawInode, loc *dnode.Scoped, bidx int, dest blockaddr.Addr, cur collision.Current, version uint8) error {
	srcAddr, err := loc.Locator().Page.IndexSlot(bidx - loc.Locator().StartIndex)
	if err != nil {
		return err
	}
	if err := ValidateAddr(dest, r.validate); err != nil {
		return err
	}
	if err := ValidateAddr(srcAddr, r.validate); err != nil {
		return err
	}

	switch {
	case dest == srcAddr:
		return nil // (a) identity
	case dest.IsNull():
		return r.nl.TruncateDataBlocksRange(loc.Locator(), 1) // (b)
	case dest.IsNew():
		if err := r.nl.TruncateDataBlocksRange(loc.Locator(), 1); err != nil {
			return err
		}
		return r.nl.ReserveNewBlock(loc.Locator()) // (c)
	}

	// dest is a valid address from here on: (d) reserves before falling
	// through to (e); (e) needs no extra step before the collision check.
	if srcAddr.IsNull() {
		if err := r.reserveWithRetry(loc); err != nil {
			return err
		}
	}

	if err := r.resolver.Resolve(cur, dest); err != nil {
		return err
	}
	if err := r.nl.ReplaceBlock(loc.Locator(), srcAddr, dest, version); err != nil {
		return err
	}

	if !r.hooks.KeepISize(raw) {
		newSize := uint64(bidx+1) * r.blockSize
		if raw.Size <= uint64(bidx)*r.blockSize {
			if err := r.hooks.ExtendISize(ino, newSize); err != nil {
				return err
			}
		}
	}
	return nil
}

// reserveWithRetry retries case (d)'s reserve_new_block on OutOfMemory,
// bounded by r.retryBound attempts (0 means unbounded, the source's
// behavior; spec.md §9's open question).
func (r *Repairer) reserveWithRetry(loc *dnode.Scoped) error {
	var attempts uint32
	for {
		err := r.nl.ReserveNewBlock(loc.Locator())
		if err == nil {
			return nil
		}
		var oom *rferrors.OutOfMemoryError
		if !errors.As(err, &oom) {
			return err
		}
		attempts++
		if r.retryBound != 0 && attempts >= r.retryBound {
			return &rferrors.OutOfMemoryError{Op: "reserve_new_block", Attempts: attempts}
		}
	}
}

// ValidateAddr enforces spec.md §4.4's "any dest/src not META_POR-valid
// (and not NULL/NEW) aborts with Corrupt".
func ValidateAddr(addr blockaddr.Addr, valid func(blockaddr.Addr) bool) error {
	if addr.IsSentinel() {
		return nil
	}
	if !valid(addr) {
		return &rferrors.CorruptFormatError{Reason: fmt.Sprintf("block address %d outside META_POR", addr)}
	}
	return nil
}
