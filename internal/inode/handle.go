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

// Package inode holds the in-memory handle recovery keeps for an inode
// under repair (spec.md §4.2, §6: "iget_retry", "iput", "mark dirty /
// mark synced") and the cache of live handles that backs it.
package inode

import (
	"github.com/jacobsa/syncutil"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/ondisk"
)

// ID is an inode number.
type ID = uint32

// Handle is the in-memory view of one inode while recovery repairs it:
// its decoded raw inode, the node-page address it was last read from,
// and whether a repair has modified it since.
type Handle struct {
	// Mu guards Raw and Dirty. SHARED_LOCKS_REQUIRED(Mu) for reads,
	// EXCLUSIVE_LOCKS_REQUIRED(Mu) for SetRaw/MarkSynced.
	Mu syncutil.InvariantMutex

	ino   ID
	addr  blockaddr.Addr
	raw   ondisk.RawInode
	dirty bool
}

func newHandle(ino ID, raw ondisk.RawInode, addr blockaddr.Addr) *Handle {
	h := &Handle{ino: ino, raw: raw, addr: addr}
	h.Mu = syncutil.NewInvariantMutex(h.checkInvariants)
	return h
}

func (h *Handle) checkInvariants() {
	if h.ino == 0 {
		panic("inode: illegal inode number 0")
	}
}

// ID returns the inode number. Does not require Mu.
func (h *Handle) ID() ID { return h.ino }

// Addr returns the node-page address this handle's raw inode was last
// read from or written to. SHARED_LOCKS_REQUIRED(h.Mu)
func (h *Handle) Addr() blockaddr.Addr { return h.addr }

// Raw returns the decoded raw inode. SHARED_LOCKS_REQUIRED(h.Mu)
func (h *Handle) Raw() ondisk.RawInode { return h.raw }

// SetRaw replaces the decoded raw inode and the node-page address it now
// lives at, and marks the handle dirty. EXCLUSIVE_LOCKS_REQUIRED(h.Mu)
func (h *Handle) SetRaw(r ondisk.RawInode, addr blockaddr.Addr) {
	h.raw = r
	h.addr = addr
	h.dirty = true
}

// IsDirty reports whether a repair has modified this handle since it was
// last marked synced. SHARED_LOCKS_REQUIRED(h.Mu)
func (h *Handle) IsDirty() bool { return h.dirty }

// MarkSynced clears the dirty bit once the repaired inode has been
// written back and checkpointed. EXCLUSIVE_LOCKS_REQUIRED(h.Mu)
func (h *Handle) MarkSynced() { h.dirty = false }
