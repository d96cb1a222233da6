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

// Package fsyncinode is the in-memory fsync-inode table discovery
// populates and data repair drains (spec.md §4.2). An O(n) find over an
// ordered slice is acceptable: n is bounded by the number of files
// fsynced since the last checkpoint (spec.md §9's design note).
package fsyncinode

import (
	"errors"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/inode"
	"github.com/rollforward/rollforward/internal/quota"
	"github.com/rollforward/rollforward/internal/rferrors"
)

// Entry owns one inode handle for the duration of recovery, plus the
// bookkeeping discovery and repair hang off it.
type Entry struct {
	Handle *inode.Handle

	// FirstBlkaddr is the node block address at which this inode was
	// first added to the table. Data repair moves an entry whose
	// FirstBlkaddr equals the block it is currently processing onto a
	// tmp list so it isn't revisited (spec.md §4.4's last paragraph).
	FirstBlkaddr blockaddr.Addr
	// LastBlkaddr is the most recent node block seen for this inode
	// during discovery.
	LastBlkaddr blockaddr.Addr
	// LastDentryBlkaddr is the most recent inode page seen carrying a
	// new dentry for this inode, or its zero value if none.
	LastDentryBlkaddr blockaddr.Addr

	quotaInode bool
}

// Table is the fsync-inode table.
type Table struct {
	entries []*Entry
	inodes  *inode.Cache
	quota   quota.Manager
}

// New returns an empty table backed by the given inode cache and quota
// manager.
func New(inodes *inode.Cache, q quota.Manager) *Table {
	return &Table{inodes: inodes, quota: q}
}

// Find returns the entry for ino, or nil if none exists.
func (t *Table) Find(ino inode.ID) *Entry {
	for _, e := range t.entries {
		if e.Handle.ID() == ino {
			return e
		}
	}
	return nil
}

// Add acquires ino's inode handle (retrying on transient OutOfMemory per
// spec.md §4.2) and appends a fresh entry for it. quotaInode charges a
// quota inode allocation, for inodes discovery is materializing fresh
// from an inode page.
func (t *Table) Add(ino inode.ID, quotaInode bool) (*Entry, error) {
	h, err := t.inodes.Iget(ino)
	var oom *rferrors.OutOfMemoryError
	for err != nil && errors.As(err, &oom) {
		h, err = t.inodes.Iget(ino)
	}
	if err != nil {
		return nil, &rferrors.NotFoundError{Ino: ino, Err: err}
	}

	if err := t.quota.Initialize(ino); err != nil {
		t.inodes.Iput(ino)
		return nil, err
	}
	if quotaInode {
		if err := t.quota.AllocInode(ino); err != nil {
			t.inodes.Iput(ino)
			return nil, err
		}
	}

	e := &Entry{Handle: h, quotaInode: quotaInode}
	t.entries = append(t.entries, e)
	return e, nil
}

// Del removes entry from the table and releases its inode handle. If
// drop is true the inode is not to be recovered: its dirty bit is
// cleared so the handle reverts to its pre-fsync on-disk state on the
// next flush (spec.md §4.2, §7).
func (t *Table) Del(entry *Entry, drop bool) {
	if drop {
		entry.Handle.Mu.Lock()
		entry.Handle.MarkSynced()
		entry.Handle.Mu.Unlock()
	}
	t.inodes.Iput(entry.Handle.ID())

	for i, e := range t.entries {
		if e == entry {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// Detach removes entry from the table without releasing its handle,
// returning true if it was present. Used to migrate an entry onto a
// different table instance acting as a tmp list (spec.md §4.4's "move
// to tmp list so later code doesn't re-visit it").
func (t *Table) Detach(entry *Entry) bool {
	for i, e := range t.entries {
		if e == entry {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Absorb appends an already-owned entry directly, without acquiring a
// fresh inode handle. Pairs with Detach to migrate an entry between
// tables.
func (t *Table) Absorb(entry *Entry) {
	t.entries = append(t.entries, entry)
}

// Len reports the number of live entries.
func (t *Table) Len() int { return len(t.entries) }

// Entries returns the table's entries in insertion (traversal) order.
// Callers must not retain the returned slice past the next Add/Del.
func (t *Table) Entries() []*Entry { return t.entries }

// Destroy releases every remaining entry, dropping (clearing the dirty
// bit on) each one according to drop. Matches spec.md §4.8's
// unconditional teardown of inode_list/tmp_list.
func (t *Table) Destroy(drop bool) {
	for len(t.entries) > 0 {
		t.Del(t.entries[0], drop)
	}
}
