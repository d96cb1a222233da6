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

// Package dirrepair implements recover_dentry (spec.md §4.6):
// reinstating a filename against its parent directory when a recovered
// inode page's dentry mark fires.
package dirrepair

import (
	"golang.org/x/text/cases"

	"github.com/rollforward/rollforward/internal/dirops"
	"github.com/rollforward/rollforward/internal/fsyncinode"
	"github.com/rollforward/rollforward/internal/inode"
	"github.com/rollforward/rollforward/internal/quota"
	"github.com/rollforward/rollforward/internal/rferrors"
)

// HashKind selects how a recovered filename's lookup hash is obtained
// (spec.md §4.6 step 2).
type HashKind int

const (
	// HashPlain computes the hash directly from the on-disk name.
	HashPlain HashKind = iota
	// HashCasefoldedClear case-folds the name before hashing; recovery
	// itself still matches case-sensitively.
	HashCasefoldedClear
	// HashCasefoldedEncrypted reads a precomputed hash stored on-disk
	// immediately after the name.
	HashCasefoldedEncrypted
)

// HashFunc computes a directory-entry lookup hash over a name.
type HashFunc func(name string) uint32

// Repairer drives recover_dentry against a directory collaborator and
// the shared fsync-inode table.
type Repairer struct {
	dirs   dirops.Directory
	table  *fsyncinode.Table
	quota  quota.Manager
	inodes *inode.Cache
	hash   HashFunc
	fold   cases.Caser
}

// New returns a Repairer. hash computes the directory's on-disk lookup
// hash for a (possibly case-folded) name. inodes is the same cache the
// fsync-inode table is backed by; the colliding-entry path opens the
// foreign inode it evicts directly against it rather than through the
// table, since that inode is never added to the table itself.
func New(dirs dirops.Directory, table *fsyncinode.Table, q quota.Manager, inodes *inode.Cache, hash HashFunc) *Repairer {
	return &Repairer{
		dirs:   dirs,
		table:  table,
		quota:  q,
		inodes: inodes,
		hash:   hash,
		fold:   cases.Fold(),
	}
}

// Recover reinstates name → childIno under parentIno, per spec.md §4.6.
// trailingHash is used only when kind is HashCasefoldedEncrypted.
func (r *Repairer) Recover(parentIno uint32, kind HashKind, name string, trailingHash uint32, childIno uint32, mode uint16) error {
	if r.table.Find(parentIno) == nil {
		if _, err := r.table.Add(parentIno, false); err != nil {
			return err
		}
	}

	hash := r.computeHash(kind, name, trailingHash)

	for {
		entry, ok, err := r.dirs.FindEntry(parentIno, name, hash)
		if err != nil {
			return err
		}
		if !ok {
			return r.addWithRetry(parentIno, name, hash, childIno, mode)
		}
		if entry.Ino == childIno {
			return nil
		}

		// Open the colliding inode, initialize its quota, acquire an
		// orphan-inode slot for it, delete the colliding entry, then drop
		// the foreign inode (spec.md §4.6 step 3's full sequence).
		if _, err := r.inodes.Iget(entry.Ino); err != nil {
			return err
		}
		if err := r.quota.Initialize(entry.Ino); err != nil {
			r.inodes.Iput(entry.Ino)
			return err
		}
		if err := r.quota.AcquireOrphanInode(entry.Ino); err != nil {
			r.inodes.Iput(entry.Ino)
			return err
		}
		if err := r.dirs.DeleteEntry(entry, parentIno, entry.Ino); err != nil {
			r.inodes.Iput(entry.Ino)
			return err
		}
		r.inodes.Iput(entry.Ino)
		// Loop: retry the lookup now that the collision is gone.
	}
}

func (r *Repairer) computeHash(kind HashKind, name string, trailingHash uint32) uint32 {
	switch kind {
	case HashCasefoldedEncrypted:
		return trailingHash
	case HashCasefoldedClear:
		return r.hash(r.fold.String(name))
	default:
		return r.hash(name)
	}
}

func (r *Repairer) addWithRetry(parentIno uint32, name string, hash uint32, childIno uint32, mode uint16) error {
	for {
		err := r.dirs.AddDentry(parentIno, name, hash, childIno, mode)
		if err == nil {
			return nil
		}
		var oom *rferrors.OutOfMemoryError
		if !isOutOfMemory(err, &oom) {
			return err
		}
		// OutOfMemory on add is retried indefinitely (spec.md §4.6 step 4).
	}
}

func isOutOfMemory(err error, target **rferrors.OutOfMemoryError) bool {
	oom, ok := err.(*rferrors.OutOfMemoryError)
	if ok {
		*target = oom
	}
	return ok
}
