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

// Package dnode provides a scoped handle onto the dnode locator
// (spec.md §3, §4.4, §4.5, §6) and the lock-ordering discipline the
// collision resolver needs when it must briefly hold a foreign inode's
// page alongside the current one.
package dnode

import (
	"github.com/rollforward/rollforward/internal/inode"
	"github.com/rollforward/rollforward/internal/nat"
)

// Scoped wraps a nat.Locator so release happens exactly once, on Close,
// regardless of which exit path a caller takes (spec.md §5's "scoped
// acquisition with guaranteed release").
type Scoped struct {
	nl     nat.NodeLayer
	loc    nat.Locator
	closed bool
}

// Acquire locates the dnode page covering bidx within ino.
func Acquire(nl nat.NodeLayer, ino uint32, bidx int, mode nat.AllocMode) (*Scoped, error) {
	loc, err := nl.GetDnodeOfData(ino, bidx, mode)
	if err != nil {
		return nil, err
	}
	return &Scoped{nl: nl, loc: loc}, nil
}

// Locator exposes the underlying nat.Locator for callers that need its
// fields directly (page, nid, ofs).
func (s *Scoped) Locator() nat.Locator { return s.loc }

// Close releases the dnode page. Safe to call multiple times.
func (s *Scoped) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true
	s.nl.PutDnode(s.loc)
}

// WithForeignInode implements the lock order spec.md §4.5/§9 requires:
// (current-inode-page < foreign-inode-page). It releases current's lock,
// runs fn while current is unlocked, then reacquires current's lock
// before returning — current's reference count is untouched throughout,
// only its lock is dropped and restored.
func WithForeignInode(current *inode.Handle, fn func() error) error {
	current.Mu.Unlock()
	defer current.Mu.Lock()
	return fn()
}
