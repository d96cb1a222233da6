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

// Package blockaddr classifies 32-bit logical block addresses (spec.md
// §3): the two sentinels and the META_POR validity category recovery
// uses to accept a block as belonging to the post-checkpoint main area.
package blockaddr

// Addr is a 32-bit logical block index into the main area.
type Addr uint32

const (
	// NullAddr marks an unallocated index slot.
	NullAddr Addr = 0
	// NewAddr marks a reserved-but-not-yet-written index slot.
	NewAddr Addr = 0xFFFFFFFF
)

// Category is an allocator-defined block validity class (spec.md §3).
// Recovery only ever accepts MetaPOR.
type Category int

const (
	// MetaPOR means "post-checkpoint main area": a block address a
	// recovered node page may legitimately point into.
	MetaPOR Category = iota
)

// Range describes the main area's valid block index span, supplied by the
// segment allocator (an out-of-scope collaborator, spec.md §1).
type Range struct {
	MainBlkaddr Addr
	MainBlocks  uint32
}

// IsValid reports whether addr falls within the given category for this
// range. Only MetaPOR is defined; other allocator categories are an
// out-of-scope collaborator's concern (spec.md §1) and are not modeled
// here.
func (r Range) IsValid(addr Addr, cat Category) bool {
	if cat != MetaPOR {
		return false
	}
	if addr < r.MainBlkaddr {
		return false
	}
	return uint32(addr-r.MainBlkaddr) < r.MainBlocks
}

// IsNull reports whether addr is the NULL_ADDR sentinel.
func (a Addr) IsNull() bool { return a == NullAddr }

// IsNew reports whether addr is the NEW_ADDR sentinel.
func (a Addr) IsNew() bool { return a == NewAddr }

// IsSentinel reports whether addr is NULL_ADDR or NEW_ADDR, i.e. not a
// real main-area block.
func (a Addr) IsSentinel() bool { return a.IsNull() || a.IsNew() }
