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

// Package nat declares the node-address-table / node-layer contract
// recovery consumes (spec.md §1, §6). The allocator that backs these
// methods is an out-of-scope collaborator: recovery only ever reads node
// pages and rewrites index slots inside pages it already holds, never
// allocates segments or touches the NAT's own on-disk layout.
package nat

import (
	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/ondisk"
)

// Info is the subset of a NAT entry recovery needs: which inode owns a
// node id, the node's version for summary comparisons, and the node's
// own offset within that inode's index tree (needed by the collision
// resolver to turn a summary's ofs_in_node into an absolute bidx,
// spec.md §4.5).
type Info struct {
	Ino     uint32
	Version uint8
	Ofs     uint16
}

// AllocMode selects whether GetDnodeOfData may create missing
// intermediate index blocks.
type AllocMode int

const (
	// LookupNode never allocates; a missing path returns an error.
	LookupNode AllocMode = iota
	// AllocNode creates any missing indirect node blocks on the path to
	// the requested offset.
	AllocNode
)

// Locator is a scoped handle onto one dnode page, positioned at a
// specific logical block offset within an inode (spec.md §3, §4.4).
// Callers must call PutDnode when done with it.
type Locator struct {
	Nid        uint32
	Ofs        uint16
	Page       *ondisk.NodePage
	StartIndex int // offset of this locator's dnode's index range within the inode
}

// NodeLayer is the node-address-table and node-page contract recovery
// consumes. An out-of-scope collaborator implements it against the real
// NAT and segment allocator; tests back it with an in-memory fake.
type NodeLayer interface {
	// GetNodePage pins and returns the page for nid.
	GetNodePage(nid uint32) (*ondisk.NodePage, error)
	// PutNodePage releases a page obtained from GetNodePage.
	PutNodePage(nid uint32)
	// GetNodeInfo resolves a nid to its owning inode and version.
	GetNodeInfo(nid uint32) (Info, error)

	// GetDnodeOfData locates the dnode page covering bidx within ino,
	// optionally allocating missing index paths.
	GetDnodeOfData(ino uint32, bidx int, mode AllocMode) (Locator, error)
	// PutDnode releases a Locator obtained from GetDnodeOfData.
	PutDnode(l Locator)

	// StartBidxOfNode returns the first logical block index a node page
	// at the given offset-in-inode covers.
	StartBidxOfNode(ofs uint16, ino uint32) (int, error)

	// TruncateDataBlocksRange invalidates n index slots starting at the
	// locator's current offset.
	TruncateDataBlocksRange(l Locator, n int) error
	// ReserveNewBlock reserves an unwritten (NEW_ADDR) slot at the
	// locator's current offset.
	ReserveNewBlock(l Locator) error
	// ReplaceBlock redirects the locator's current offset from src to
	// dest, stamping the given node version.
	ReplaceBlock(l Locator, src, dest blockaddr.Addr, version uint8) error

	// RecoverInodePage materializes an inode from a recovered inode page
	// when the NAT has no live entry for it yet.
	RecoverInodePage(page *ondisk.NodePage, raw ondisk.RawInode) error
}
