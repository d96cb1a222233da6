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

package ondisk

import (
	"encoding/binary"
	"fmt"

	"github.com/rollforward/rollforward/internal/blockaddr"
)

// BlockSize is the fixed on-disk block size recovery operates on.
const BlockSize = 4096

// AddrsPerBlock is the number of data-index slots in a plain dnode page's
// body: every byte after the footer, four bytes per slot.
const AddrsPerBlock = (BlockSize - FooterSize) / 4

// NodePage wraps one decoded block-sized node page and exposes its
// data-index slots (spec.md §4.4, §6): the array of block addresses a
// dnode (direct or inline-in-inode) carries, each either NULL_ADDR,
// NEW_ADDR, or a main-area block address.
//
// On an inode page the index slots begin immediately after the raw
// inode's encoded bytes (f3fs inlines a dnode's worth of direct pointers
// into the inode body itself); on a plain dnode page they begin at
// offset 0. This split is a design decision the terse wire description
// in spec.md §6 leaves implicit.
type NodePage struct {
	Raw    []byte
	Footer Footer

	bodyOff int // byte offset of the first index slot within Raw
	count   int // number of index slots available
}

// DecodeNodePage decodes the footer and, when the page is an inode page,
// the raw inode, then locates the data-index slot region. trailingHash
// matches the argument to DecodeRawInode: true when the parent directory
// is casefolded+encrypted.
func DecodeNodePage(raw []byte, trailingHash bool) (*NodePage, RawInode, error) {
	if len(raw) != BlockSize {
		return nil, RawInode{}, fmt.Errorf("node page must be exactly %d bytes, got %d", BlockSize, len(raw))
	}
	footer, err := DecodeFooter(raw)
	if err != nil {
		return nil, RawInode{}, err
	}
	body := raw[:len(raw)-FooterSize]

	np := &NodePage{Raw: raw, Footer: footer}
	if !footer.IsInode() {
		np.bodyOff = 0
		np.count = len(body) / 4
		return np, RawInode{}, nil
	}

	inode, err := DecodeRawInode(body, trailingHash)
	if err != nil {
		return nil, RawInode{}, err
	}
	consumed := InodeHeaderSize + len(inode.Name)
	if inode.HasHash {
		consumed += 4
	}
	np.bodyOff = consumed
	if remaining := len(body) - consumed; remaining > 0 {
		np.count = remaining / 4
	}
	return np, inode, nil
}

// SlotCount returns the number of data-index slots this page carries.
func (p *NodePage) SlotCount() int { return p.count }

// IndexSlot reads the i-th data-index slot.
func (p *NodePage) IndexSlot(i int) (blockaddr.Addr, error) {
	if i < 0 || i >= p.count {
		return 0, fmt.Errorf("index slot %d out of range [0,%d)", i, p.count)
	}
	off := p.bodyOff + i*4
	return blockaddr.Addr(binary.LittleEndian.Uint32(p.Raw[off : off+4])), nil
}

// SetIndexSlot writes the i-th data-index slot. It leaves the page's
// footer bytes untouched; callers that mutate p.Footer (e.g. via
// SetFsyncMark) call FlushFooter to persist it.
func (p *NodePage) SetIndexSlot(i int, addr blockaddr.Addr) error {
	if i < 0 || i >= p.count {
		return fmt.Errorf("index slot %d out of range [0,%d)", i, p.count)
	}
	off := p.bodyOff + i*4
	binary.LittleEndian.PutUint32(p.Raw[off:off+4], uint32(addr))
	return nil
}

// FlushFooter re-encodes p.Footer into the page's trailing bytes. Callers
// that mutate p.Footer (fsync/dentry marks, next_blkaddr) must call this
// before the page is written back out.
func (p *NodePage) FlushFooter() error {
	return EncodeFooter(p.Raw, p.Footer)
}
