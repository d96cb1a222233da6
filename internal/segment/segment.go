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

// Package segment declares the segment/summary-area contract recovery
// consumes (spec.md §1, §6). The segment allocator itself — including
// zoned write-pointer bookkeeping — is an out-of-scope collaborator;
// recovery only reads summaries and asks the allocator to fix up a write
// pointer after a successful repair.
package segment

import (
	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/ondisk"
)

// CursegType names one of the current-segment cursors the allocator
// maintains. Recovery only ever reads the warm-node cursor to find
// where the post-checkpoint chain begins.
type CursegType int

const (
	CursegWarmNode CursegType = iota
	CursegHotData
	CursegWarmData
	CursegColdData
)

// Curseg describes one current-segment cursor.
type Curseg struct {
	Segno          uint32
	NextFreeBlkadr blockaddr.Addr
	SumBlk         []byte
}

// Entry is a segment's bookkeeping state: its validity bitmap over main
// area blocks within it.
type Entry struct {
	Segno        uint32
	ValidityBits []byte // bit i set iff (segno*blocksPerSeg + i) holds a valid block
}

// IsValid reports whether the given within-segment block offset is
// currently marked valid.
func (e Entry) IsValid(ofs int) bool {
	if ofs < 0 || ofs/8 >= len(e.ValidityBits) {
		return false
	}
	return e.ValidityBits[ofs/8]&(1<<uint(ofs%8)) != 0
}

// Allocator is the segment/summary-area contract recovery consumes.
type Allocator interface {
	// CursegOf returns the live in-memory cursor for the given type.
	CursegOf(t CursegType) (Curseg, error)
	// GetSumPage fetches the on-disk summary page for segno, for
	// segments that are not one of the live current-segment cursors.
	GetSumPage(segno uint32) ([]byte, error)
	// GetSegEntry fetches the validity bitmap for segno.
	GetSegEntry(segno uint32) (Entry, error)
	// IsValidBlkaddr reports whether addr belongs to the given
	// validity category (spec.md §3's META_POR).
	IsValidBlkaddr(addr blockaddr.Addr, cat blockaddr.Category) bool
	// SegnoOf and OffsetInSegOf convert a block address to its segment
	// number and in-segment block offset.
	SegnoOf(addr blockaddr.Addr) uint32
	OffsetInSegOf(addr blockaddr.Addr) int

	// MainBlocksPerSegment reports how many main-area blocks make up one
	// segment, needed to bound discovery's loop-detection step counter.
	MainBlocksPerSegment() uint32

	// FixCursegWritePointer reconciles a zoned device's hardware write
	// pointer with the allocator's logical cursor after a successful
	// recovery (spec.md §4.8); a no-op allocator for non-zoned devices.
	FixCursegWritePointer() error
}

// SummaryAt extracts the reverse-map entry for a block at the given
// within-segment offset from a decoded summary page.
func SummaryAt(sumBlk []byte, ofs int) (ondisk.SummaryEntry, error) {
	entries, err := ondisk.DecodeSummaryBlock(sumBlk)
	if err != nil {
		return ondisk.SummaryEntry{}, err
	}
	if ofs < 0 || ofs >= len(entries) {
		return ondisk.SummaryEntry{}, nil
	}
	return entries[ofs], nil
}
