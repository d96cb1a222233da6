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

package datarepair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/collision"
	"github.com/rollforward/rollforward/internal/inode"
	"github.com/rollforward/rollforward/internal/nat"
	"github.com/rollforward/rollforward/internal/ondisk"
	"github.com/rollforward/rollforward/internal/rferrors"
	"github.com/rollforward/rollforward/internal/segment"
)

type fakeNodeLayer struct {
	slots map[int]blockaddr.Addr
	page  *ondisk.NodePage
	nid   uint32

	truncated []int
	reserved  []int
	replaced  map[int][2]blockaddr.Addr

	// reserveFailures counts down on each ReserveNewBlock call, returning
	// an OutOfMemoryError until it reaches zero.
	reserveFailures int
}

func newFakeNodeLayer(nid uint32, page *ondisk.NodePage) *fakeNodeLayer {
	return &fakeNodeLayer{nid: nid, page: page, slots: map[int]blockaddr.Addr{}, replaced: map[int][2]blockaddr.Addr{}}
}

func (f *fakeNodeLayer) GetNodePage(nid uint32) (*ondisk.NodePage, error) { return f.page, nil }
func (f *fakeNodeLayer) PutNodePage(nid uint32)                          {}
func (f *fakeNodeLayer) GetNodeInfo(nid uint32) (nat.Info, error)        { return nat.Info{Ino: 1}, nil }
func (f *fakeNodeLayer) GetDnodeOfData(ino uint32, bidx int, mode nat.AllocMode) (nat.Locator, error) {
	return nat.Locator{Nid: f.nid, Page: f.page, StartIndex: 0}, nil
}
func (f *fakeNodeLayer) PutDnode(l nat.Locator) {}
func (f *fakeNodeLayer) StartBidxOfNode(ofs uint16, ino uint32) (int, error) { return 0, nil }
func (f *fakeNodeLayer) TruncateDataBlocksRange(l nat.Locator, n int) error {
	f.truncated = append(f.truncated, n)
	return nil
}
func (f *fakeNodeLayer) ReserveNewBlock(l nat.Locator) error {
	if f.reserveFailures > 0 {
		f.reserveFailures--
		return &rferrors.OutOfMemoryError{Op: "reserve_new_block"}
	}
	f.reserved = append(f.reserved, 1)
	return nil
}
func (f *fakeNodeLayer) ReplaceBlock(l nat.Locator, src, dest blockaddr.Addr, version uint8) error {
	f.replaced[len(f.replaced)] = [2]blockaddr.Addr{src, dest}
	return nil
}
func (f *fakeNodeLayer) RecoverInodePage(page *ondisk.NodePage, raw ondisk.RawInode) error {
	return nil
}

type noopAllocator struct{}

func (noopAllocator) CursegOf(t segment.CursegType) (segment.Curseg, error) { return segment.Curseg{}, nil }
func (noopAllocator) GetSumPage(segno uint32) ([]byte, error)               { return nil, nil }
func (noopAllocator) GetSegEntry(segno uint32) (segment.Entry, error)       { return segment.Entry{}, nil }
func (noopAllocator) IsValidBlkaddr(addr blockaddr.Addr, cat blockaddr.Category) bool { return true }
func (noopAllocator) SegnoOf(addr blockaddr.Addr) uint32                    { return 0 }
func (noopAllocator) OffsetInSegOf(addr blockaddr.Addr) int                 { return 0 }
func (noopAllocator) MainBlocksPerSegment() uint32                          { return 512 }
func (noopAllocator) FixCursegWritePointer() error                          { return nil }

func testPage(t *testing.T, nid uint32, slotValues []blockaddr.Addr) *ondisk.NodePage {
	t.Helper()
	raw := make([]byte, ondisk.BlockSize)
	require.NoError(t, ondisk.EncodeFooter(raw, ondisk.Footer{Ino: 0, Nid: nid}))
	page, _, err := ondisk.DecodeNodePage(raw, false)
	require.NoError(t, err)
	for i, v := range slotValues {
		require.NoError(t, page.SetIndexSlot(i, v))
	}
	return page
}

func newTestRepairer(t *testing.T, recoveredSlots []blockaddr.Addr) (*Repairer, *fakeNodeLayer) {
	t.Helper()
	return newTestRepairerWithRetryBound(t, recoveredSlots, 0)
}

func newTestRepairerWithRetryBound(t *testing.T, recoveredSlots []blockaddr.Addr, retryBound uint32) (*Repairer, *fakeNodeLayer) {
	t.Helper()
	liveDnodePage := testPage(t, 42, make([]blockaddr.Addr, len(recoveredSlots)))
	nl := newFakeNodeLayer(42, liveDnodePage)

	cache := inode.NewCache(func(ino inode.ID) (ondisk.RawInode, blockaddr.Addr, error) {
		return ondisk.RawInode{}, 0, nil
	})
	resolver := collision.New(noopAllocator{}, nl, cache, nil)

	hooks := Hooks{
		RecoverInlineXattr: func(p *ondisk.NodePage) error { return nil },
		RecoverXattrBlock:  func(p *ondisk.NodePage) error { return nil },
		RecoverInlineData:  func(p *ondisk.NodePage, r ondisk.RawInode) (InlineResult, error) { return InlineNone, nil },
		IsXattrBlock:       func(p *ondisk.NodePage) bool { return false },
		KeepISize:          func(r ondisk.RawInode) bool { return false },
		ExtendISize:        func(ino uint32, size uint64) error { return nil },
	}
	return New(nl, resolver, hooks, ondisk.BlockSize, func(blockaddr.Addr) bool { return true }, retryBound), nl
}

func TestRepairPage_IdentityCaseSkipsTruncateAndReplace(t *testing.T) {
	r, nl := newTestRepairer(t, []blockaddr.Addr{0})
	recovered := testPage(t, 42, []blockaddr.Addr{0}) // dest == src == NULL_ADDR

	_, err := r.RepairPage(1, recovered, ondisk.RawInode{}, collision.Current{})
	require.NoError(t, err)
	assert.Empty(t, nl.truncated)
	assert.Empty(t, nl.replaced)
}

func TestRepairPage_NullDestTruncates(t *testing.T) {
	r, nl := newTestRepairer(t, []blockaddr.Addr{200})
	// live dnode currently has 200 at slot 0; recovered page says NULL.
	nl.page.SetIndexSlot(0, blockaddr.Addr(200))
	recovered := testPage(t, 42, []blockaddr.Addr{blockaddr.NullAddr})

	_, err := r.RepairPage(1, recovered, ondisk.RawInode{}, collision.Current{})
	require.NoError(t, err)
	assert.Len(t, nl.truncated, 1)
}

func TestRepairPage_NewDestReservesAfterTruncate(t *testing.T) {
	r, nl := newTestRepairer(t, []blockaddr.Addr{200})
	nl.page.SetIndexSlot(0, blockaddr.Addr(200))
	recovered := testPage(t, 42, []blockaddr.Addr{blockaddr.NewAddr})

	_, err := r.RepairPage(1, recovered, ondisk.RawInode{}, collision.Current{})
	require.NoError(t, err)
	assert.Len(t, nl.truncated, 1)
	assert.Len(t, nl.reserved, 1)
}

func TestRepairPage_ValidDestFromNullSrcReservesThenReplaces(t *testing.T) {
	r, nl := newTestRepairer(t, []blockaddr.Addr{0})
	recovered := testPage(t, 42, []blockaddr.Addr{blockaddr.Addr(300)})

	_, err := r.RepairPage(1, recovered, ondisk.RawInode{}, collision.Current{})
	require.NoError(t, err)
	assert.Len(t, nl.reserved, 1)
	assert.Len(t, nl.replaced, 1)
}

func TestRepairPage_NidMismatchIsCorrupt(t *testing.T) {
	r, _ := newTestRepairer(t, []blockaddr.Addr{0})
	recovered := testPage(t, 99, []blockaddr.Addr{0}) // different nid than live dnode's 42

	_, err := r.RepairPage(1, recovered, ondisk.RawInode{}, collision.Current{})
	assert.Error(t, err)
}

func TestRepairPage_ReserveRetriesOnOutOfMemoryThenSucceeds(t *testing.T) {
	r, nl := newTestRepairerWithRetryBound(t, []blockaddr.Addr{0}, 5)
	nl.reserveFailures = 2
	recovered := testPage(t, 42, []blockaddr.Addr{blockaddr.Addr(300)})

	_, err := r.RepairPage(1, recovered, ondisk.RawInode{}, collision.Current{})
	require.NoError(t, err)
	assert.Len(t, nl.reserved, 1)
	assert.Len(t, nl.replaced, 1)
}

func TestRepairPage_ReserveExhaustsBoundedRetry(t *testing.T) {
	r, nl := newTestRepairerWithRetryBound(t, []blockaddr.Addr{0}, 3)
	nl.reserveFailures = 10
	recovered := testPage(t, 42, []blockaddr.Addr{blockaddr.Addr(300)})

	_, err := r.RepairPage(1, recovered, ondisk.RawInode{}, collision.Current{})
	var oom *rferrors.OutOfMemoryError
	require.ErrorAs(t, err, &oom)
	assert.Equal(t, uint32(3), oom.Attempts)
	assert.Empty(t, nl.reserved)
}

func TestRepairPage_DestOutsideMetaPORIsCorrupt(t *testing.T) {
	r, _ := newTestRepairer(t, []blockaddr.Addr{0})
	r.validate = func(blockaddr.Addr) bool { return false }
	recovered := testPage(t, 42, []blockaddr.Addr{blockaddr.Addr(300)})

	_, err := r.RepairPage(1, recovered, ondisk.RawInode{}, collision.Current{})
	assert.Error(t, err)
}
