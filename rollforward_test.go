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

package rollforward

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/datarepair"
	"github.com/rollforward/rollforward/internal/dirops"
	"github.com/rollforward/rollforward/internal/inode"
	"github.com/rollforward/rollforward/internal/nat"
	"github.com/rollforward/rollforward/internal/ondisk"
	"github.com/rollforward/rollforward/internal/segment"
)

type noopAllocator struct{}

func (noopAllocator) CursegOf(t segment.CursegType) (segment.Curseg, error) {
	return segment.Curseg{}, nil
}
func (noopAllocator) GetSumPage(segno uint32) ([]byte, error)         { return nil, nil }
func (noopAllocator) GetSegEntry(segno uint32) (segment.Entry, error) { return segment.Entry{}, nil }
func (noopAllocator) IsValidBlkaddr(addr blockaddr.Addr, cat blockaddr.Category) bool {
	return false
}
func (noopAllocator) SegnoOf(addr blockaddr.Addr) uint32    { return 0 }
func (noopAllocator) OffsetInSegOf(addr blockaddr.Addr) int { return 0 }
func (noopAllocator) MainBlocksPerSegment() uint32          { return 512 }
func (noopAllocator) FixCursegWritePointer() error          { return nil }

type noopNodeLayer struct{}

func (noopNodeLayer) GetNodePage(nid uint32) (*ondisk.NodePage, error) { return nil, nil }
func (noopNodeLayer) PutNodePage(nid uint32)                          {}
func (noopNodeLayer) GetNodeInfo(nid uint32) (nat.Info, error)        { return nat.Info{}, nil }
func (noopNodeLayer) GetDnodeOfData(ino uint32, bidx int, mode nat.AllocMode) (nat.Locator, error) {
	return nat.Locator{}, nil
}
func (noopNodeLayer) PutDnode(l nat.Locator)                              {}
func (noopNodeLayer) StartBidxOfNode(ofs uint16, ino uint32) (int, error) { return 0, nil }
func (noopNodeLayer) TruncateDataBlocksRange(l nat.Locator, n int) error  { return nil }
func (noopNodeLayer) ReserveNewBlock(l nat.Locator) error                 { return nil }
func (noopNodeLayer) ReplaceBlock(l nat.Locator, src, dest blockaddr.Addr, version uint8) error {
	return nil
}
func (noopNodeLayer) RecoverInodePage(page *ondisk.NodePage, raw ondisk.RawInode) error { return nil }

type noopQuota struct{}

func (noopQuota) Initialize(ino uint32) error                                     { return nil }
func (noopQuota) AllocInode(ino uint32) error                                      { return nil }
func (noopQuota) Transfer(ino uint32, oldUID, oldGID, newUID, newGID uint32) error { return nil }
func (noopQuota) TransferProject(ino uint32, oldProjID, newProjID uint32) error    { return nil }
func (noopQuota) AcquireOrphanInode(ino uint32) error                              { return nil }

type noopDir struct{}

func (noopDir) FindEntry(dir uint32, name string, hash uint32) (dirops.Entry, bool, error) {
	return dirops.Entry{}, false, nil
}
func (noopDir) AddDentry(dir uint32, name string, hash uint32, ino uint32, mode uint16) error {
	return nil
}
func (noopDir) DeleteEntry(entry dirops.Entry, dir uint32, einode uint32) error { return nil }

type fakeSuperblock struct {
	checkpoints []string
	porDoing    bool
}

func (s *fakeSuperblock) ReadOnly() bool                      { return false }
func (s *fakeSuperblock) SetReadOnly(bool)                    {}
func (s *fakeSuperblock) EnableQuotaFiles() error              { return nil }
func (s *fakeSuperblock) DisableQuotaFiles() error             { return nil }
func (s *fakeSuperblock) SetPORDoing()                         { s.porDoing = true }
func (s *fakeSuperblock) ClearPORDoing()                       { s.porDoing = false }
func (s *fakeSuperblock) SetIsRecovered()                      {}
func (s *fakeSuperblock) SetQuotaNeedRepair()                  {}
func (s *fakeSuperblock) WriteCheckpoint(reason string) error {
	s.checkpoints = append(s.checkpoints, reason)
	return nil
}

type fakeScratch struct{}

func (fakeScratch) TruncateMetaPastMain() error     { return nil }
func (fakeScratch) TruncateNodeAndMetaFull() error  { return nil }

func emptyBackend(sb *fakeSuperblock, cache *inode.Cache) Backend {
	return Backend{
		Segment:    noopAllocator{},
		NodeLayer:  noopNodeLayer{},
		Quota:      noopQuota{},
		Dir:        noopDir{},
		Inodes:     cache,
		Load:       func(addr blockaddr.Addr) ([]byte, error) { return nil, nil },
		Superblock: sb,
		Scratch:    fakeScratch{},
		DirHash:    func(name string) uint32 { return 0 },
		Hooks:      datarepair.Hooks{},
		BlockSize:  ondisk.BlockSize,
		MaxSteps:   64,
	}
}

func TestEngine_RecoverFsyncData_EmptyChainNoCheckpoint(t *testing.T) {
	cache := CreateRecoveryCache(func(ino inode.ID) (ondisk.RawInode, blockaddr.Addr, error) {
		return ondisk.RawInode{}, 0, nil
	})
	sb := &fakeSuperblock{}
	e := NewEngine(emptyBackend(sb, cache), nil)

	out, err := e.RecoverFsyncData(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, out.Recovered)
	assert.False(t, out.NeedsRecovery)
	assert.Empty(t, sb.checkpoints)

	require.NoError(t, DestroyRecoveryCache(cache))
}

func TestEngine_RecoverFsyncData_CheckOnlyReportsNeedsRecoveryFalse(t *testing.T) {
	cache := CreateRecoveryCache(func(ino inode.ID) (ondisk.RawInode, blockaddr.Addr, error) {
		return ondisk.RawInode{}, 0, nil
	})
	sb := &fakeSuperblock{}
	e := NewEngine(emptyBackend(sb, cache), nil)

	out, err := e.RecoverFsyncData(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, out.NeedsRecovery)
	assert.False(t, out.Recovered)
}

func TestDestroyRecoveryCache_ErrorsOnResidentHandle(t *testing.T) {
	cache := CreateRecoveryCache(func(ino inode.ID) (ondisk.RawInode, blockaddr.Addr, error) {
		return ondisk.RawInode{}, 0, nil
	})
	_, err := cache.Iget(7)
	require.NoError(t, err)

	assert.Error(t, DestroyRecoveryCache(cache))
}
