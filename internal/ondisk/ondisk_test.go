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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollforward/rollforward/internal/blockaddr"
)

func TestFooterRoundTrip(t *testing.T) {
	block := make([]byte, BlockSize)
	want := Footer{Ino: 7, Nid: 7, Flag: 0, CpVer: 42, NextBlkaddr: 1000}
	want.SetFsyncMark(true)

	require.NoError(t, EncodeFooter(block, want))
	got, err := DecodeFooter(block)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.True(t, got.IsInode())
	assert.True(t, got.IsFsyncMarked())
	assert.False(t, got.IsDentryMarked())
	assert.True(t, got.IsRecoverable(42))
	assert.False(t, got.IsRecoverable(41))
}

func TestFooterDecode_TooSmall(t *testing.T) {
	_, err := DecodeFooter(make([]byte, 4))
	assert.Error(t, err)
}

func TestRawInodeRoundTrip(t *testing.T) {
	body := make([]byte, InodeHeaderSize+len("hello.txt"))
	want := RawInode{
		Mode:       0o100644,
		Uid:        1000,
		Gid:        1000,
		Size:       4096,
		Atime:      Timespec{Sec: 100, Nsec: 1},
		Ctime:      Timespec{Sec: 200, Nsec: 2},
		Mtime:      Timespec{Sec: 300, Nsec: 3},
		Flags:      0,
		InlineBits: InlineDataExist | InlineExtraAttr,
		Advise:     2,
		ExtraIsize: 32,
		ProjID:     5,
		GcFailures: 1,
		Pino:       42,
		Name:       "hello.txt",
	}

	require.NoError(t, EncodeRawInode(body, want))
	got, err := DecodeRawInode(body, false)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.True(t, got.HasDataExist())
	assert.True(t, got.HasExtraAttr())
	assert.False(t, got.HasPinFile())
}

func TestRawInodeRoundTrip_WithTrailingHash(t *testing.T) {
	name := "casefolded-name"
	body := make([]byte, InodeHeaderSize+len(name)+4)
	want := RawInode{Mode: 0o40755, Name: name, HasHash: true, EncodedHash: 0xdeadbeef}

	require.NoError(t, EncodeRawInode(body, want))
	got, err := DecodeRawInode(body, true)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestDecodeRawInode_NamelenTooLarge(t *testing.T) {
	body := make([]byte, InodeHeaderSize)
	body[72] = 0xFF
	body[73] = 0xFF
	body[74] = 0xFF
	body[75] = 0xFF

	_, err := DecodeRawInode(body, false)
	assert.Error(t, err)
}

func TestDecodeRawInode_BodyTooShort(t *testing.T) {
	_, err := DecodeRawInode(make([]byte, 10), false)
	assert.Error(t, err)
}

func TestSummaryEntryRoundTrip(t *testing.T) {
	buf := make([]byte, SummaryEntrySize)
	want := SummaryEntry{Nid: 88, OfsInNode: 3, Version: 1}

	require.NoError(t, EncodeSummaryEntry(buf, want))
	got, err := DecodeSummaryEntry(buf)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestDecodeSummaryBlock(t *testing.T) {
	block := make([]byte, SummaryEntrySize*3)
	for i := 0; i < 3; i++ {
		require.NoError(t, EncodeSummaryEntry(block[i*SummaryEntrySize:], SummaryEntry{Nid: uint32(i + 1), OfsInNode: uint16(i), Version: 1}))
	}

	entries, err := DecodeSummaryBlock(block)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint32(2), entries[1].Nid)
}

func TestDecodeNodePage_DnodePage(t *testing.T) {
	raw := make([]byte, BlockSize)
	footer := Footer{Ino: 7, Nid: 9} // Nid != Ino: not an inode page
	require.NoError(t, EncodeFooter(raw, footer))

	np, inode, err := DecodeNodePage(raw, false)
	require.NoError(t, err)
	assert.Equal(t, RawInode{}, inode)
	assert.Equal(t, AddrsPerBlock, np.SlotCount())

	require.NoError(t, np.SetIndexSlot(0, blockaddr.Addr(123)))
	got, err := np.IndexSlot(0)
	require.NoError(t, err)
	assert.Equal(t, blockaddr.Addr(123), got)

	_, err = np.IndexSlot(np.SlotCount())
	assert.Error(t, err)
}

func TestDecodeNodePage_InodePage(t *testing.T) {
	raw := make([]byte, BlockSize)
	body := raw[:len(raw)-FooterSize]
	rawInode := RawInode{Mode: 0o100644, Name: "f"}
	require.NoError(t, EncodeRawInode(body, rawInode))
	require.NoError(t, EncodeFooter(raw, Footer{Ino: 5, Nid: 5}))

	np, inode, err := DecodeNodePage(raw, false)
	require.NoError(t, err)
	assert.Equal(t, "f", inode.Name)
	assert.Greater(t, np.SlotCount(), 0)

	require.NoError(t, np.SetIndexSlot(0, blockaddr.NewAddr))
	got, err := np.IndexSlot(0)
	require.NoError(t, err)
	assert.True(t, got.IsNew())
}

func TestDecodeNodePage_WrongSize(t *testing.T) {
	_, _, err := DecodeNodePage(make([]byte, 10), false)
	assert.Error(t, err)
}

func TestNodePage_FlushFooter(t *testing.T) {
	raw := make([]byte, BlockSize)
	require.NoError(t, EncodeFooter(raw, Footer{Ino: 1, Nid: 2}))
	np, _, err := DecodeNodePage(raw, false)
	require.NoError(t, err)

	np.Footer.SetDentryMark(true)
	require.NoError(t, np.FlushFooter())

	got, err := DecodeFooter(raw)
	require.NoError(t, err)
	assert.True(t, got.IsDentryMarked())
}
