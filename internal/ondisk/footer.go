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

// Package ondisk decodes the on-disk structures recovery parses
// bit-exactly (spec.md §6): the node-block footer, the raw inode, and
// the summary entry. All multi-byte fields are little-endian.
package ondisk

import (
	"encoding/binary"
	"fmt"

	"github.com/rollforward/rollforward/internal/blockaddr"
)

// FooterSize is the byte length of the footer encoding below.
const FooterSize = 4 + 4 + 4 + 8 + 4

const (
	flagFsyncMark  uint32 = 1 << 0
	flagDentryMark uint32 = 1 << 1
)

// Footer is the trailing struct every node block carries (spec.md §3, §6):
// {ino, nid, flag (fsync/dentry bits), cp_ver, next_blkaddr}.
type Footer struct {
	Ino         uint32
	Nid         uint32
	Flag        uint32
	CpVer       uint64
	NextBlkaddr blockaddr.Addr
}

// DecodeFooter reads the last FooterSize bytes of a block-sized buffer.
func DecodeFooter(block []byte) (Footer, error) {
	if len(block) < FooterSize {
		return Footer{}, fmt.Errorf("block too small for footer: %d bytes", len(block))
	}
	b := block[len(block)-FooterSize:]
	return Footer{
		Ino:         binary.LittleEndian.Uint32(b[0:4]),
		Nid:         binary.LittleEndian.Uint32(b[4:8]),
		Flag:        binary.LittleEndian.Uint32(b[8:12]),
		CpVer:       binary.LittleEndian.Uint64(b[12:20]),
		NextBlkaddr: blockaddr.Addr(binary.LittleEndian.Uint32(b[20:24])),
	}, nil
}

// EncodeFooter writes f into the last FooterSize bytes of block.
func EncodeFooter(block []byte, f Footer) error {
	if len(block) < FooterSize {
		return fmt.Errorf("block too small for footer: %d bytes", len(block))
	}
	b := block[len(block)-FooterSize:]
	binary.LittleEndian.PutUint32(b[0:4], f.Ino)
	binary.LittleEndian.PutUint32(b[4:8], f.Nid)
	binary.LittleEndian.PutUint32(b[8:12], f.Flag)
	binary.LittleEndian.PutUint64(b[12:20], f.CpVer)
	binary.LittleEndian.PutUint32(b[20:24], uint32(f.NextBlkaddr))
	return nil
}

// IsInode reports whether this footer belongs to an inode page: in the
// on-disk format an inode page's node id equals its own inode number.
func (f Footer) IsInode() bool { return f.Nid == f.Ino }

// IsFsyncMarked reports the fsync_mark bit: this write participated in an
// fsync.
func (f Footer) IsFsyncMarked() bool { return f.Flag&flagFsyncMark != 0 }

// IsDentryMarked reports the dentry_mark bit: this write introduced or
// renamed a directory entry in the same transaction.
func (f Footer) IsDentryMarked() bool { return f.Flag&flagDentryMark != 0 }

// SetFsyncMark and SetDentryMark toggle the corresponding footer bits.
func (f *Footer) SetFsyncMark(v bool)  { f.setFlag(flagFsyncMark, v) }
func (f *Footer) SetDentryMark(v bool) { f.setFlag(flagDentryMark, v) }

func (f *Footer) setFlag(bit uint32, v bool) {
	if v {
		f.Flag |= bit
	} else {
		f.Flag &^= bit
	}
}

// IsRecoverable reports whether this footer's checkpoint version matches
// the checkpoint just mounted, i.e. whether this page post-dates the
// checkpoint and can still be rolled forward (spec.md §3).
func (f Footer) IsRecoverable(currentCpVer uint64) bool { return f.CpVer == currentCpVer }
