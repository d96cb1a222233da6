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
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/rollforward/rollforward/internal/rferrors"
)

// InodeHeaderSize is the fixed-size prefix of a raw inode, before the
// variable-length name (spec.md §6).
const InodeHeaderSize = 76

// MaxNameLen bounds namelen; anything larger is corruption (spec.md §4.1).
const MaxNameLen = 255

// MaxExtraIsize bounds extra_isize; anything larger is corruption.
const MaxExtraIsize = 4096

const (
	InlinePinFile   uint8 = 1 << 0
	InlineDataExist uint8 = 1 << 1
	InlineExtraAttr uint8 = 1 << 2
)

// Timespec is a {sec, nsec} pair as stored on disk.
type Timespec struct {
	Sec  uint64
	Nsec uint32
}

// RawInode is the on-disk inode body recovery reads and writes
// bit-exactly (spec.md §6). All multi-byte fields are little-endian;
// offsets within the body are unaligned where the format places them.
type RawInode struct {
	Mode        uint16
	Uid         uint32
	Gid         uint32
	Size        uint64
	Atime       Timespec
	Ctime       Timespec
	Mtime       Timespec
	Flags       uint32
	InlineBits  uint8
	// Advise carries the inode's i_advise bits (e.g. cold/hot hints);
	// copied verbatim by inode reconstruction (spec.md §4.7) like every
	// other attribute field.
	Advise      uint8
	ExtraIsize  uint16
	ProjID      uint32
	GcFailures  uint16
	// Pino is the parent directory's inode number, valid when the page
	// carries a dentry mark: recover_dentry (spec.md §4.6) reattaches
	// this inode under Pino, not under whatever directory last happened
	// to reference it.
	Pino        uint32
	Name        string
	EncodedHash uint32 // valid only when HasHash is true
	HasHash     bool
}

func (r RawInode) HasPinFile() bool   { return r.InlineBits&InlinePinFile != 0 }
func (r RawInode) HasDataExist() bool { return r.InlineBits&InlineDataExist != 0 }
func (r RawInode) HasExtraAttr() bool { return r.InlineBits&InlineExtraAttr != 0 }

// DecodeRawInode reads a raw inode from the start of an inode page's body,
// optionally reading a trailing hash if the parent directory is
// casefolded+encrypted (spec.md §4.6).
func DecodeRawInode(body []byte, trailingHash bool) (RawInode, error) {
	if len(body) < InodeHeaderSize {
		return RawInode{}, &rferrors.CorruptFormatError{Reason: "inode body shorter than fixed header"}
	}
	b := body
	r := RawInode{
		Mode:       binary.LittleEndian.Uint16(b[0:2]),
		Uid:        binary.LittleEndian.Uint32(b[2:6]),
		Gid:        binary.LittleEndian.Uint32(b[6:10]),
		Size:       binary.LittleEndian.Uint64(b[10:18]),
		Atime:      Timespec{Sec: binary.LittleEndian.Uint64(b[18:26]), Nsec: binary.LittleEndian.Uint32(b[26:30])},
		Ctime:      Timespec{Sec: binary.LittleEndian.Uint64(b[30:38]), Nsec: binary.LittleEndian.Uint32(b[38:42])},
		Mtime:      Timespec{Sec: binary.LittleEndian.Uint64(b[42:50]), Nsec: binary.LittleEndian.Uint32(b[50:54])},
		Flags:      binary.LittleEndian.Uint32(b[54:58]),
		InlineBits: b[58],
		Advise:     b[59],
		ExtraIsize: binary.LittleEndian.Uint16(b[60:62]),
		ProjID:     binary.LittleEndian.Uint32(b[62:66]),
		GcFailures: binary.LittleEndian.Uint16(b[66:68]),
		Pino:       binary.LittleEndian.Uint32(b[68:72]),
	}
	namelen := binary.LittleEndian.Uint32(b[72:76])
	if namelen > MaxNameLen {
		return RawInode{}, &rferrors.CorruptFormatError{Reason: fmt.Sprintf("namelen %d exceeds max %d", namelen, MaxNameLen)}
	}
	if int(r.ExtraIsize) > MaxExtraIsize {
		return RawInode{}, &rferrors.CorruptFormatError{Reason: fmt.Sprintf("extra_isize %d out of range", r.ExtraIsize)}
	}
	nameEnd := InodeHeaderSize + int(namelen)
	if len(body) < nameEnd {
		return RawInode{}, &rferrors.CorruptFormatError{Reason: "inode body truncated before name"}
	}
	name := body[InodeHeaderSize:nameEnd]
	if !utf8.Valid(name) {
		return RawInode{}, &rferrors.CorruptFormatError{Reason: "recovered filename is not valid UTF-8"}
	}
	// Recovered names are canonicalized to NFC so dentry-repair's hash
	// computation (spec.md §4.6) compares consistently against directory
	// entries written by a casefolded+encrypted-capable mount.
	r.Name = norm.NFC.String(string(name))

	if trailingHash {
		hashEnd := nameEnd + 4
		if len(body) < hashEnd {
			return RawInode{}, &rferrors.CorruptFormatError{Reason: "inode body truncated before trailing hash"}
		}
		r.EncodedHash = binary.LittleEndian.Uint32(body[nameEnd:hashEnd])
		r.HasHash = true
	}
	return r, nil
}

// EncodeRawInode writes r into body, which must be at least
// InodeHeaderSize+len(r.Name)(+4 if r.HasHash) bytes.
func EncodeRawInode(body []byte, r RawInode) error {
	needed := InodeHeaderSize + len(r.Name)
	if r.HasHash {
		needed += 4
	}
	if len(body) < needed {
		return fmt.Errorf("body too small to encode inode: need %d, have %d", needed, len(body))
	}
	b := body
	binary.LittleEndian.PutUint16(b[0:2], r.Mode)
	binary.LittleEndian.PutUint32(b[2:6], r.Uid)
	binary.LittleEndian.PutUint32(b[6:10], r.Gid)
	binary.LittleEndian.PutUint64(b[10:18], r.Size)
	binary.LittleEndian.PutUint64(b[18:26], r.Atime.Sec)
	binary.LittleEndian.PutUint32(b[26:30], r.Atime.Nsec)
	binary.LittleEndian.PutUint64(b[30:38], r.Ctime.Sec)
	binary.LittleEndian.PutUint32(b[38:42], r.Ctime.Nsec)
	binary.LittleEndian.PutUint64(b[42:50], r.Mtime.Sec)
	binary.LittleEndian.PutUint32(b[50:54], r.Mtime.Nsec)
	binary.LittleEndian.PutUint32(b[54:58], r.Flags)
	b[58] = r.InlineBits
	b[59] = r.Advise
	binary.LittleEndian.PutUint16(b[60:62], r.ExtraIsize)
	binary.LittleEndian.PutUint32(b[62:66], r.ProjID)
	binary.LittleEndian.PutUint16(b[66:68], r.GcFailures)
	binary.LittleEndian.PutUint32(b[68:72], r.Pino)
	binary.LittleEndian.PutUint32(b[72:76], uint32(len(r.Name)))
	copy(b[InodeHeaderSize:], r.Name)
	if r.HasHash {
		binary.LittleEndian.PutUint32(b[InodeHeaderSize+len(r.Name):], r.EncodedHash)
	}
	return nil
}
