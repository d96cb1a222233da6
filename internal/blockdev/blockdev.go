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

// Package blockdev provides block-addressed reads and writes against the
// backing device or image file recovery runs over (spec.md §4.1, §6).
// Recovery addresses everything in blockaddr.Addr units; this package is the
// one place that turns a logical block address into a byte offset and
// issues the underlying pread/pwrite/fdatasync.
package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/ondisk"
)

// Device is a block-addressed view over an open file descriptor.
type Device struct {
	f *os.File
}

// Open opens path for reading and writing block-sized pages. path may be a
// raw block device or a regular file standing in for one.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open device %q: %w", path, err)
	}
	return &Device{f: f}, nil
}

// OpenReadOnly opens path for reads only. A caller whose Device was
// opened this way must not call WriteBlock; check mode (spec.md's
// check-only recovery pass) uses this so it can never mutate the device
// it is merely inspecting.
func OpenReadOnly(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open device %q: %w", path, err)
	}
	return &Device{f: f}, nil
}

// Close closes the underlying file descriptor.
func (d *Device) Close() error { return d.f.Close() }

func byteOffset(addr blockaddr.Addr) int64 { return int64(addr) * ondisk.BlockSize }

// ReadBlock reads exactly one ondisk.BlockSize page at addr.
func (d *Device) ReadBlock(addr blockaddr.Addr) ([]byte, error) {
	buf := make([]byte, ondisk.BlockSize)
	n, err := unix.Pread(int(d.f.Fd()), buf, byteOffset(addr))
	if err != nil {
		return nil, fmt.Errorf("pread block %d: %w", addr, err)
	}
	if n != ondisk.BlockSize {
		return nil, fmt.Errorf("pread block %d: short read, got %d bytes", addr, n)
	}
	return buf, nil
}

// WriteBlock writes exactly one ondisk.BlockSize page at addr. block must
// be ondisk.BlockSize bytes long.
func (d *Device) WriteBlock(addr blockaddr.Addr, block []byte) error {
	if len(block) != ondisk.BlockSize {
		return fmt.Errorf("write block %d: expected %d bytes, got %d", addr, ondisk.BlockSize, len(block))
	}
	n, err := unix.Pwrite(int(d.f.Fd()), block, byteOffset(addr))
	if err != nil {
		return fmt.Errorf("pwrite block %d: %w", addr, err)
	}
	if n != ondisk.BlockSize {
		return fmt.Errorf("pwrite block %d: short write, wrote %d bytes", addr, n)
	}
	return nil
}

// Sync forces dirty pages written through this device out to stable
// storage, short of a full fsync (spec.md §3 treats checkpoint commit as
// the durability boundary; recovery only needs data durable, not metadata
// like mtimes).
func (d *Device) Sync() error {
	if err := unix.Fdatasync(int(d.f.Fd())); err != nil {
		return fmt.Errorf("fdatasync: %w", err)
	}
	return nil
}
