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

package blockdev

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/ondisk"
)

func newTestDevice(t *testing.T, blocks int) *Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, os.WriteFile(path, make([]byte, blocks*ondisk.BlockSize), 0o644))
	dev, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

func TestDevice_WriteThenReadBlock(t *testing.T) {
	dev := newTestDevice(t, 4)

	block := bytes.Repeat([]byte{0xAB}, ondisk.BlockSize)
	require.NoError(t, dev.WriteBlock(blockaddr.Addr(2), block))

	got, err := dev.ReadBlock(blockaddr.Addr(2))
	require.NoError(t, err)
	require.Equal(t, block, got)

	other, err := dev.ReadBlock(blockaddr.Addr(0))
	require.NoError(t, err)
	require.Equal(t, make([]byte, ondisk.BlockSize), other)
}

func TestDevice_WriteBlock_WrongSize(t *testing.T) {
	dev := newTestDevice(t, 1)
	err := dev.WriteBlock(blockaddr.Addr(0), make([]byte, 10))
	require.Error(t, err)
}

func TestDevice_Sync(t *testing.T) {
	dev := newTestDevice(t, 1)
	require.NoError(t, dev.Sync())
}
