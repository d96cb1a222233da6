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

package fsyncinode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/inode"
	"github.com/rollforward/rollforward/internal/ondisk"
	"github.com/rollforward/rollforward/internal/rferrors"
)

type fakeQuota struct{ initialized, alloced []uint32 }

func (q *fakeQuota) Initialize(ino uint32) error { q.initialized = append(q.initialized, ino); return nil }
func (q *fakeQuota) AllocInode(ino uint32) error { q.alloced = append(q.alloced, ino); return nil }
func (q *fakeQuota) Transfer(ino uint32, oldUID, oldGID, newUID, newGID uint32) error { return nil }
func (q *fakeQuota) TransferProject(ino uint32, oldProjID, newProjID uint32) error    { return nil }
func (q *fakeQuota) AcquireOrphanInode(ino uint32) error                             { return nil }

func newTestTable(t *testing.T) (*Table, *inode.Cache, *fakeQuota) {
	t.Helper()
	cache := inode.NewCache(func(ino inode.ID) (ondisk.RawInode, blockaddr.Addr, error) {
		if ino == 404 {
			return ondisk.RawInode{}, 0, assert.AnError
		}
		return ondisk.RawInode{Mode: 0o100644}, blockaddr.Addr(ino), nil
	})
	q := &fakeQuota{}
	return New(cache, q), cache, q
}

func TestTable_AddFindDel(t *testing.T) {
	tbl, _, q := newTestTable(t)

	e, err := tbl.Add(7, true)
	require.NoError(t, err)
	assert.Equal(t, inode.ID(7), e.Handle.ID())
	assert.Contains(t, q.alloced, uint32(7))
	assert.Equal(t, e, tbl.Find(7))
	assert.Equal(t, 1, tbl.Len())

	tbl.Del(e, false)
	assert.Nil(t, tbl.Find(7))
	assert.Equal(t, 0, tbl.Len())
}

func TestTable_Add_NotFound(t *testing.T) {
	tbl, _, _ := newTestTable(t)

	_, err := tbl.Add(404, false)
	var nf *rferrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestTable_Destroy(t *testing.T) {
	tbl, _, _ := newTestTable(t)

	_, err := tbl.Add(1, false)
	require.NoError(t, err)
	_, err = tbl.Add(2, false)
	require.NoError(t, err)

	tbl.Destroy(true)
	assert.Equal(t, 0, tbl.Len())
}
