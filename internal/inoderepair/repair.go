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

// Package inoderepair implements recover_inode (spec.md §4.7):
// reinstating an inode's attributes from its recovered page, including
// the quota transfer a uid/gid/project-id change requires.
package inoderepair

import (
	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/inode"
	"github.com/rollforward/rollforward/internal/ondisk"
	"github.com/rollforward/rollforward/internal/quota"
)

// Repairer drives recover_inode against a quota collaborator.
type Repairer struct {
	quota quota.Manager
}

// New returns a Repairer over the given quota manager.
func New(q quota.Manager) *Repairer {
	return &Repairer{quota: q}
}

// Recover copies recovered's attributes onto h, transferring quota
// charges first if uid, gid, or project id changed (spec.md §4.7).
// addr is the node-page address recovered was read from.
func (r *Repairer) Recover(h *inode.Handle, recovered ondisk.RawInode, addr blockaddr.Addr) error {
	h.Mu.Lock()
	defer h.Mu.Unlock()

	current := h.Raw()

	if current.Uid != recovered.Uid || current.Gid != recovered.Gid {
		if err := r.quota.Transfer(h.ID(), current.Uid, current.Gid, recovered.Uid, recovered.Gid); err != nil {
			return err
		}
	}
	if current.ProjID != recovered.ProjID {
		if err := r.quota.TransferProject(h.ID(), current.ProjID, recovered.ProjID); err != nil {
			return err
		}
	}

	// i_blocks/gc_failures/inline bits/advise/mode/size/timestamps/flags
	// all come from the recovered page verbatim; only uid/gid/projid are
	// quota-sensitive and need the transfer above first.
	h.SetRaw(recovered, addr)
	return nil
}
