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

// Package quota declares the quota subsystem contract recovery consumes
// (spec.md §1, §6). Quota accounting itself — the on-disk quota files,
// block/inode usage counters — is an out-of-scope collaborator; recovery
// only initializes, charges, and transfers quota context as it
// reconstructs inodes and dentries.
package quota

// Manager is the quota contract recovery consumes.
type Manager interface {
	// Initialize loads (or lazily creates) quota context for ino.
	Initialize(ino uint32) error
	// AllocInode charges one inode allocation against ino's quota.
	AllocInode(ino uint32) error
	// Transfer moves usage from the old (uid, gid) to the new one,
	// called when recover_inode finds a changed owner (spec.md §4.7).
	Transfer(ino uint32, oldUID, oldGID, newUID, newGID uint32) error
	// TransferProject moves usage to a new project id.
	TransferProject(ino uint32, oldProjID, newProjID uint32) error
	// AcquireOrphanInode reserves bookkeeping for an inode about to be
	// unlinked as a directory-repair side effect (spec.md §4.6).
	AcquireOrphanInode(ino uint32) error
}
