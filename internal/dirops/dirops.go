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

// Package dirops declares the directory-block contract recovery
// consumes (spec.md §1, §6, §4.6). Directory block layout and hashing
// internals belong to an out-of-scope collaborator; recovery only
// resolves names to entries and mutates entries through this contract.
package dirops

// Entry is a resolved directory entry: the ino it names and the raw
// on-disk page it was found in, so the caller can pass it back to
// Delete.
type Entry struct {
	Ino  uint32
	Mode uint16
	Page []byte
}

// Directory is the directory-block contract recovery consumes.
type Directory interface {
	// FindEntry looks up name (with its precomputed hash) under dir.
	// ok is false if no such entry exists.
	FindEntry(dir uint32, name string, hash uint32) (entry Entry, ok bool, err error)
	// AddDentry installs a new entry for name under dir, pointing at
	// ino with the given mode.
	AddDentry(dir uint32, name string, hash uint32, ino uint32, mode uint16) error
	// DeleteEntry removes entry (previously returned by FindEntry) from
	// dir on behalf of einode, the inode the stale entry pointed to.
	DeleteEntry(entry Entry, dir uint32, einode uint32) error
}
