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

// Package rferrors defines the typed error kinds recovery distinguishes
// between (spec.md §7): OutOfMemory, NotFound, CorruptFormat,
// QuotaRepairNeeded, and BugOn.
package rferrors

import "fmt"

// NotFoundError means an ino looked up in the NAT does not exist.
// Tolerated during discovery (skip the block); fatal during data repair.
type NotFoundError struct {
	Ino uint32
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ino %d not found in NAT: %v", e.Ino, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// OutOfMemoryError is raised by allocation-retry loops once their backoff
// budget (cfg.RetryBound, §9) is exhausted. A zero bound means unbounded
// retry and this error is never constructed.
type OutOfMemoryError struct {
	Op       string
	Attempts uint32
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("%s: out of memory after %d attempts", e.Op, e.Attempts)
}

// CorruptFormatError means the on-disk format violates an invariant:
// invalid block address, looped node chain, mismatched node ofs, or a
// namelen that does not fit an inode body. Recovery aborts and truncates
// its scratch pages rather than dirtying them into the next checkpoint.
type CorruptFormatError struct {
	Reason string
	Err    error
}

func (e *CorruptFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt format: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt format: %s", e.Reason)
}

func (e *CorruptFormatError) Unwrap() error { return e.Err }

// QuotaRepairNeededError is non-fatal: the orchestrator sets a superblock
// flag for offline repair and continues.
type QuotaRepairNeededError struct {
	Ino uint32
}

func (e *QuotaRepairNeededError) Error() string {
	return fmt.Sprintf("ino %d needs offline quota repair", e.Ino)
}

// BugOnError represents an invariant the on-disk format and a correct
// allocator guarantee cannot happen (e.g. ENOSPC from a reservation the
// format promised room for, or an ino mismatch between a summary entry
// and the node it names). Recovery code should trap on this, not paper
// over it; see spec.md §9 "f3fs_bug_on sites".
type BugOnError struct {
	Reason string
}

func (e *BugOnError) Error() string {
	return fmt.Sprintf("bug: invariant violated: %s", e.Reason)
}
