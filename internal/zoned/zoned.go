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

// Package zoned implements fix_curseg_write_pointer's call site
// (spec.md §4.8). The write-pointer reconciliation itself belongs to
// the segment allocator, an out-of-scope collaborator (spec.md §1);
// this package only decides whether the fix-up should run at all.
package zoned

import "github.com/rollforward/rollforward/internal/segment"

// ShouldFix reports whether the zoned write-pointer fix-up should run,
// per spec.md §4.8: "fix_pointers is true when either not check-only or
// no inodes needed recovery."
func ShouldFix(checkOnly bool, anyInodeRecovered bool) bool {
	return !checkOnly || !anyInodeRecovered
}

// Fix reconciles the allocator's write pointers if zoned is enabled and
// the device is not mounted read-only, delegating the actual
// reconciliation to the segment allocator.
func Fix(seg segment.Allocator, zoned bool, readOnly bool, checkOnly bool, anyInodeRecovered bool) error {
	if !zoned || readOnly {
		return nil
	}
	if !ShouldFix(checkOnly, anyInodeRecovered) {
		return nil
	}
	return seg.FixCursegWritePointer()
}
