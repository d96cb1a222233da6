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

package inode

import "fmt"

// refCount tracks how many live iget handles hold a reference to a
// cached inode. destroy is invoked when the count hits zero. External
// synchronization is required.
type refCount struct {
	count   uint64
	destroy func()
}

func (rc *refCount) inc() {
	rc.count++
}

func (rc *refCount) dec(n uint64) (destroyed bool) {
	if n > rc.count {
		panic(fmt.Sprintf("inode: released more references than held: %d vs. %d", n, rc.count))
	}

	rc.count -= n
	if rc.count == 0 {
		rc.destroy()
		destroyed = true
	}
	return
}
