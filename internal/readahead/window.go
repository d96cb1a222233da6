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

// Package readahead maintains discovery's advisory read-ahead window
// (spec.md §4.3, §5) and issues bounded, cancellable concurrent prefetch
// of upcoming node blocks.
package readahead

// Window holds an adaptive read-ahead size, doubling on a contiguous hit
// and halving when the chain jumps to a new segment, clamped to
// [min, max].
type Window struct {
	min, max uint32
	size     uint32
}

// NewWindow returns a Window starting at min.
func NewWindow(min, max uint32) *Window {
	if max < min {
		max = min
	}
	return &Window{min: min, max: max, size: min}
}

// Size returns the current window size in blocks.
func (w *Window) Size() uint32 { return w.size }

// OnContiguous doubles the window (capped at max): the next block read
// picked up right where the last one's footer said it would.
func (w *Window) OnContiguous() {
	w.size *= 2
	if w.size > w.max {
		w.size = w.max
	}
}

// OnSegmentJump halves the window (floored at min): the chain crossed a
// segment boundary, so locality is less predictable going forward.
func (w *Window) OnSegmentJump() {
	w.size /= 2
	if w.size < w.min {
		w.size = w.min
	}
}
