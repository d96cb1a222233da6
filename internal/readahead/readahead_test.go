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

package readahead

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rollforward/rollforward/internal/blockaddr"
)

func TestWindow_DoublesAndHalves(t *testing.T) {
	w := NewWindow(1, 16)
	assert.Equal(t, uint32(1), w.Size())

	w.OnContiguous()
	w.OnContiguous()
	w.OnContiguous()
	assert.Equal(t, uint32(8), w.Size())

	w.OnContiguous()
	w.OnContiguous()
	assert.Equal(t, uint32(16), w.Size(), "must clamp at max")

	w.OnSegmentJump()
	assert.Equal(t, uint32(8), w.Size())

	for i := 0; i < 10; i++ {
		w.OnSegmentJump()
	}
	assert.Equal(t, uint32(1), w.Size(), "must floor at min")
}

func TestPrefetcher_IssuesBoundedConcurrentFetches(t *testing.T) {
	var calls int64
	var mu sync.Mutex
	var seen []blockaddr.Addr

	p := NewPrefetcher(func(addr blockaddr.Addr) error {
		atomic.AddInt64(&calls, 1)
		mu.Lock()
		seen = append(seen, addr)
		mu.Unlock()
		return nil
	}, 4, 0)

	p.Issue(context.Background(), blockaddr.Addr(100), 4)

	assert.Eventually(t, func() bool { return atomic.LoadInt64(&calls) == 4 }, time.Second, time.Millisecond)
}

func TestPrefetcher_RespectsCancellation(t *testing.T) {
	var calls int64
	p := NewPrefetcher(func(addr blockaddr.Addr) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}, 2, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Issue(ctx, blockaddr.Addr(0), 2)

	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt64(&calls))
}
