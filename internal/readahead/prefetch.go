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

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/rollforward/rollforward/internal/blockaddr"
)

// Fetcher loads one block's worth of bytes, as a cache-warming side
// effect; errors are advisory and therefore discarded by Prefetcher.
type Fetcher func(addr blockaddr.Addr) error

// Prefetcher issues bounded-concurrency, rate-limited conditional
// prefetch (spec.md §4.3's "issue a conditional prefetch", §5's
// "advisory and cancellable"). It mirrors the chain's own serial read
// order but fans the actual I/O out across a small worker pool so
// discovery doesn't stall on every page.
type Prefetcher struct {
	fetch   Fetcher
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewPrefetcher bounds concurrent prefetch reads to maxConcurrent and
// paces issuance at ratePerSecond blocks/sec (0 disables pacing).
func NewPrefetcher(fetch Fetcher, maxConcurrent int64, ratePerSecond rate.Limit) *Prefetcher {
	p := &Prefetcher{
		fetch: fetch,
		sem:   semaphore.NewWeighted(maxConcurrent),
	}
	if ratePerSecond > 0 {
		p.limiter = rate.NewLimiter(ratePerSecond, int(maxConcurrent))
	}
	return p
}

// Issue conditionally prefetches the n blocks starting at addr. It
// returns immediately; prefetch errors are swallowed since the blocks
// will be read again, synchronously and authoritatively, when discovery
// actually reaches them. Issue respects ctx cancellation (spec.md §5:
// "cancellable by the orchestrator via page-cache truncation").
func (p *Prefetcher) Issue(ctx context.Context, addr blockaddr.Addr, n uint32) {
	for i := uint32(0); i < n; i++ {
		target := addr + blockaddr.Addr(i)
		if !p.sem.TryAcquire(1) {
			return // pool saturated; the synchronous reader will catch up
		}
		go func() {
			defer p.sem.Release(1)
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			_ = p.fetch(target)
		}()
	}
}
