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

// Package pagecache stands in for the buffered node/meta page cache
// recovery reads and writes through (spec.md §4.1, §6: "grab/get/put a
// page", "f3fs_put_page"). Pages are pinned on Acquire and must be
// Released; a pinned page is never evicted, mirroring the real page
// cache's refcounted page struct.
package pagecache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/rollforward/rollforward/internal/blockaddr"
)

// Loader fetches a page's bytes on a cache miss.
type Loader func(addr blockaddr.Addr) ([]byte, error)

type entry struct {
	addr  blockaddr.Addr
	bytes []byte
	pins  int
}

// Cache is a pinned-aware LRU cache of block-addressed pages.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[blockaddr.Addr]*list.Element
	order    *list.List // front = most recently used
}

// New returns a Cache holding up to capacity unpinned pages before it
// starts evicting the least-recently-used one to make room.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[blockaddr.Addr]*list.Element),
		order:    list.New(),
	}
}

// Acquire returns the page at addr, pinning it against eviction. On a
// miss it calls load to fetch the page's bytes. The caller must Release
// the page exactly once when done.
func (c *Cache) Acquire(addr blockaddr.Addr, load Loader) ([]byte, error) {
	c.mu.Lock()
	if el, ok := c.items[addr]; ok {
		e := el.Value.(*entry)
		e.pins++
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return e.bytes, nil
	}
	c.mu.Unlock()

	bytes, err := load(addr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[addr]; ok {
		// Lost a race with a concurrent Acquire(addr); keep the winner's
		// bytes and just bump the pin.
		e := el.Value.(*entry)
		e.pins++
		c.order.MoveToFront(el)
		return e.bytes, nil
	}
	e := &entry{addr: addr, bytes: bytes, pins: 1}
	el := c.order.PushFront(e)
	c.items[addr] = el
	c.evictIfNeeded()
	return bytes, nil
}

// Release unpins the page at addr. It is a caller error to release a page
// more times than it was acquired.
func (c *Cache) Release(addr blockaddr.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[addr]
	if !ok {
		return
	}
	e := el.Value.(*entry)
	if e.pins == 0 {
		panic(fmt.Sprintf("pagecache: over-release of block %d", addr))
	}
	e.pins--
	c.evictIfNeeded()
}

// Invalidate drops addr from the cache regardless of pin state. Used when
// a page is known stale, e.g. after a write that changes its generation.
func (c *Cache) Invalidate(addr blockaddr.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[addr]; ok {
		c.order.Remove(el)
		delete(c.items, addr)
	}
}

// Len reports the number of pages currently resident, pinned or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// evictIfNeeded drops least-recently-used unpinned entries until the
// cache is back at or under capacity. Must be called with c.mu held.
func (c *Cache) evictIfNeeded() {
	for c.order.Len() > c.capacity {
		victim := c.findEvictionVictim()
		if victim == nil {
			return // everything resident is pinned; over capacity is tolerated
		}
		c.order.Remove(victim)
		delete(c.items, victim.Value.(*entry).addr)
	}
}

func (c *Cache) findEvictionVictim() *list.Element {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		if el.Value.(*entry).pins == 0 {
			return el
		}
	}
	return nil
}

// CheckInvariants verifies the cache's internal bookkeeping is
// consistent: every entry in items has a matching list element, pin
// counts are non-negative, and no addr is duplicated.
func (c *Cache) CheckInvariants() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) != c.order.Len() {
		return fmt.Errorf("pagecache: %d index entries but %d list entries", len(c.items), c.order.Len())
	}
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.pins < 0 {
			return fmt.Errorf("pagecache: negative pin count for block %d", e.addr)
		}
		indexed, ok := c.items[e.addr]
		if !ok || indexed != el {
			return fmt.Errorf("pagecache: index out of sync for block %d", e.addr)
		}
	}
	return nil
}
