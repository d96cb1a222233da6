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

import (
	"fmt"
	"sync"

	"github.com/rollforward/rollforward/internal/blockaddr"
	"github.com/rollforward/rollforward/internal/ondisk"
)

// Loader resolves an inode number to its current raw inode and the
// node-page address it lives at. Production wiring backs this with the
// node layer's GetNodePage (internal/nat, an out-of-scope collaborator
// per spec.md §1) followed by ondisk.DecodeNodePage.
type Loader func(ino ID) (ondisk.RawInode, blockaddr.Addr, error)

// Cache is the recovery-scoped table of live inode handles (spec.md
// §4.2: "iget_retry", "iput"). Unlike the kernel's VFS inode cache,
// there is no background reclaim: an entry survives exactly as long as
// something holds a reference via Iget, plus dirty entries that have
// not yet been marked synced.
type Cache struct {
	mu      sync.Mutex
	load    Loader
	entries map[ID]*Handle
	refs    map[ID]*refCount
}

// NewCache returns an empty cache backed by load.
func NewCache(load Loader) *Cache {
	return &Cache{
		load:    load,
		entries: make(map[ID]*Handle),
		refs:    make(map[ID]*refCount),
	}
}

// Iget returns the handle for ino, pinning it. On a miss it calls the
// cache's Loader; recovery's own retry-until-success discipline (spec.md
// §4.2's "iget_retry") is the caller's responsibility — Iget itself
// simply surfaces the Loader's error so the caller can decide whether to
// retry, skip the dnode, or abort recovery.
func (c *Cache) Iget(ino ID) (*Handle, error) {
	c.mu.Lock()
	if h, ok := c.entries[ino]; ok {
		c.refs[ino].inc()
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	raw, addr, err := c.load(ino)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.entries[ino]; ok {
		c.refs[ino].inc()
		return h, nil
	}

	h := newHandle(ino, raw, addr)
	c.entries[ino] = h
	rc := &refCount{destroy: func() {
		// A dirty handle is retained past its last release: its repair
		// must survive until the caller marks it synced and iputs it
		// again, matching spec.md §4.2/§4.7's "don't forget a dirty
		// inode before checkpoint" discipline.
		if !h.IsDirty() {
			c.evict(ino)
		}
	}}
	rc.inc()
	c.refs[ino] = rc
	return h, nil
}

// Iput releases a reference obtained from Iget.
func (c *Cache) Iput(ino ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rc, ok := c.refs[ino]
	if !ok {
		panic(fmt.Sprintf("inode: iput of untracked ino %d", ino))
	}
	rc.dec(1)
}

func (c *Cache) evict(ino ID) {
	delete(c.entries, ino)
	delete(c.refs, ino)
}

// MarkSynced clears ino's dirty bit under its own lock and, if nothing
// holds a reference to it anymore, evicts it. Call this once a repaired
// inode's node page has been durably written back.
func (c *Cache) MarkSynced(ino ID) {
	c.mu.Lock()
	h, ok := c.entries[ino]
	if !ok {
		c.mu.Unlock()
		panic(fmt.Sprintf("inode: mark-synced of untracked ino %d", ino))
	}
	rc := c.refs[ino]
	c.mu.Unlock()

	h.Mu.Lock()
	h.MarkSynced()
	h.Mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if rc.count == 0 {
		c.evict(ino)
	}
}

// Len reports the number of resident handles, pinned or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
