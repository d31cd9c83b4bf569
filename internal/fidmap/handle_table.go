// Copyright 2023 The recfs Authors. All Rights Reserved.
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

package fidmap

import (
	"fmt"
	"sort"

	"github.com/jacobsa/syncutil"
	"github.com/recfs/recfs/internal/fid"
)

// MinHandle is the smallest handle value ever returned; lower values are
// reserved.
const MinHandle uint64 = 4

// A HandleTable is a bijection between kernel handles and identifiers.
// Handles are allocated by filling the smallest unused slot at or above
// MinHandle. An identifier is bound to at most one handle at a time.
//
// Parents recorded through Bind go to the listing cache supplied at
// construction, so a released handle's identifier still resolves for
// in-flight stats.
type HandleTable struct {
	cache *ListingCache

	mu syncutil.InvariantMutex

	// INVARIANT: byHandle and byFid are inverses of each other.
	// INVARIANT: For all keys h of byHandle, h >= MinHandle.
	//
	// GUARDED_BY(mu)
	byHandle map[uint64]fid.Fid

	// GUARDED_BY(mu)
	byFid map[fid.Fid]uint64
}

// NewHandleTable creates an empty handle table that records parents into
// cache.
func NewHandleTable(cache *ListingCache) *HandleTable {
	t := &HandleTable{
		cache:    cache,
		byHandle: make(map[uint64]fid.Fid),
		byFid:    make(map[fid.Fid]uint64),
	}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

func (t *HandleTable) checkInvariants() {
	if len(t.byHandle) != len(t.byFid) {
		panic(fmt.Sprintf("map sizes disagree: %d vs. %d", len(t.byHandle), len(t.byFid)))
	}
	for h, f := range t.byHandle {
		if h < MinHandle {
			panic(fmt.Sprintf("reserved handle %d in use", h))
		}
		if got, ok := t.byFid[f]; !ok || got != h {
			panic(fmt.Sprintf("handle %d and fid %v not inverse", h, f))
		}
	}
}

// Bind returns the handle bound to f, allocating the smallest unused one if
// f is not bound yet. The parent is recorded for f unless a parent is
// already known; a nil parent records that f has none.
func (t *HandleTable) Bind(f fid.Fid, parent *fid.Fid) (h uint64) {
	t.mu.Lock()
	if existing, ok := t.byFid[f]; ok {
		h = existing
	} else {
		h = t.nextHandle()
		t.byHandle[h] = f
		t.byFid[f] = h
	}
	t.mu.Unlock()

	t.cache.SetParent(f, parent)
	return
}

// Lookup returns the identifier bound to h, if any.
func (t *HandleTable) Lookup(h uint64) (f fid.Fid, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok = t.byHandle[h]
	return
}

// ParentOf returns the recorded parent of f. known is false when no parent
// has been recorded; a nil parent with known true means f has none.
func (t *HandleTable) ParentOf(f fid.Fid) (parent *fid.Fid, known bool) {
	return t.cache.Parent(f)
}

// Release unbinds h. The identifier's parent mapping is retained.
func (t *HandleTable) Release(h uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.byHandle[h]
	if !ok {
		return
	}
	delete(t.byHandle, h)
	delete(t.byFid, f)
}

// Return the smallest handle >= MinHandle not currently bound.
//
// The scan is linear in the number of live handles, which is fine at FUSE
// callback rates, and keeps allocation deterministic for small tables.
//
// LOCKS_REQUIRED(t.mu)
func (t *HandleTable) nextHandle() uint64 {
	used := make([]uint64, 0, len(t.byHandle))
	for h := range t.byHandle {
		used = append(used, h)
	}
	sort.Slice(used, func(i, j int) bool { return used[i] < used[j] })

	for i, h := range used {
		if want := MinHandle + uint64(i); h != want {
			return want
		}
	}
	return MinHandle + uint64(len(used))
}
