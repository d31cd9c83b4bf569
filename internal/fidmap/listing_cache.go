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

// Package fidmap holds the in-memory bookkeeping between kernel handles,
// identifiers, and cached directory listings.
package fidmap

import (
	"fmt"

	"github.com/jacobsa/syncutil"
	"github.com/recfs/recfs/internal/fid"
	"github.com/recfs/recfs/internal/rec"
)

// A Listing is the cached result of one remote list call for a directory,
// or the marker for an object known not to be a directory.
type Listing struct {
	// The directory's children, in server order. Nil for a non-directory.
	// Immutable once installed; callers must not mutate the slice.
	Children []rec.Entry
}

// IsDir reports whether the cached object is a directory.
func (l Listing) IsDir() bool {
	return l.Children != nil
}

// A ListingCache maps identifiers to cached listings and remembers each
// identifier's parent. Readers may walk listings concurrently; installing a
// listing updates the children's parent entries in the same critical
// section, so the parent map never lags the listings.
type ListingCache struct {
	mu syncutil.InvariantMutex

	// The cached listing for each identifier that has one. An identifier
	// absent from the map has never been fetched.
	//
	// GUARDED_BY(mu)
	listings map[fid.Fid]Listing

	// Each known identifier's parent. A nil value means the identifier has
	// no parent (the root); an absent key means the parent is unknown.
	//
	// INVARIANT: For each listing l and child c of l, parents[c.Fid] is
	// present and points at l's directory.
	//
	// GUARDED_BY(mu)
	parents map[fid.Fid]*fid.Fid

	// Reverse index used only for the invariant check above.
	//
	// GUARDED_BY(mu)
	containing map[fid.Fid]fid.Fid
}

// NewListingCache creates an empty cache that already knows the root has no
// parent.
func NewListingCache() *ListingCache {
	c := &ListingCache{
		listings:   make(map[fid.Fid]Listing),
		parents:    make(map[fid.Fid]*fid.Fid),
		containing: make(map[fid.Fid]fid.Fid),
	}
	c.parents[fid.Root()] = nil
	c.mu = syncutil.NewInvariantMutex(c.checkInvariants)
	return c
}

func (c *ListingCache) checkInvariants() {
	for child, dir := range c.containing {
		p, ok := c.parents[child]
		if !ok {
			panic(fmt.Sprintf("listed child %v has no parent entry", child))
		}
		if p == nil || *p != dir {
			panic(fmt.Sprintf("listed child %v: parent entry disagrees with listing %v", child, dir))
		}
	}
}

// Lookup returns the cached listing for f, if any.
func (c *ListingCache) Lookup(f fid.Fid) (l Listing, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l, ok = c.listings[f]
	return
}

// LookupChild searches f's cached listing for a child with the given
// display name. The second result distinguishes "no cached listing" from
// "cached, no such child": ok is false in the former case, and also when f
// is cached as a non-directory. The first matching entry wins when the
// server permits duplicate names.
func (c *ListingCache) LookupChild(f fid.Fid, name string) (e rec.Entry, found bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l, ok := c.listings[f]
	if !ok || !l.IsDir() {
		ok = false
		return
	}

	for _, child := range l.Children {
		if child.Name == name {
			e = child
			found = true
			return
		}
	}
	return
}

// Install records the listing for directory dir and points every child's
// parent entry at dir.
func (c *ListingCache) Install(dir fid.Fid, children []rec.Entry) {
	if children == nil {
		children = []rec.Entry{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.listings[dir] = Listing{Children: children}
	d := dir
	for _, child := range children {
		c.parents[child.Fid] = &d
		c.containing[child.Fid] = dir
	}
}

// InstallNonDir records that f is not a directory.
func (c *ListingCache) InstallNonDir(f fid.Fid) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listings[f] = Listing{}
}

// SetParent records f's parent if it is not already known. A nil parent
// means f has none.
func (c *ListingCache) SetParent(f fid.Fid, parent *fid.Fid) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.parents[f]; ok {
		return
	}
	if parent != nil {
		p := *parent
		c.parents[f] = &p
	} else {
		c.parents[f] = nil
	}
}

// Parent returns f's parent. known is false when nothing has been recorded
// for f; a nil parent with known true means f has no parent.
func (c *ListingCache) Parent(f fid.Fid) (parent *fid.Fid, known bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.parents[f]
	if !ok {
		return nil, false
	}
	if p == nil {
		return nil, true
	}
	cp := *p
	return &cp, true
}
