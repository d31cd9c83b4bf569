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

// Package resolver turns kernel paths into remote identifiers, walking the
// listing cache and falling back to remote list calls on a miss.
package resolver

import (
	"context"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/recfs/recfs/internal/fid"
	"github.com/recfs/recfs/internal/fidmap"
	"github.com/recfs/recfs/internal/logger"
	"github.com/recfs/recfs/internal/rec"
)

// Display names of the synthetic subtrees injected under the root. The
// leading '?' cannot appear in real server names.
const (
	BackupName  = "?Backup"
	RecycleName = "?Recycle"
)

// A Lister issues one remote listing call.
type Lister interface {
	List(ctx context.Context, f fid.Fid, disk rec.DiskType) ([]rec.Entry, error)
}

// A Resolver maps absolute paths to identifiers. It never holds a cache
// lock across a remote call: each walk step does one locked lookup, then
// drops the lock for the list call and reacquires to install the result.
type Resolver struct {
	cache  *fidmap.ListingCache
	lister Lister

	// When set, the per-component cache hit is skipped and every component
	// costs a remote list. Debug aid.
	disableFastPath bool
}

// New creates a resolver over the given cache and remote lister.
func New(cache *fidmap.ListingCache, lister Lister, disableFastPath bool) *Resolver {
	return &Resolver{
		cache:           cache,
		lister:          lister,
		disableFastPath: disableFastPath,
	}
}

// Resolve walks the absolute path and returns the identifier it denotes
// plus that identifier's parent (nil for the root). On return the final
// identifier has a cache entry: a listing for directories, a non-directory
// marker for files, so the caller can proceed from the cache alone.
// Failures surface as POSIX error numbers: ENOENT for unknown names or
// failed listings, EINVAL for malformed components.
func (r *Resolver) Resolve(ctx context.Context, path string) (f fid.Fid, parent *fid.Fid, err error) {
	f = fid.Root()

	var last *rec.Entry
	for _, comp := range splitPath(path) {
		if !utf8.ValidString(comp) {
			err = syscall.EINVAL
			return
		}

		var child rec.Entry
		var found bool
		if !r.disableFastPath {
			child, found, _ = r.cache.LookupChild(f, comp)
		}

		if !found {
			var children []rec.Entry
			if children, err = r.listAndInstall(ctx, f); err != nil {
				return
			}
			for i := range children {
				if children[i].Name == comp {
					child = children[i]
					found = true
					break
				}
			}
			if !found {
				err = syscall.ENOENT
				return
			}
		}

		p := f
		parent = &p
		f = child.Fid
		c := child
		last = &c
	}

	err = r.ensureCached(ctx, f, last)
	return
}

// Refresh unconditionally re-lists a directory and installs the result,
// discarding whatever was cached for it.
func (r *Resolver) Refresh(ctx context.Context, dir fid.Fid) ([]rec.Entry, error) {
	return r.listAndInstall(ctx, dir)
}

// Make sure the final identifier of a walk has a cache entry. last is the
// listing entry the walk advanced through, nil when the path was empty.
//
// LOCKS_EXCLUDED(r.cache)
func (r *Resolver) ensureCached(ctx context.Context, f fid.Fid, last *rec.Entry) error {
	if _, ok := r.cache.Lookup(f); ok {
		return nil
	}

	if last != nil && last.Kind == rec.KindFile {
		r.cache.InstallNonDir(f)
		return nil
	}

	// The root, the synthetic roots, and any directory entry land here.
	_, err := r.listAndInstall(ctx, f)
	return err
}

// Issue the remote list for dir and install it, injecting the synthetic
// subtrees when dir is the account root. Synthetic roots list their own
// disk area instead of the cloud one.
func (r *Resolver) listAndInstall(ctx context.Context, dir fid.Fid) ([]rec.Entry, error) {
	disk := rec.DiskCloud
	switch {
	case dir.IsBackupRoot():
		disk = rec.DiskBackup
	case dir.IsRecycleRoot():
		disk = rec.DiskRecycle
	}

	children, err := r.lister.List(ctx, dir, disk)
	if err != nil {
		logger.Warnf("resolver: listing %v: %v", dir, err)
		return nil, syscall.ENOENT
	}

	if dir.IsRoot() {
		children = append(children,
			rec.Entry{Fid: fid.BackupRoot(), Name: BackupName, Kind: rec.KindDirectory},
			rec.Entry{Fid: fid.RecycleRoot(), Name: RecycleName, Kind: rec.KindDirectory},
		)
	}

	r.cache.Install(dir, children)
	return children, nil
}

func splitPath(path string) []string {
	var comps []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}
	return comps
}
