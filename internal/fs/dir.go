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

package fs

import (
	"context"
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/recfs/recfs/internal/logger"
	"github.com/recfs/recfs/internal/pathfs"
	"github.com/recfs/recfs/internal/rec"
)

func (fs *recFS) OpenDir(ctx context.Context, path string) (uint64, error) {
	f, parent, err := fs.resolver.Resolve(ctx, path)
	if err != nil {
		return 0, err
	}

	// The resolver guarantees a cache entry for the resolved identifier,
	// so this is a pure cache check.
	listing, ok := fs.listings.Lookup(f)
	if !ok || !listing.IsDir() {
		return 0, syscall.ENOTDIR
	}

	return fs.handles.Bind(f, parent), nil
}

// ReadDir serves entirely from the listing cache: OpenDir populated it,
// and listings stay put until the process exits.
func (fs *recFS) ReadDir(ctx context.Context, handle uint64) ([]pathfs.DirEntry, error) {
	f, ok := fs.handles.Lookup(handle)
	if !ok {
		return nil, syscall.EBADF
	}

	listing, ok := fs.listings.Lookup(f)
	if !ok || !listing.IsDir() {
		return nil, syscall.ENOTDIR
	}

	entries := make([]pathfs.DirEntry, 0, len(listing.Children))
	for _, child := range listing.Children {
		t := fuseutil.DT_File
		if child.Kind == rec.KindDirectory {
			t = fuseutil.DT_Directory
		}
		entries = append(entries, pathfs.DirEntry{Name: child.Name, Type: t})
	}
	return entries, nil
}

func (fs *recFS) ReleaseDir(ctx context.Context, handle uint64) error {
	fs.handles.Release(handle)
	return nil
}

// Mkdir delegates to the remote, then re-lists the parent so the new child
// is visible in the cache, and returns its attributes.
func (fs *recFS) Mkdir(ctx context.Context, parentPath string, name string) (fuseops.InodeAttributes, time.Duration, error) {
	parent, _, err := fs.resolver.Resolve(ctx, parentPath)
	if err != nil {
		return fuseops.InodeAttributes{}, 0, err
	}

	listing, ok := fs.listings.Lookup(parent)
	if !ok || !listing.IsDir() {
		return fuseops.InodeAttributes{}, 0, syscall.ENOTDIR
	}

	if err := fs.client.Mkdir(ctx, parent, name); err != nil {
		logger.Warnf("fs: mkdir %q under %v: %v", name, parent, err)
		return fuseops.InodeAttributes{}, 0, syscall.EIO
	}

	children, err := fs.resolver.Refresh(ctx, parent)
	if err != nil {
		return fuseops.InodeAttributes{}, 0, err
	}
	for _, child := range children {
		if child.Name == name {
			return attrsFromEntry(child), attrValidity, nil
		}
	}

	logger.Debugf("fs: created directory %q missing from fresh listing of %v", name, parent)
	return fuseops.InodeAttributes{}, 0, syscall.ENOENT
}
